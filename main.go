package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bcaldwell/monzobridge/internal/setup"
	"github.com/bcaldwell/monzobridge/pkg/config"
	"github.com/bcaldwell/monzobridge/pkg/credstore"
	"github.com/bcaldwell/monzobridge/pkg/influxutils"
	"github.com/bcaldwell/monzobridge/pkg/monetr"
	"github.com/bcaldwell/monzobridge/pkg/monitor"
	"github.com/bcaldwell/monzobridge/pkg/monzo"
	"github.com/bcaldwell/monzobridge/pkg/postgresutils"
	"github.com/robfig/cron"
	"k8s.io/klog"
)

type bridge struct {
	cfg     *config.Config
	secrets *config.Secrets
	store   *credstore.Store
	setup   *setup.Setup
}

func main() {
	klog.InitFlags(nil)

	singleRun := flag.Bool("single-run", false, "run one monitoring cycle after seeding (disable cron)")
	configFile := flag.String("config", "./config.yml", "configuration file")
	secretsFile := flag.String("secrets", "./secrets.json", "secrets file")
	help := flag.Bool("help", false, "show command help")

	flag.Parse()

	if *help {
		fmt.Println("monzo to monetr transaction bridge")
		fmt.Println("monzobridge [options] task")
		fmt.Println("tasks: run (default), setup, authorize, accounts")
		flag.PrintDefaults()
		return
	}

	cfg, secrets, err := config.ReadConfig(config.ConfigEnvVar, *configFile, *secretsFile)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	store := credstore.New(credstore.OSKeyring(), cfg.Keyring.MonetrService, cfg.Keyring.MonzoService)
	b := &bridge{
		cfg:     cfg,
		secrets: secrets,
		store:   store,
		setup:   setup.New(setup.NewConsole(), store, cfg, secrets),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	task := flag.Arg(0)
	if task == "" {
		task = "run"
	}

	switch task {
	case "setup":
		err = b.reconfigure(ctx)
	case "authorize":
		err = b.authorize(ctx, true)
	case "accounts":
		err = b.listAccounts(ctx)
	case "run":
		err = b.run(ctx, *singleRun)
	default:
		fmt.Printf("Unknown task %q\n", task)
		os.Exit(1)
	}

	klog.Flush()
	if errors.Is(err, setup.ErrAborted) {
		fmt.Println(err)
		os.Exit(1)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		klog.Errorf("%s failed: %v", task, err)
	}
}

// reconfigure asks for both sets of credentials again and authorizes with the new client.
func (b *bridge) reconfigure(ctx context.Context) error {
	if _, err := b.setup.SetupMonetr(ctx); err != nil {
		return err
	}

	creds, err := b.setup.SetupMonzo(ctx)
	if err != nil {
		return err
	}

	session := monzo.NewSession(b.cfg.Monzo, b.store, creds)
	return b.setup.Authorize(ctx, session, b.bankClient(session))
}

// authorize returns a session holding a working access token, going through the browser flow
// when there is none. With reset the stored tokens are dropped first.
func (b *bridge) authorize(ctx context.Context, reset bool) error {
	_, _, err := b.session(ctx, reset)
	return err
}

func (b *bridge) session(ctx context.Context, reset bool) (*monzo.Session, *monzo.Client, error) {
	creds, err := b.setup.Monzo(ctx)
	if err != nil {
		return nil, nil, err
	}

	session := monzo.NewSession(b.cfg.Monzo, b.store, creds)
	if reset {
		if err := session.Reset(); err != nil {
			return nil, nil, err
		}
	}

	bank := b.bankClient(session)
	if err := b.setup.Authorize(ctx, session, bank); err != nil {
		return nil, nil, err
	}
	return session, bank, nil
}

func (b *bridge) bankClient(session *monzo.Session) *monzo.Client {
	return monzo.NewClient(b.cfg.Monzo.APIURL, b.cfg.Monzo.PageSize, b.cfg.Monzo.Timeout.Duration, session)
}

func (b *bridge) listAccounts(ctx context.Context) error {
	_, bank, err := b.session(ctx, false)
	if err != nil {
		return err
	}

	accounts, err := bank.ListAccounts(ctx)
	if err != nil {
		return err
	}

	for _, account := range accounts {
		marker := " "
		if account.Type == b.cfg.Monzo.AccountType {
			marker = "*"
		}
		fmt.Printf("%s %s\t%s\t%s\t%s\n", marker, account.ID, account.Type, account.Currency, account.Description)
	}
	return nil
}

func (b *bridge) run(ctx context.Context, singleRun bool) error {
	monetrCreds, err := b.setup.Monetr(ctx)
	if err != nil {
		return err
	}

	_, bank, err := b.session(ctx, false)
	if err != nil {
		return err
	}

	opts := monitor.Options{
		AccountType: b.cfg.Monzo.AccountType,
		Lookback:    b.cfg.Monitor.Lookback.Duration,
	}

	if b.secrets.HasSQL() {
		db, err := postgresutils.CreatePostgresClient(b.secrets, b.cfg.Monitor.SQL.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		defer db.Close()

		seenStore := monitor.NewSQLStore(db, b.cfg.Monitor.SQL.SeenTable)
		if err := seenStore.Migrate(ctx); err != nil {
			return err
		}
		opts.Store = seenStore
	} else {
		klog.Warningf("No SQL secrets configured, seen transactions only live in memory")
	}

	if b.secrets.HasInflux() {
		influxClient, err := influxutils.CreateInfluxClient(b.secrets.Influx)
		if err != nil {
			return fmt.Errorf("failed to create influx client: %w", err)
		}
		if err := influxutils.CreateDatabase(influxClient, b.cfg.Influx.Database); err != nil {
			return fmt.Errorf("failed to create influx database: %w", err)
		}
		recorder := influxutils.NewRecorder(influxClient, b.cfg.Influx)
		defer recorder.Close()
		opts.Recorder = recorder
	}

	ledger := monetr.NewClient(monetrCreds, b.cfg.Monzo.Timeout.Duration)
	m := monitor.New(bank, ledger, opts)

	if err := m.Seed(ctx); err != nil {
		return err
	}

	if singleRun {
		m.Tick(ctx)
		return nil
	}

	c := cron.New()
	if err := c.AddFunc(b.cfg.Monitor.UpdateFrequency, func() {
		klog.V(2).Infof("Monitoring cycle at %s", time.Now().Format(time.RFC850))
		m.Tick(ctx)
	}); err != nil {
		return fmt.Errorf("invalid update frequency %q: %w", b.cfg.Monitor.UpdateFrequency, err)
	}

	klog.Infof("Monitoring %d accounts every %s", len(m.Accounts()), b.cfg.Monitor.UpdateFrequency)
	c.Start()

	<-ctx.Done()
	klog.Infof("Shutting down")
	c.Stop()
	m.Wait()
	return nil
}
