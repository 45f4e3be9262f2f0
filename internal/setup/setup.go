package setup

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bcaldwell/monzobridge/pkg/config"
	"github.com/bcaldwell/monzobridge/pkg/credstore"
	"github.com/bcaldwell/monzobridge/pkg/monetr"
	"github.com/pkg/browser"
	"k8s.io/klog"
)

// ErrAborted is returned when the user abandons setup or authorization.
var ErrAborted = errors.New("setup aborted")

const bankAccountPrefix = "bac_"

// Setup collects credentials interactively and stores them in the keyring.
type Setup struct {
	prompt  Prompter
	store   *credstore.Store
	cfg     *config.Config
	secrets *config.Secrets

	// swapped in tests
	openBrowser  func(url string) error
	verifyMonetr func(ctx context.Context, creds *credstore.MonetrCredentials) error
}

func New(prompt Prompter, store *credstore.Store, cfg *config.Config, secrets *config.Secrets) *Setup {
	if secrets == nil {
		secrets = &config.Secrets{}
	}

	return &Setup{
		prompt:      prompt,
		store:       store,
		cfg:         cfg,
		secrets:     secrets,
		openBrowser: browser.OpenURL,
		verifyMonetr: func(ctx context.Context, creds *credstore.MonetrCredentials) error {
			return monetr.NewClient(creds, cfg.Monzo.Timeout.Duration).Login(ctx)
		},
	}
}

// Monetr returns the stored monetr credentials. An empty keyring is seeded from the secrets
// when they are complete, otherwise the user is asked for them.
func (s *Setup) Monetr(ctx context.Context) (*credstore.MonetrCredentials, error) {
	if creds, ok := s.store.LoadMonetr(); ok && creds.Complete() {
		return creds, nil
	}

	if creds := s.monetrSecrets(); creds.Complete() {
		klog.Infof("Seeding monetr credentials from secrets")
		if err := s.store.SaveMonetr(creds); err != nil {
			return nil, err
		}
		return creds, nil
	}

	return s.SetupMonetr(ctx)
}

// Monzo returns the stored Monzo client credentials, seeding or prompting like Monetr.
func (s *Setup) Monzo(ctx context.Context) (*credstore.MonzoCredentials, error) {
	if creds, ok := s.store.LoadMonzo(); ok && creds.ClientID != "" && creds.ClientSecret != "" {
		return creds, nil
	}

	if s.secrets.Monzo.ClientID != "" && s.secrets.Monzo.ClientSecret != "" {
		klog.Infof("Seeding Monzo client credentials from secrets")
		creds := &credstore.MonzoCredentials{
			ClientID:     s.secrets.Monzo.ClientID,
			ClientSecret: s.secrets.Monzo.ClientSecret,
		}
		if err := s.store.SaveMonzo(creds); err != nil {
			return nil, err
		}
		return creds, nil
	}

	return s.SetupMonzo(ctx)
}

type monetrState int

const (
	monetrAsk monetrState = iota
	monetrConfirmAccount
	monetrVerify
	monetrRetry
	monetrDone
)

// SetupMonetr asks for the monetr details, verifies them with a login and saves them.
func (s *Setup) SetupMonetr(ctx context.Context) (*credstore.MonetrCredentials, error) {
	defaults := s.monetrSecrets()
	if stored, ok := s.store.LoadMonetr(); ok {
		defaults = stored
	}

	var creds *credstore.MonetrCredentials
	state := monetrAsk

	for {
		switch state {
		case monetrAsk:
			s.prompt.Println("\n=== Monetr Configuration ===")
			creds = &credstore.MonetrCredentials{}
			if err := s.askMonetr(defaults, creds); err != nil {
				return nil, err
			}
			defaults = creds
			state = monetrVerify
			if !strings.HasPrefix(creds.BankAccountID, bankAccountPrefix) {
				state = monetrConfirmAccount
			}

		case monetrConfirmAccount:
			s.prompt.Println(fmt.Sprintf("Warning: bank account id %q does not start with %q", creds.BankAccountID, bankAccountPrefix))
			answer, err := s.prompt.Ask("Continue anyway? (yes/no)", "no")
			if err != nil {
				return nil, err
			}
			state = monetrAsk
			if yes(answer) {
				state = monetrVerify
			}

		case monetrVerify:
			s.prompt.Println("Testing monetr connection...")
			if err := s.verifyMonetr(ctx, creds); err != nil {
				s.prompt.Println("Failed to log in to monetr:", err)
				state = monetrRetry
				continue
			}
			s.prompt.Println("Successfully connected to monetr")
			state = monetrDone

		case monetrRetry:
			answer, err := s.prompt.Ask("Would you like to try again? (yes/no)", "yes")
			if err != nil {
				return nil, err
			}
			if !yes(answer) {
				return nil, ErrAborted
			}
			state = monetrAsk

		case monetrDone:
			if err := s.store.SaveMonetr(creds); err != nil {
				return nil, err
			}
			return creds, nil
		}
	}
}

func (s *Setup) askMonetr(defaults, creds *credstore.MonetrCredentials) error {
	var err error

	if creds.URL, err = s.prompt.Ask("Monetr URL", defaults.URL); err != nil {
		return err
	}
	if creds.Email, err = s.prompt.Ask("Monetr email", defaults.Email); err != nil {
		return err
	}
	if creds.Password, err = s.prompt.AskSecret("Monetr password"); err != nil {
		return err
	}
	if creds.Password == "" {
		creds.Password = defaults.Password
	}
	if creds.BankAccountID, err = s.prompt.Ask("Monetr bank account id", defaults.BankAccountID); err != nil {
		return err
	}

	creds.Normalize()
	return nil
}

// SetupMonzo asks for the OAuth client id and secret. Any stored tokens are dropped.
func (s *Setup) SetupMonzo(ctx context.Context) (*credstore.MonzoCredentials, error) {
	defaults := credstore.MonzoCredentials{
		ClientID:     s.secrets.Monzo.ClientID,
		ClientSecret: s.secrets.Monzo.ClientSecret,
	}
	if stored, ok := s.store.LoadMonzo(); ok {
		defaults = *stored
	}

	s.prompt.Println("\n=== Monzo Configuration ===")
	s.prompt.Println("Create an OAuth client at https://developers.monzo.com with redirect URL", s.cfg.Monzo.RedirectURI)

	for {
		clientID, err := s.prompt.Ask("Monzo client id", defaults.ClientID)
		if err != nil {
			return nil, err
		}
		clientSecret, err := s.prompt.AskSecret("Monzo client secret")
		if err != nil {
			return nil, err
		}
		if clientSecret == "" {
			clientSecret = defaults.ClientSecret
		}

		if clientID != "" && clientSecret != "" {
			creds := &credstore.MonzoCredentials{
				ClientID:     clientID,
				ClientSecret: clientSecret,
			}
			if err := s.store.SaveMonzo(creds); err != nil {
				return nil, err
			}
			return creds, nil
		}

		s.prompt.Println("Both the client id and the client secret are required")
		answer, err := s.prompt.Ask("Would you like to try again? (yes/no)", "yes")
		if err != nil {
			return nil, err
		}
		if !yes(answer) {
			return nil, ErrAborted
		}
	}
}

func (s *Setup) monetrSecrets() *credstore.MonetrCredentials {
	creds := &credstore.MonetrCredentials{
		URL:           s.secrets.Monetr.URL,
		Email:         s.secrets.Monetr.Email,
		Password:      s.secrets.Monetr.Password,
		BankAccountID: s.secrets.Monetr.BankAccountID,
	}
	creds.Normalize()
	return creds
}
