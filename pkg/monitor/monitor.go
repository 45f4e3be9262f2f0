package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bcaldwell/monzobridge/pkg/monetr"
	"github.com/bcaldwell/monzobridge/pkg/monzo"
	"k8s.io/klog"
)

type Bank interface {
	ListAccounts(ctx context.Context) ([]monzo.Account, error)
	// Transactions returns fetch errors, the seed snapshot must not silently come back empty
	Transactions(ctx context.Context, accountID string, since time.Time) ([]monzo.Transaction, error)
	ListTransactions(ctx context.Context, accountID string, since time.Time) []monzo.Transaction
}

type Ledger interface {
	PostTransaction(ctx context.Context, p monetr.Posting) error
}

// Recorder receives every forwarded transaction, used for the influx measurement.
type Recorder interface {
	Record(account monzo.Account, tx monzo.Transaction, posting monetr.Posting) error
}

type Options struct {
	AccountType string
	Lookback    time.Duration
	Store       SeenStore
	Recorder    Recorder
}

type CycleResult struct {
	Accounts  int
	Fetched   int
	Forwarded int
	Failed    int
}

type Monitor struct {
	bank     Bank
	ledger   Ledger
	store    SeenStore
	recorder Recorder

	accountType string
	lookback    time.Duration
	now         func() time.Time

	accounts []monzo.Account
	seen     *seenSet
	running  sync.Mutex
}

func New(bank Bank, ledger Ledger, opts Options) *Monitor {
	return &Monitor{
		bank:        bank,
		ledger:      ledger,
		store:       opts.Store,
		recorder:    opts.Recorder,
		accountType: opts.AccountType,
		lookback:    opts.Lookback,
		now:         time.Now,
		seen:        newSeenSet(),
	}
}

// Seed finds the monitored accounts and marks the transactions of the lookback window as seen
// so history is never reposted. Accounts with records in the store pick up where the last run
// stopped instead, accounts without records get the snapshot.
func (m *Monitor) Seed(ctx context.Context) error {
	accounts, err := m.bank.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}

	m.accounts = m.accounts[:0]
	for _, account := range accounts {
		klog.Infof("Found account %s (%s)", account.Description, account.Type)
		if account.Type == m.accountType {
			m.accounts = append(m.accounts, account)
		}
	}
	if len(m.accounts) == 0 {
		return fmt.Errorf("no accounts of type %s found", m.accountType)
	}

	resumed := make(map[string]bool)
	if m.store != nil {
		records, err := m.store.Load(ctx)
		if err != nil {
			return fmt.Errorf("failed to load seen transactions: %w", err)
		}
		for _, r := range records {
			m.seen.add(r.TransactionID)
			m.seen.advance(r.AccountID, r.Created)
			resumed[r.AccountID] = true
		}
		if len(records) > 0 {
			slog.Info("resumed transaction monitor from store", "seen", m.seen.len())
		}
	}

	// the snapshot uses the polling window, the list endpoint pages oldest first so an
	// unbounded request would only return the start of the account history
	since := m.now().Add(-m.lookback)

	for _, account := range m.accounts {
		if resumed[account.ID] {
			continue
		}

		transactions, err := m.bank.Transactions(ctx, account.ID, since)
		if err != nil {
			return fmt.Errorf("failed to snapshot transactions of %s: %w", account.ID, err)
		}

		records := make([]SeenRecord, 0, len(transactions))
		for _, tx := range transactions {
			m.seen.add(tx.ID)
			m.seen.advance(account.ID, tx.Created)
			records = append(records, SeenRecord{
				TransactionID: tx.ID,
				AccountID:     account.ID,
				Created:       tx.Created,
				Amount:        tx.Amount,
				Name:          DisplayName(tx),
			})
		}

		if m.store != nil && len(records) > 0 {
			if err := m.store.Add(ctx, records...); err != nil {
				return fmt.Errorf("failed to store seen transactions: %w", err)
			}
		}
	}

	slog.Info("initialized transaction monitor", "accounts", len(m.accounts), "seen", m.seen.len())
	return nil
}

// Cycle fetches recent transactions of every monitored account and forwards the unseen ones.
// A transaction only becomes seen once monetr accepted it, failures are retried next cycle.
func (m *Monitor) Cycle(ctx context.Context) CycleResult {
	result := CycleResult{Accounts: len(m.accounts)}

	for _, account := range m.accounts {
		transactions := m.bank.ListTransactions(ctx, account.ID, m.since(account.ID))
		result.Fetched += len(transactions)

		newest := time.Time{}
		failed := false

		for _, tx := range transactions {
			if m.seen.has(tx.ID) {
				if tx.Created.After(newest) {
					newest = tx.Created
				}
				continue
			}

			if err := m.forward(ctx, account, tx); err != nil {
				klog.Errorf("Failed to post transaction %s to monetr: %v", tx.ID, err)
				result.Failed++
				failed = true
				continue
			}

			result.Forwarded++
			if tx.Created.After(newest) {
				newest = tx.Created
			}
		}

		// a failed post keeps the cursor where it was so the transaction stays in the window
		if !failed {
			m.seen.advance(account.ID, newest)
		}
	}

	return result
}

// Tick runs a cycle unless the previous one is still going. Panics are logged, the loop keeps
// running.
func (m *Monitor) Tick(ctx context.Context) {
	if !m.running.TryLock() {
		klog.Warningf("Previous monitor cycle still running, skipping")
		return
	}
	defer m.running.Unlock()

	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("Monitor cycle failed: %v", r)
		}
	}()

	result := m.Cycle(ctx)
	if result.Forwarded > 0 || result.Failed > 0 {
		slog.Info("monitor cycle finished", "fetched", result.Fetched, "forwarded", result.Forwarded, "failed", result.Failed)
	} else {
		klog.V(2).Infof("Monitor cycle found %d transactions, nothing new", result.Fetched)
	}
}

// Wait blocks until a running cycle has finished.
func (m *Monitor) Wait() {
	m.running.Lock()
	m.running.Unlock()
}

func (m *Monitor) Seen(id string) bool {
	return m.seen.has(id)
}

func (m *Monitor) Accounts() []monzo.Account {
	return m.accounts
}

// since is the trailing lookback window, stretched back to the account cursor when the last
// forwarded transaction is older than the window (downtime or a quiet account).
func (m *Monitor) since(accountID string) time.Time {
	since := m.now().Add(-m.lookback)
	if cursor := m.seen.cursor(accountID); !cursor.IsZero() && cursor.Before(since) {
		return cursor
	}
	return since
}

func (m *Monitor) forward(ctx context.Context, account monzo.Account, tx monzo.Transaction) error {
	posting := ToPosting(tx)

	klog.Infof("New transaction: %s at %s (%s)", posting.Amount.StringFixed(2), posting.Name, posting.Date.Local().Format(time.Kitchen))
	if tx.Merchant != nil && tx.Merchant.Emoji != "" {
		klog.Infof("Category: %s %s", tx.Merchant.Emoji, tx.Merchant.Category)
	}

	if err := m.ledger.PostTransaction(ctx, posting); err != nil {
		return err
	}

	m.seen.add(tx.ID)

	if m.store != nil {
		err := m.store.Add(ctx, SeenRecord{
			TransactionID: tx.ID,
			AccountID:     account.ID,
			Created:       tx.Created,
			Amount:        tx.Amount,
			Name:          posting.Name,
			Forwarded:     true,
		})
		if err != nil {
			// the post went through, the in memory seen set still covers this run
			klog.Warningf("Failed to persist forwarded transaction %s: %v", tx.ID, err)
		}
	}

	if m.recorder != nil {
		if err := m.recorder.Record(account, tx, posting); err != nil {
			klog.Warningf("Failed to record forwarded transaction %s: %v", tx.ID, err)
		}
	}

	return nil
}
