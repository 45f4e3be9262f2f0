package monitor

import (
	"context"
	"time"
)

// SeenRecord is a transaction the bridge has dealt with, either because it was already there
// when monitoring started or because it was forwarded to monetr.
type SeenRecord struct {
	TransactionID string
	AccountID     string
	Created       time.Time
	Amount        int64
	Name          string
	Forwarded     bool
}

// SeenStore persists seen transactions so a restart doesn't lose them.
type SeenStore interface {
	Load(ctx context.Context) ([]SeenRecord, error)
	Add(ctx context.Context, records ...SeenRecord) error
}

// seenSet is the in memory set of transaction ids plus the newest creation time per account.
type seenSet struct {
	ids     map[string]struct{}
	cursors map[string]time.Time
}

func newSeenSet() *seenSet {
	return &seenSet{
		ids:     make(map[string]struct{}),
		cursors: make(map[string]time.Time),
	}
}

func (s *seenSet) has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *seenSet) add(id string) {
	s.ids[id] = struct{}{}
}

func (s *seenSet) len() int {
	return len(s.ids)
}

// advance moves the account cursor forward, never back.
func (s *seenSet) advance(accountID string, created time.Time) {
	if created.After(s.cursors[accountID]) {
		s.cursors[accountID] = created
	}
}

func (s *seenSet) cursor(accountID string) time.Time {
	return s.cursors[accountID]
}
