package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/bcaldwell/monzobridge/pkg/postgresutils"
	"github.com/uptrace/bun"
	"k8s.io/klog"
)

const DefaultSeenTable = "seen_transactions"

type SQLSeenTransaction struct {
	bun.BaseModel `bun:"table:seen_transactions,alias:seen"`
	ID            int64  `bun:",pk,autoincrement"`
	Key           string `bun:",unique,notnull"`
	AccountID     string
	Created       time.Time
	Amount        int64
	Name          string
	Forwarded     bool
	UpdatedAt     time.Time
}

// SQLStore keeps the seen set in postgres.
type SQLStore struct {
	db    *bun.DB
	table string
}

func NewSQLStore(db *bun.DB, table string) *SQLStore {
	if table == "" {
		table = DefaultSeenTable
	}
	return &SQLStore{db: db, table: table}
}

func (s *SQLStore) Migrate(ctx context.Context) error {
	_, err := s.createTableQuery().Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create %s table: %w", s.table, err)
	}
	return nil
}

func (s *SQLStore) Load(ctx context.Context) ([]SeenRecord, error) {
	rows := []SQLSeenTransaction{}
	err := s.selectQuery(&rows).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.table, err)
	}

	records := make([]SeenRecord, len(rows))
	for i, row := range rows {
		records[i] = row.record()
	}

	klog.V(1).Infof("Loaded %d seen transactions from %s", len(records), s.table)
	return records, nil
}

func (s *SQLStore) Add(ctx context.Context, records ...SeenRecord) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([]SQLSeenTransaction, len(records))
	for i, r := range records {
		rows[i] = newSQLSeenTransaction(r)
	}

	_, err := s.upsertQuery(&rows).Exec(ctx)
	if err != nil {
		return fmt.Errorf("error writing seen transactions to sql: %w", err)
	}
	return nil
}

func (s *SQLStore) createTableQuery() *bun.CreateTableQuery {
	return s.db.NewCreateTable().
		Model((*SQLSeenTransaction)(nil)).
		ModelTableExpr(postgresutils.QuoteIdent(s.table)).
		IfNotExists()
}

func (s *SQLStore) selectQuery(rows *[]SQLSeenTransaction) *bun.SelectQuery {
	return s.db.NewSelect().
		Model(rows).
		ModelTableExpr("? AS seen", bun.Ident(s.table))
}

func (s *SQLStore) upsertQuery(rows *[]SQLSeenTransaction) *bun.InsertQuery {
	return s.db.NewInsert().
		Model(rows).
		ModelTableExpr(postgresutils.QuoteIdent(s.table)).
		On("CONFLICT (key) DO UPDATE").
		Set(postgresutils.TableSetString(s.db, (*SQLSeenTransaction)(nil), "id", "key"))
}

func newSQLSeenTransaction(r SeenRecord) SQLSeenTransaction {
	return SQLSeenTransaction{
		Key:       r.TransactionID,
		AccountID: r.AccountID,
		Created:   r.Created.UTC(),
		Amount:    r.Amount,
		Name:      r.Name,
		Forwarded: r.Forwarded,
		UpdatedAt: time.Now().UTC(),
	}
}

func (t SQLSeenTransaction) record() SeenRecord {
	return SeenRecord{
		TransactionID: t.Key,
		AccountID:     t.AccountID,
		Created:       t.Created,
		Amount:        t.Amount,
		Name:          t.Name,
		Forwarded:     t.Forwarded,
	}
}
