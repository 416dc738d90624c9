// Package store persists reconciliation results to PostgreSQL, where Grafana
// reads them.
//
// Every publish replaces the previous tables: the timeline table is dropped,
// recreated with one flow and one balance column per registered account, and
// bulk loaded with COPY inside a single transaction, so readers see either the
// old or the new data.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/tokuotsu/kakei2grafana/ledger"
	"github.com/tokuotsu/kakei2grafana/telemetry"
)

// Default table names.
const (
	DefaultTimelineTable     = "kakeibo_2"
	DefaultTransactionsTable = "kakeibo"
)

// Config holds connection parameters.
type Config struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// DSN returns a lib/pq key/value connection string.
func (c Config) DSN() string {
	var parts []string
	add := func(key, value string) {
		if value == "" {
			return
		}
		parts = append(parts, key+"="+quoteDSNValue(value))
	}
	add("host", c.Host)
	if c.Port != 0 {
		add("port", strconv.Itoa(c.Port))
	}
	add("dbname", c.Name)
	add("user", c.User)
	add("password", c.Password)
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	add("sslmode", sslmode)
	return strings.Join(parts, " ")
}

// quoteDSNValue quotes values containing spaces, quotes or backslashes the way
// lib/pq expects.
func quoteDSNValue(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Store writes results to a database.
type Store struct {
	db                *sql.DB
	timelineTable     string
	transactionsTable string
}

// Option configures a Store.
type Option func(*Store)

// WithTimelineTable sets the table the unified timeline is written to.
func WithTimelineTable(name string) Option {
	return func(s *Store) {
		s.timelineTable = name
	}
}

// WithTransactionsTable sets the table resolved transactions are written to.
func WithTransactionsTable(name string) Option {
	return func(s *Store) {
		s.transactionsTable = name
	}
}

// New wraps an open database.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:                db,
		timelineTable:     DefaultTimelineTable,
		transactionsTable: DefaultTransactionsTable,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Name, err)
	}
	return New(db, opts...), nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Tables returns the timeline and transactions table names.
func (s *Store) Tables() (timeline, transactions string) {
	return s.timelineTable, s.transactionsTable
}

// ReplaceTimeline replaces the timeline table with u.
func (s *Store) ReplaceTimeline(ctx context.Context, u *ledger.UnifiedTimeline) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return replaceTimeline(ctx, tx, s.timelineTable, u)
	})
}

// ReplaceTransactions replaces the transactions table with resolved
// transactions and transfer legs.
func (s *Store) ReplaceTransactions(ctx context.Context, transactions, transfers []ledger.ResolvedTransaction) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return replaceTransactions(ctx, tx, s.transactionsTable, transactions, transfers)
	})
}

// Publish replaces both tables in one transaction.
func (s *Store) Publish(ctx context.Context, result *ledger.Result) error {
	timer := telemetry.StartTimer(ctx, "store.publish")
	defer timer.End()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := replaceTransactions(ctx, tx, s.transactionsTable, result.Transactions, result.Transfers); err != nil {
			return err
		}
		return replaceTimeline(ctx, tx, s.timelineTable, result.Timeline)
	})
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func replaceTimeline(ctx context.Context, tx *sql.Tx, table string, u *ledger.UnifiedTimeline) error {
	for _, stmt := range []string{dropTableSQL(table), createTimelineSQL(table, u.Registry)} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", table, err)
		}
	}

	columns := u.ColumnNames()
	return copyRows(ctx, tx, table, columns, u.Len(), func(i int) []any {
		return timelineValues(u.Row(i))
	})
}

func replaceTransactions(ctx context.Context, tx *sql.Tx, table string, transactions, transfers []ledger.ResolvedTransaction) error {
	for _, stmt := range []string{dropTableSQL(table), createTransactionsSQL(table)} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", table, err)
		}
	}

	all := make([]ledger.ResolvedTransaction, 0, len(transactions)+len(transfers))
	all = append(all, transactions...)
	all = append(all, transfers...)

	return copyRows(ctx, tx, table, transactionColumns, len(all), func(i int) []any {
		source := SourceTransaction
		if i >= len(transactions) {
			source = SourceTransfer
		}
		return transactionValues(all[i], source)
	})
}

// copyRows bulk loads n rows with COPY FROM STDIN.
func copyRows(ctx context.Context, tx *sql.Tx, table string, columns []string, n int, values func(int) []any) error {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, columns...))
	if err != nil {
		return fmt.Errorf("%s: prepare copy: %w", table, err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, values(i)...); err != nil {
			return fmt.Errorf("%s: copy row %d: %w", table, i+1, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("%s: flush copy: %w", table, err)
	}
	return nil
}
