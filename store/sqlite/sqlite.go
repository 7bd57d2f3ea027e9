/*
Package sqlite provides a SQLite-backed implementation of ledger.Store.

PURPOSE:
  Implements the ledger persistence interfaces on SQLite through sqlx.
  Every read and write happens inside WithTx, so a balance check and the
  write that depends on it always share one database transaction.

KEY TABLES:
  users:                  members and their points balance
  transactions:           ledger rows of every kind
  transaction_promotions: promotion ids applied to purchase rows
  promotions:             promotion definitions
  events:                 events and their award pool
  event_organizers:       event-to-organizer links
  event_rsvps:            guest list with attendance
  event_point_awards:     points granted from an event pool

BALANCE FLOOR:
  users.points carries CHECK (points >= 0) and SubtractPoints uses a
  conditional UPDATE, so a negative balance is unrepresentable.

CONCURRENCY:
  The pool holds a single connection and WithTx takes a mutex, so units of
  work run one at a time. File databases are opened with _txlock=immediate
  so other processes also see BEGIN take the write lock.

TIME FORMAT:
  All timestamps are stored as RFC3339Nano text in UTC.

USAGE:
  store, err := sqlite.New("./data/loyalty.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  err = store.WithTx(ctx, func(tx ledger.Tx) error {
      return ledger.Credit(ctx, tx, "alice001", 40)
  })

SEE ALSO:
  - ledger/store.go: interface definitions
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/warp/loyalty-engine/ledger"
)

// Store implements ledger.Store using SQLite.
type Store struct {
	db *sqlx.DB
	mu sync.Mutex
}

// New opens (and migrates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serialises writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := NewWithDB(db)
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// NewWithDB wraps an already-open handle without migrating it.
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txStore implements ledger.Tx on one open sqlx transaction.
type txStore struct {
	tx *sqlx.Tx
}

var _ ledger.Tx = (*txStore)(nil)

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		utorid TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		points INTEGER NOT NULL DEFAULT 0 CHECK (points >= 0),
		verified BOOLEAN NOT NULL DEFAULT 0,
		suspicious BOOLEAN NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS promotions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		min_spending TEXT,
		rate TEXT,
		points INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		owner TEXT NOT NULL,
		amount INTEGER NOT NULL,
		spent TEXT,
		related_id INTEGER,
		sender TEXT NOT NULL DEFAULT '',
		recipient TEXT NOT NULL DEFAULT '',
		event_id INTEGER,
		suspicious BOOLEAN NOT NULL DEFAULT 0,
		processed_by TEXT,
		processed_at TEXT,
		remark TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_owner ON transactions(owner);
	CREATE INDEX IF NOT EXISTS idx_transactions_kind ON transactions(kind);

	CREATE TABLE IF NOT EXISTS transaction_promotions (
		transaction_id INTEGER NOT NULL REFERENCES transactions(id),
		promotion_id INTEGER NOT NULL REFERENCES promotions(id),
		PRIMARY KEY (transaction_id, promotion_id)
	);

	CREATE INDEX IF NOT EXISTS idx_transaction_promotions_promotion
		ON transaction_promotions(promotion_id);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		capacity INTEGER,
		points INTEGER NOT NULL CHECK (points >= 0),
		published BOOLEAN NOT NULL DEFAULT 0,
		created_by_id INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS event_organizers (
		event_id INTEGER NOT NULL REFERENCES events(id),
		user_id INTEGER NOT NULL REFERENCES users(id),
		PRIMARY KEY (event_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS event_rsvps (
		event_id INTEGER NOT NULL REFERENCES events(id),
		user_id INTEGER NOT NULL REFERENCES users(id),
		status TEXT NOT NULL,
		attended BOOLEAN NOT NULL DEFAULT 0,
		PRIMARY KEY (event_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS event_point_awards (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id INTEGER NOT NULL REFERENCES events(id),
		attendee_id INTEGER NOT NULL REFERENCES users(id),
		awarded_by_id INTEGER NOT NULL REFERENCES users(id),
		points INTEGER NOT NULL CHECK (points > 0),
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_event_point_awards_event ON event_point_awards(event_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// rowsAffected returns ledger.NewNotFound when an UPDATE/DELETE matched nothing.
func rowsAffected(res sql.Result, resource string, key any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.NewNotFound(resource, key)
	}
	return nil
}
