// Package sqlite implements store.Store on a single SQLite file using the
// pure-Go modernc.org/sqlite driver.
//
// Writes are serialized by keeping one open connection and starting every
// transaction with BEGIN IMMEDIATE, which takes the database write lock up
// front. Timestamps are stored as unix milliseconds.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fujinet/game-alerts/internal/store"
)

// Store is the SQLite backend.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and runs migrations.
// path may be a bare file name or a "file:" URI.
func Open(ctx context.Context, path string) (*Store, error) {
	if file := filePart(path); file != "" && file != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func filePart(path string) string {
	p := strings.TrimPrefix(path, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	return p
}

func dsn(path string) string {
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database answers a trivial query.
func (s *Store) Ping(ctx context.Context) error {
	var n int
	return s.db.QueryRowContext(ctx, "SELECT 1").Scan(&n)
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS servers (
			serverurl TEXT PRIMARY KEY,
			game TEXT NOT NULL DEFAULT '',
			appkey INTEGER NOT NULL DEFAULT 0,
			server TEXT NOT NULL DEFAULT '',
			region TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			cur_players INTEGER NOT NULL DEFAULT 0,
			max_players INTEGER NOT NULL DEFAULT 0,
			total_updates INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			serverurl TEXT NOT NULL,
			game TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL,
			cur_players INTEGER NOT NULL DEFAULT 0,
			max_players INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS subscribers (
			phone TEXT PRIMARY KEY,
			sms INTEGER NOT NULL DEFAULT 0,
			whatsapp INTEGER NOT NULL DEFAULT 0,
			notify_join_leave INTEGER NOT NULL DEFAULT 0,
			notify_server_start INTEGER NOT NULL DEFAULT 0,
			throttle INTEGER NOT NULL DEFAULT 0,
			last_notified INTEGER,
			confirmed INTEGER NOT NULL DEFAULT 0,
			verification_code TEXT NOT NULL DEFAULT '',
			code_issued_at INTEGER,
			pending_channel TEXT NOT NULL DEFAULT '',
			code_attempts INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sms_errors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT NOT NULL,
			channel TEXT NOT NULL DEFAULT '',
			destination TEXT NOT NULL DEFAULT '',
			resource_sid TEXT NOT NULL DEFAULT '',
			service_sid TEXT NOT NULL DEFAULT '',
			error_code TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			callback_url TEXT NOT NULL DEFAULT '',
			request_method TEXT NOT NULL DEFAULT '',
			details TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS leases (
			name TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_serverurl ON events(serverurl)`,
		`CREATE INDEX IF NOT EXISTS idx_sms_errors_created ON sms_errors(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_servers_idle ON servers(cur_players, updated_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

type scanner interface {
	Scan(dest ...any) error
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromNullMillis(n sql.NullInt64) time.Time {
	if !n.Valid {
		return time.Time{}
	}
	return fromMillis(n.Int64)
}

// inTx runs fn in a write transaction, committing on success.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func count(ctx context.Context, db *sql.DB, query string, args ...any) (int64, error) {
	var n int64
	if err := db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
