// Package postgres implements store.Store on a pgxpool-based connection pool
// with prepared statement registration and health checking.
//
// Per-key serialization uses transaction-scoped advisory locks, and every
// appended event is broadcast with pg_notify on EventChannel so other
// processes can stream it.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fujinet/game-alerts/internal/store"
)

// EventChannel is the NOTIFY channel carrying new event records as JSON.
const EventChannel = "relay_events"

// Options tunes the connection pool.
type Options struct {
	MinConns        int
	MaxConns        int
	MaxConnLifetime time.Duration
}

// Store wraps pgxpool.Pool with the relay's queries.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// Open migrates the schema over a direct connection, then creates and
// validates the pool. Statements are prepared per connection, so the tables
// must exist first.
func Open(ctx context.Context, url string, opts Options) (*Store, error) {
	if err := migrate(ctx, url); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if opts.MinConns > 0 {
		poolCfg.MinConns = int32(opts.MinConns)
	}
	if opts.MaxConns > 0 {
		poolCfg.MaxConns = int32(opts.MaxConns)
	}
	if opts.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases every pooled connection.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping runs a trivial query to verify the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	var n int
	return s.pool.QueryRow(ctx, "health_check").Scan(&n)
}

func migrate(ctx context.Context, url string) error {
	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS servers (
			serverurl TEXT PRIMARY KEY,
			game TEXT NOT NULL DEFAULT '',
			appkey INTEGER NOT NULL DEFAULT 0,
			server TEXT NOT NULL DEFAULT '',
			region TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			cur_players INTEGER NOT NULL DEFAULT 0 CHECK (cur_players >= 0),
			max_players INTEGER NOT NULL DEFAULT 0 CHECK (max_players >= 0),
			total_updates INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			seq BIGSERIAL,
			serverurl TEXT NOT NULL,
			game TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL,
			cur_players INTEGER NOT NULL DEFAULT 0,
			max_players INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS subscribers (
			phone TEXT PRIMARY KEY,
			sms BOOLEAN NOT NULL DEFAULT false,
			whatsapp BOOLEAN NOT NULL DEFAULT false,
			notify_join_leave BOOLEAN NOT NULL DEFAULT false,
			notify_server_start BOOLEAN NOT NULL DEFAULT false,
			throttle BOOLEAN NOT NULL DEFAULT false,
			last_notified TIMESTAMPTZ,
			confirmed BOOLEAN NOT NULL DEFAULT false,
			verification_code TEXT NOT NULL DEFAULT '',
			code_issued_at TIMESTAMPTZ,
			pending_channel TEXT NOT NULL DEFAULT '',
			code_attempts INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sms_errors (
			id BIGSERIAL PRIMARY KEY,
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
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS leases (
			name TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at DESC, seq DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_events_serverurl ON events(serverurl)`,
		`CREATE INDEX IF NOT EXISTS idx_sms_errors_created ON sms_errors(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_servers_idle ON servers(cur_players, updated_at)`,
	}

	for _, m := range migrations {
		if _, err := conn.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

const (
	serverColumns     = `serverurl, game, appkey, server, region, status, cur_players, max_players, total_updates, created_at, updated_at`
	subscriberColumns = `phone, sms, whatsapp, notify_join_leave, notify_server_start, throttle, last_notified, confirmed, verification_code, code_issued_at, pending_channel, code_attempts, created_at, updated_at`
	smsErrorColumns   = `id, source, channel, destination, resource_sid, service_sid, error_code, error_message, callback_url, request_method, details, created_at`
)

// registerPreparedStatements registers every statement the store uses.
// Prepared statements eliminate parse overhead on every request.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Locking
		"xact_lock": "SELECT pg_advisory_xact_lock(hashtext($1))",

		// Servers
		"server_get":    "SELECT " + serverColumns + " FROM servers WHERE serverurl = $1",
		"server_list":   "SELECT " + serverColumns + " FROM servers ORDER BY serverurl",
		"server_delete": "DELETE FROM servers WHERE serverurl = $1",
		"server_upsert": `INSERT INTO servers (` + serverColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (serverurl) DO UPDATE SET
				game = EXCLUDED.game, appkey = EXCLUDED.appkey, server = EXCLUDED.server,
				region = EXCLUDED.region, status = EXCLUDED.status,
				cur_players = EXCLUDED.cur_players, max_players = EXCLUDED.max_players,
				total_updates = EXCLUDED.total_updates, updated_at = EXCLUDED.updated_at`,
		"server_touch_idle": `UPDATE servers SET updated_at = $3
			WHERE serverurl = $1 AND cur_players = 0 AND updated_at < $2`,

		// Events
		"event_insert": `INSERT INTO events (id, serverurl, game, kind, cur_players, max_players, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		"event_notify": "SELECT pg_notify('" + EventChannel + "', $1)",
		"event_list": `SELECT id, serverurl, game, kind, cur_players, max_players, created_at
			FROM events ORDER BY created_at DESC, seq DESC LIMIT $1`,
		"event_count": "SELECT COUNT(*) FROM events",

		// Subscribers
		"subscriber_get":    "SELECT " + subscriberColumns + " FROM subscribers WHERE phone = $1",
		"subscriber_list":   "SELECT " + subscriberColumns + " FROM subscribers ORDER BY phone",
		"subscriber_delete": "DELETE FROM subscribers WHERE phone = $1",
		"subscriber_upsert": `INSERT INTO subscribers (` + subscriberColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (phone) DO UPDATE SET
				sms = EXCLUDED.sms, whatsapp = EXCLUDED.whatsapp,
				notify_join_leave = EXCLUDED.notify_join_leave,
				notify_server_start = EXCLUDED.notify_server_start,
				throttle = EXCLUDED.throttle, last_notified = EXCLUDED.last_notified,
				confirmed = EXCLUDED.confirmed, verification_code = EXCLUDED.verification_code,
				code_issued_at = EXCLUDED.code_issued_at, pending_channel = EXCLUDED.pending_channel,
				code_attempts = EXCLUDED.code_attempts, updated_at = EXCLUDED.updated_at`,

		// Diagnostics
		"sms_error_insert": `INSERT INTO sms_errors (source, channel, destination, resource_sid, service_sid,
				error_code, error_message, callback_url, request_method, details, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		"sms_error_list": "SELECT " + smsErrorColumns + " FROM sms_errors ORDER BY id DESC LIMIT $1",

		// Leases
		"lease_acquire": `INSERT INTO leases (name, owner, expires_at) VALUES ($1, $2, $3)
			ON CONFLICT (name) DO UPDATE SET owner = EXCLUDED.owner, expires_at = EXCLUDED.expires_at
			WHERE leases.expires_at <= $4 OR leases.owner = EXCLUDED.owner`,
		"lease_release": "DELETE FROM leases WHERE name = $1 AND owner = $2",

		// Retention
		"purge_sms_errors":  "DELETE FROM sms_errors WHERE created_at < $1",
		"purge_unconfirmed": "DELETE FROM subscribers WHERE NOT confirmed AND created_at < $1",
		"purge_leases":      "DELETE FROM leases WHERE expires_at <= $1",

		// Stats
		"stats": `SELECT
			(SELECT COUNT(*) FROM servers),
			(SELECT COUNT(*) FROM subscribers),
			(SELECT COUNT(*) FROM subscribers WHERE confirmed),
			(SELECT COUNT(*) FROM events),
			(SELECT COUNT(*) FROM sms_errors)`,
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}

// lockKey takes the advisory lock for one row key until the transaction ends.
func lockKey(ctx context.Context, tx pgx.Tx, kind, key string) error {
	if _, err := tx.Exec(ctx, "xact_lock", kind+":"+key); err != nil {
		return fmt.Errorf("lock %s: %w", kind, err)
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func fromNullTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}
