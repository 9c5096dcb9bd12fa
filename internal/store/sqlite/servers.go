package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fujinet/game-alerts/internal/model"
	"github.com/fujinet/game-alerts/internal/store"
)

const serverColumns = `serverurl, game, appkey, server, region, status, cur_players, max_players, total_updates, created_at, updated_at`

func scanServer(row scanner) (*model.ServerState, error) {
	var (
		s                model.ServerState
		created, updated int64
	)
	err := row.Scan(&s.ServerURL, &s.Game, &s.AppKey, &s.Server, &s.Region, &s.Status,
		&s.CurPlayers, &s.MaxPlayers, &s.TotalUpdates, &created, &updated)
	if err != nil {
		return nil, err
	}
	s.CreatedAt = fromMillis(created)
	s.UpdatedAt = fromMillis(updated)
	return &s, nil
}

// UpdateServer loads the server row, hands it to fn, and writes back the
// returned state and event in the same transaction.
func (s *Store) UpdateServer(ctx context.Context, serverURL string, fn store.ServerUpdateFunc) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		prev, err := scanServer(tx.QueryRowContext(ctx,
			`SELECT `+serverColumns+` FROM servers WHERE serverurl = ?`, serverURL))
		if errors.Is(err, sql.ErrNoRows) {
			prev = nil
		} else if err != nil {
			return fmt.Errorf("load server: %w", err)
		}

		next, event, err := fn(prev)
		if err != nil {
			return err
		}

		if next != nil {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO servers (`+serverColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(serverurl) DO UPDATE SET
					game = excluded.game,
					appkey = excluded.appkey,
					server = excluded.server,
					region = excluded.region,
					status = excluded.status,
					cur_players = excluded.cur_players,
					max_players = excluded.max_players,
					total_updates = excluded.total_updates,
					updated_at = excluded.updated_at`,
				serverURL, next.Game, next.AppKey, next.Server, next.Region, next.Status,
				next.CurPlayers, next.MaxPlayers, next.TotalUpdates,
				millis(next.CreatedAt), millis(next.UpdatedAt))
			if err != nil {
				return fmt.Errorf("save server: %w", err)
			}
		}

		if event != nil {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO events (id, serverurl, game, kind, cur_players, max_players, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				event.ID, event.ServerURL, event.Game, string(event.Kind),
				event.CurPlayers, event.MaxPlayers, millis(event.CreatedAt))
			if err != nil {
				return fmt.Errorf("append event: %w", err)
			}
		}
		return nil
	})
}

// GetServer returns one server or store.ErrNotFound.
func (s *Store) GetServer(ctx context.Context, serverURL string) (*model.ServerState, error) {
	st, err := scanServer(s.db.QueryRowContext(ctx,
		`SELECT `+serverColumns+` FROM servers WHERE serverurl = ?`, serverURL))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get server: %w", err)
	}
	return st, nil
}

// ListServers returns every tracked server ordered by URL.
func (s *Store) ListServers(ctx context.Context) ([]model.ServerState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+serverColumns+` FROM servers ORDER BY serverurl`)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	defer rows.Close()

	var out []model.ServerState
	for rows.Next() {
		st, err := scanServer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan server: %w", err)
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

// DeleteServer removes a server row and reports whether it existed.
func (s *Store) DeleteServer(ctx context.Context, serverURL string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM servers WHERE serverurl = ?`, serverURL)
	if err != nil {
		return false, fmt.Errorf("delete server: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// TouchIdleServer refreshes updated_at for a server that is still idle.
func (s *Store) TouchIdleServer(ctx context.Context, serverURL string, cutoff, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE servers SET updated_at = ?
		WHERE serverurl = ? AND cur_players = 0 AND updated_at < ?`,
		millis(now), serverURL, millis(cutoff))
	if err != nil {
		return false, fmt.Errorf("touch server: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListEvents returns the newest events first.
func (s *Store) ListEvents(ctx context.Context, limit int) ([]model.EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, serverurl, game, kind, cur_players, max_players, created_at
		FROM events ORDER BY created_at DESC, rowid DESC LIMIT ?`, store.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []model.EventRecord
	for rows.Next() {
		var (
			e       model.EventRecord
			kind    string
			created int64
		)
		if err := rows.Scan(&e.ID, &e.ServerURL, &e.Game, &kind, &e.CurPlayers, &e.MaxPlayers, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = model.EventKind(kind)
		e.CreatedAt = fromMillis(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountEvents returns the size of the event log.
func (s *Store) CountEvents(ctx context.Context) (int64, error) {
	n, err := count(ctx, s.db, `SELECT COUNT(*) FROM events`)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}
