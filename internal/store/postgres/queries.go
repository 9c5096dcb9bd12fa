package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fujinet/game-alerts/internal/model"
	"github.com/fujinet/game-alerts/internal/store"
)

// --------------------------------------------------------------------------
// Servers
// --------------------------------------------------------------------------

func scanServer(row pgx.Row) (*model.ServerState, error) {
	var s model.ServerState
	err := row.Scan(&s.ServerURL, &s.Game, &s.AppKey, &s.Server, &s.Region, &s.Status,
		&s.CurPlayers, &s.MaxPlayers, &s.TotalUpdates, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}

// UpdateServer serializes on an advisory lock for serverURL, hands the
// current row to fn, and writes the new state and event in one transaction.
// The event is also published with pg_notify, delivered on commit.
func (s *Store) UpdateServer(ctx context.Context, serverURL string, fn store.ServerUpdateFunc) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockKey(ctx, tx, "server", serverURL); err != nil {
			return err
		}

		prev, err := scanServer(tx.QueryRow(ctx, "server_get", serverURL))
		if errors.Is(err, pgx.ErrNoRows) {
			prev = nil
		} else if err != nil {
			return fmt.Errorf("load server: %w", err)
		}

		next, event, err := fn(prev)
		if err != nil {
			return err
		}

		if next != nil {
			_, err = tx.Exec(ctx, "server_upsert",
				serverURL, next.Game, next.AppKey, next.Server, next.Region, next.Status,
				next.CurPlayers, next.MaxPlayers, next.TotalUpdates, next.CreatedAt, next.UpdatedAt)
			if err != nil {
				return fmt.Errorf("save server: %w", err)
			}
		}

		if event != nil {
			_, err = tx.Exec(ctx, "event_insert",
				event.ID, event.ServerURL, event.Game, string(event.Kind),
				event.CurPlayers, event.MaxPlayers, event.CreatedAt)
			if err != nil {
				return fmt.Errorf("append event: %w", err)
			}

			payload, err := json.Marshal(event)
			if err != nil {
				return fmt.Errorf("encode event: %w", err)
			}
			if _, err := tx.Exec(ctx, "event_notify", string(payload)); err != nil {
				return fmt.Errorf("notify event: %w", err)
			}
		}
		return nil
	})
}

// GetServer returns one server or store.ErrNotFound.
func (s *Store) GetServer(ctx context.Context, serverURL string) (*model.ServerState, error) {
	st, err := scanServer(s.pool.QueryRow(ctx, "server_get", serverURL))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get server: %w", err)
	}
	return st, nil
}

// ListServers returns every tracked server ordered by URL.
func (s *Store) ListServers(ctx context.Context) ([]model.ServerState, error) {
	rows, err := s.pool.Query(ctx, "server_list")
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
	tag, err := s.pool.Exec(ctx, "server_delete", serverURL)
	if err != nil {
		return false, fmt.Errorf("delete server: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// TouchIdleServer refreshes updated_at for a server that is still idle.
func (s *Store) TouchIdleServer(ctx context.Context, serverURL string, cutoff, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, "server_touch_idle", serverURL, cutoff, now)
	if err != nil {
		return false, fmt.Errorf("touch server: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// --------------------------------------------------------------------------
// Events
// --------------------------------------------------------------------------

// ListEvents returns the newest events first.
func (s *Store) ListEvents(ctx context.Context, limit int) ([]model.EventRecord, error) {
	rows, err := s.pool.Query(ctx, "event_list", store.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []model.EventRecord
	for rows.Next() {
		var (
			e    model.EventRecord
			kind string
		)
		if err := rows.Scan(&e.ID, &e.ServerURL, &e.Game, &kind, &e.CurPlayers, &e.MaxPlayers, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = model.EventKind(kind)
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountEvents returns the size of the event log.
func (s *Store) CountEvents(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, "event_count").Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// --------------------------------------------------------------------------
// Subscribers
// --------------------------------------------------------------------------

func scanSubscriber(row pgx.Row) (*model.Subscriber, error) {
	var (
		sub                  model.Subscriber
		lastNotified, issued *time.Time
		pending              string
	)
	err := row.Scan(&sub.Phone, &sub.SMS, &sub.WhatsApp, &sub.NotifyJoinLeave, &sub.NotifyServerStart,
		&sub.Throttle, &lastNotified, &sub.Confirmed, &sub.VerificationCode, &issued,
		&pending, &sub.CodeAttempts, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sub.LastNotified = fromNullTime(lastNotified)
	sub.CodeIssuedAt = fromNullTime(issued)
	sub.PendingChannel = model.Channel(pending)
	sub.CreatedAt = sub.CreatedAt.UTC()
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	return &sub, nil
}

// GetSubscriber returns one subscriber or store.ErrNotFound.
func (s *Store) GetSubscriber(ctx context.Context, phone string) (*model.Subscriber, error) {
	sub, err := scanSubscriber(s.pool.QueryRow(ctx, "subscriber_get", phone))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscriber: %w", err)
	}
	return sub, nil
}

// ListSubscribers returns every subscriber ordered by phone number.
func (s *Store) ListSubscribers(ctx context.Context) ([]model.Subscriber, error) {
	rows, err := s.pool.Query(ctx, "subscriber_list")
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	var out []model.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		out = append(out, *sub)
	}
	return out, rows.Err()
}

// UpdateSubscriber serializes on an advisory lock for phone and stores what
// fn returns. It returns the stored row, or nil when fn chose not to write.
func (s *Store) UpdateSubscriber(ctx context.Context, phone string, fn store.SubscriberUpdateFunc) (*model.Subscriber, error) {
	var saved *model.Subscriber
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockKey(ctx, tx, "subscriber", phone); err != nil {
			return err
		}

		prev, err := scanSubscriber(tx.QueryRow(ctx, "subscriber_get", phone))
		if errors.Is(err, pgx.ErrNoRows) {
			prev = nil
		} else if err != nil {
			return fmt.Errorf("load subscriber: %w", err)
		}

		next, err := fn(prev)
		if err != nil || next == nil {
			return err
		}
		next.Phone = phone

		_, err = tx.Exec(ctx, "subscriber_upsert",
			next.Phone, next.SMS, next.WhatsApp, next.NotifyJoinLeave, next.NotifyServerStart,
			next.Throttle, nullTime(next.LastNotified), next.Confirmed, next.VerificationCode,
			nullTime(next.CodeIssuedAt), string(next.PendingChannel), next.CodeAttempts, next.CreatedAt, next.UpdatedAt)
		if err != nil {
			return fmt.Errorf("save subscriber: %w", err)
		}
		saved = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// DeleteSubscriber erases a subscriber and reports whether it existed.
func (s *Store) DeleteSubscriber(ctx context.Context, phone string) (bool, error) {
	tag, err := s.pool.Exec(ctx, "subscriber_delete", phone)
	if err != nil {
		return false, fmt.Errorf("delete subscriber: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// --------------------------------------------------------------------------
// Diagnostics, leases and retention
// --------------------------------------------------------------------------

// AppendSmsError records a delivery diagnostic and fills in its id.
func (s *Store) AppendSmsError(ctx context.Context, rec *model.SmsErrorRecord) error {
	err := s.pool.QueryRow(ctx, "sms_error_insert",
		rec.Source, string(rec.Channel), rec.Destination, rec.ResourceSID, rec.ServiceSID, rec.ErrorCode,
		rec.ErrorMessage, rec.CallbackURL, rec.RequestMethod, rec.Details, rec.CreatedAt).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("append sms error: %w", err)
	}
	return nil
}

// ListSmsErrors returns the newest diagnostics first.
func (s *Store) ListSmsErrors(ctx context.Context, limit int) ([]model.SmsErrorRecord, error) {
	rows, err := s.pool.Query(ctx, "sms_error_list", store.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list sms errors: %w", err)
	}
	defer rows.Close()

	var out []model.SmsErrorRecord
	for rows.Next() {
		var (
			r       model.SmsErrorRecord
			channel string
		)
		if err := rows.Scan(&r.ID, &r.Source, &channel, &r.Destination, &r.ResourceSID, &r.ServiceSID,
			&r.ErrorCode, &r.ErrorMessage, &r.CallbackURL, &r.RequestMethod, &r.Details, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan sms error: %w", err)
		}
		r.Channel = model.Channel(channel)
		r.CreatedAt = r.CreatedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// AcquireLease takes the named lease for owner until now+ttl. It succeeds
// when the lease is free, expired, or already held by owner.
func (s *Store) AcquireLease(ctx context.Context, name, owner string, ttl time.Duration, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, "lease_acquire", name, owner, now.Add(ttl), now)
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", name, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseLease drops the lease if owner still holds it.
func (s *Store) ReleaseLease(ctx context.Context, name, owner string) error {
	if _, err := s.pool.Exec(ctx, "lease_release", name, owner); err != nil {
		return fmt.Errorf("release lease %s: %w", name, err)
	}
	return nil
}

// PurgeSmsErrors deletes diagnostics recorded before the cutoff.
func (s *Store) PurgeSmsErrors(ctx context.Context, before time.Time) (int64, error) {
	return s.purge(ctx, "purge_sms_errors", before)
}

// PurgeUnconfirmedSubscribers deletes signups that never confirmed.
func (s *Store) PurgeUnconfirmedSubscribers(ctx context.Context, before time.Time) (int64, error) {
	return s.purge(ctx, "purge_unconfirmed", before)
}

// PurgeExpiredLeases deletes leases whose holder never released them.
func (s *Store) PurgeExpiredLeases(ctx context.Context, now time.Time) (int64, error) {
	return s.purge(ctx, "purge_leases", now)
}

func (s *Store) purge(ctx context.Context, stmt string, t time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, stmt, t)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", stmt, err)
	}
	return tag.RowsAffected(), nil
}

// Stats returns the headline counts in one round trip.
func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	var st store.Stats
	err := s.pool.QueryRow(ctx, "stats").
		Scan(&st.Servers, &st.Subscribers, &st.Confirmed, &st.Events, &st.SmsErrors)
	if err != nil {
		return st, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}
