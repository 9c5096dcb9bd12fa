package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/fujinet/game-alerts/internal/model"
	"github.com/fujinet/game-alerts/internal/store"
)

// AppendSmsError records a delivery diagnostic and fills in its id.
func (s *Store) AppendSmsError(ctx context.Context, rec *model.SmsErrorRecord) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sms_errors (source, channel, destination, resource_sid, service_sid, error_code,
			error_message, callback_url, request_method, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Source, string(rec.Channel), rec.Destination, rec.ResourceSID, rec.ServiceSID, rec.ErrorCode,
		rec.ErrorMessage, rec.CallbackURL, rec.RequestMethod, rec.Details, millis(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("append sms error: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("append sms error: %w", err)
	}
	rec.ID = id
	return nil
}

// ListSmsErrors returns the newest diagnostics first.
func (s *Store) ListSmsErrors(ctx context.Context, limit int) ([]model.SmsErrorRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, channel, destination, resource_sid, service_sid, error_code,
			error_message, callback_url, request_method, details, created_at
		FROM sms_errors ORDER BY id DESC LIMIT ?`, store.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list sms errors: %w", err)
	}
	defer rows.Close()

	var out []model.SmsErrorRecord
	for rows.Next() {
		var (
			r       model.SmsErrorRecord
			channel string
			created int64
		)
		if err := rows.Scan(&r.ID, &r.Source, &channel, &r.Destination, &r.ResourceSID, &r.ServiceSID,
			&r.ErrorCode, &r.ErrorMessage, &r.CallbackURL, &r.RequestMethod, &r.Details, &created); err != nil {
			return nil, fmt.Errorf("scan sms error: %w", err)
		}
		r.Channel = model.Channel(channel)
		r.CreatedAt = fromMillis(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// --------------------------------------------------------------------------
// Leases
// --------------------------------------------------------------------------

// AcquireLease takes the named lease for owner until now+ttl. It succeeds
// when the lease is free, expired, or already held by owner.
func (s *Store) AcquireLease(ctx context.Context, name, owner string, ttl time.Duration, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO leases (name, owner, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET owner = excluded.owner, expires_at = excluded.expires_at
		WHERE leases.expires_at <= ? OR leases.owner = excluded.owner`,
		name, owner, millis(now.Add(ttl)), millis(now))
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ReleaseLease drops the lease if owner still holds it.
func (s *Store) ReleaseLease(ctx context.Context, name, owner string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM leases WHERE name = ? AND owner = ?`, name, owner); err != nil {
		return fmt.Errorf("release lease %s: %w", name, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Retention
// --------------------------------------------------------------------------

// PurgeSmsErrors deletes diagnostics recorded before the cutoff.
func (s *Store) PurgeSmsErrors(ctx context.Context, before time.Time) (int64, error) {
	return s.purge(ctx, "sms errors", `DELETE FROM sms_errors WHERE created_at < ?`, millis(before))
}

// PurgeUnconfirmedSubscribers deletes signups that never confirmed.
func (s *Store) PurgeUnconfirmedSubscribers(ctx context.Context, before time.Time) (int64, error) {
	return s.purge(ctx, "unconfirmed subscribers",
		`DELETE FROM subscribers WHERE confirmed = 0 AND created_at < ?`, millis(before))
}

// PurgeExpiredLeases deletes leases whose holder never released them.
func (s *Store) PurgeExpiredLeases(ctx context.Context, now time.Time) (int64, error) {
	return s.purge(ctx, "expired leases", `DELETE FROM leases WHERE expires_at <= ?`, millis(now))
}

func (s *Store) purge(ctx context.Context, what, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("purge %s: %w", what, err)
	}
	return res.RowsAffected()
}

// Stats returns the headline counts in one round trip.
func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	var st store.Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM servers),
			(SELECT COUNT(*) FROM subscribers),
			(SELECT COUNT(*) FROM subscribers WHERE confirmed = 1),
			(SELECT COUNT(*) FROM events),
			(SELECT COUNT(*) FROM sms_errors)`).
		Scan(&st.Servers, &st.Subscribers, &st.Confirmed, &st.Events, &st.SmsErrors)
	if err != nil {
		return st, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}
