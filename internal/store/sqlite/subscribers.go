package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fujinet/game-alerts/internal/model"
	"github.com/fujinet/game-alerts/internal/store"
)

const subscriberColumns = `phone, sms, whatsapp, notify_join_leave, notify_server_start, throttle,
	last_notified, confirmed, verification_code, code_issued_at, pending_channel, code_attempts,
	created_at, updated_at`

func scanSubscriber(row scanner) (*model.Subscriber, error) {
	var (
		sub                  model.Subscriber
		lastNotified, issued sql.NullInt64
		created, updated     int64
		pending              string
	)
	err := row.Scan(&sub.Phone, &sub.SMS, &sub.WhatsApp, &sub.NotifyJoinLeave, &sub.NotifyServerStart,
		&sub.Throttle, &lastNotified, &sub.Confirmed, &sub.VerificationCode, &issued,
		&pending, &sub.CodeAttempts, &created, &updated)
	if err != nil {
		return nil, err
	}
	sub.LastNotified = fromNullMillis(lastNotified)
	sub.CodeIssuedAt = fromNullMillis(issued)
	sub.PendingChannel = model.Channel(pending)
	sub.CreatedAt = fromMillis(created)
	sub.UpdatedAt = fromMillis(updated)
	return &sub, nil
}

// GetSubscriber returns one subscriber or store.ErrNotFound.
func (s *Store) GetSubscriber(ctx context.Context, phone string) (*model.Subscriber, error) {
	sub, err := scanSubscriber(s.db.QueryRowContext(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE phone = ?`, phone))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscriber: %w", err)
	}
	return sub, nil
}

// ListSubscribers returns every subscriber ordered by phone number.
func (s *Store) ListSubscribers(ctx context.Context) ([]model.Subscriber, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+subscriberColumns+` FROM subscribers ORDER BY phone`)
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

// UpdateSubscriber runs fn against the current row inside a write
// transaction and stores its result. It returns the stored row, or nil when
// fn chose not to write.
func (s *Store) UpdateSubscriber(ctx context.Context, phone string, fn store.SubscriberUpdateFunc) (*model.Subscriber, error) {
	var saved *model.Subscriber
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		prev, err := scanSubscriber(tx.QueryRowContext(ctx,
			`SELECT `+subscriberColumns+` FROM subscribers WHERE phone = ?`, phone))
		if errors.Is(err, sql.ErrNoRows) {
			prev = nil
		} else if err != nil {
			return fmt.Errorf("load subscriber: %w", err)
		}

		next, err := fn(prev)
		if err != nil || next == nil {
			return err
		}
		next.Phone = phone

		_, err = tx.ExecContext(ctx, `
			INSERT INTO subscribers (`+subscriberColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(phone) DO UPDATE SET
				sms = excluded.sms,
				whatsapp = excluded.whatsapp,
				notify_join_leave = excluded.notify_join_leave,
				notify_server_start = excluded.notify_server_start,
				throttle = excluded.throttle,
				last_notified = excluded.last_notified,
				confirmed = excluded.confirmed,
				verification_code = excluded.verification_code,
				code_issued_at = excluded.code_issued_at,
				pending_channel = excluded.pending_channel,
				code_attempts = excluded.code_attempts,
				updated_at = excluded.updated_at`,
			next.Phone, next.SMS, next.WhatsApp, next.NotifyJoinLeave, next.NotifyServerStart,
			next.Throttle, nullMillis(next.LastNotified), next.Confirmed, next.VerificationCode,
			nullMillis(next.CodeIssuedAt), string(next.PendingChannel), next.CodeAttempts, millis(next.CreatedAt), millis(next.UpdatedAt))
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
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscribers WHERE phone = ?`, phone)
	if err != nil {
		return false, fmt.Errorf("delete subscriber: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
