package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/fujinet/game-alerts/internal/model"
	"github.com/fujinet/game-alerts/internal/policy"
)

// ErrMissingSender is returned for an inbound message without a From number.
var ErrMissingSender = errors.New("missing sender")

// HandleInbound applies a text command from a subscriber and returns the
// reply to send back. from is the provider address, possibly carrying the
// WhatsApp prefix.
func (e *Engine) HandleInbound(ctx context.Context, from, body string) (string, error) {
	phone, ch := model.SplitAddress(from)
	if phone == "" {
		return "", ErrMissingSender
	}

	cmd := policy.ParseCommand(body)
	e.logger.Info("inbound message", "from", phone, "channel", ch, "command", cmd)

	now := e.clock()
	switch cmd {
	case policy.OptIn:
		_, err := e.store.UpdateSubscriber(ctx, phone, func(prev *model.Subscriber) (*model.Subscriber, error) {
			next := model.Subscriber{CreatedAt: now}
			if prev != nil {
				next = *prev
			}
			next.NotifyJoinLeave = true
			next.NotifyServerStart = true
			next.Confirmed = true
			next.EnableChannel(ch)
			next.UpdatedAt = now
			return &next, nil
		})
		if err != nil {
			return "", fmt.Errorf("opt in %s: %w", phone, err)
		}
		return policy.OptInReply, nil

	case policy.OptOut:
		_, err := e.store.UpdateSubscriber(ctx, phone, func(prev *model.Subscriber) (*model.Subscriber, error) {
			if prev == nil {
				return nil, nil
			}
			next := *prev
			next.NotifyJoinLeave = false
			next.NotifyServerStart = false
			next.UpdatedAt = now
			return &next, nil
		})
		if err != nil {
			return "", fmt.Errorf("opt out %s: %w", phone, err)
		}
		return policy.OptOutReply, nil

	default:
		n, err := e.store.CountEvents(ctx)
		if err != nil {
			return "", fmt.Errorf("count events: %w", err)
		}
		return policy.HelpMessage(n), nil
	}
}

// RecordProviderError stores a failure reported by the telephony provider's
// error webhook.
func (e *Engine) RecordProviderError(ctx context.Context, rec *model.SmsErrorRecord) error {
	rec.Source = model.ErrorSourceProvider
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = e.clock()
	}
	if err := e.store.AppendSmsError(ctx, rec); err != nil {
		return err
	}
	e.logger.Warn("provider reported delivery error",
		"error_code", rec.ErrorCode, "resource_sid", rec.ResourceSID, "message", rec.ErrorMessage)
	return nil
}
