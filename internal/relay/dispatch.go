package relay

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fujinet/game-alerts/internal/model"
	"github.com/fujinet/game-alerts/internal/policy"
)

// dispatch posts text to chat and to every subscriber who may receive kind
// at now. Each subscriber is claimed in its own store transaction before
// any send, so a throttled subscriber gets at most one message per window
// however many reports race. ctx carries no deadline; each call below is
// bounded by step.
func (e *Engine) dispatch(ctx context.Context, kind model.EventKind, text string, now time.Time) {
	e.sendChat(ctx, text)

	listCtx, cancel := e.step(ctx)
	subs, err := e.store.ListSubscribers(listCtx)
	cancel()
	if err != nil {
		e.logger.Error("list subscribers failed", "event", kind, "error", err)
		return
	}

	var g errgroup.Group
	g.SetLimit(e.opts.Concurrency)

	sent, skipped := 0, 0
	for i := range subs {
		sub := subs[i]
		if !policy.ShouldNotify(&sub, kind, now, e.opts.ThrottleWindow) {
			skipped++
			continue
		}
		sent++
		g.Go(func() error {
			e.deliver(ctx, &sub, kind, text, now)
			return nil
		})
	}
	_ = g.Wait()

	e.logger.Info("event dispatched", "event", kind, "candidates", sent, "skipped", skipped)
}

// deliver claims the subscriber and sends text on each enabled channel. A
// failed claim is recorded against the channels the listing showed.
func (e *Engine) deliver(ctx context.Context, sub *model.Subscriber, kind model.EventKind, text string, now time.Time) {
	claimCtx, cancel := e.step(ctx)
	claimed, err := e.store.UpdateSubscriber(claimCtx, sub.Phone, func(prev *model.Subscriber) (*model.Subscriber, error) {
		if !policy.ShouldNotify(prev, kind, now, e.opts.ThrottleWindow) {
			return nil, nil
		}
		next := *prev
		next.LastNotified = now
		next.UpdatedAt = now
		return &next, nil
	})
	cancel()
	if err != nil {
		e.logger.Error("claim subscriber failed", "phone", sub.Phone, "error", err)
		for _, ch := range sub.Channels() {
			e.recordFailure(ctx, ch, sub.Phone, fmt.Errorf("claim subscriber: %w", err))
		}
		return
	}
	if claimed == nil {
		return
	}

	for _, ch := range claimed.Channels() {
		sendCtx, cancel := e.step(ctx)
		err := e.messages.Send(sendCtx, sub.Phone, text, ch)
		cancel()
		if err != nil {
			e.recordFailure(ctx, ch, sub.Phone, err)
		}
	}
}

func (e *Engine) sendChat(ctx context.Context, text string) {
	sendCtx, cancel := e.step(ctx)
	defer cancel()
	if err := e.chat.Send(sendCtx, text); err != nil {
		e.recordFailure(ctx, model.ChannelChat, "", err)
	}
}

// recordFailure logs an outbound failure and stores it as a diagnostic.
func (e *Engine) recordFailure(ctx context.Context, ch model.Channel, dest string, sendErr error) {
	e.logger.Warn("outbound send failed", "channel", ch, "to", dest, "error", sendErr)

	rec := &model.SmsErrorRecord{
		Source:       model.ErrorSourceDelivery,
		Channel:      ch,
		Destination:  dest,
		ErrorMessage: sendErr.Error(),
		CreatedAt:    e.clock(),
	}
	recCtx, cancel := e.step(context.WithoutCancel(ctx))
	defer cancel()
	if err := e.store.AppendSmsError(recCtx, rec); err != nil {
		e.logger.Error("record diagnostic failed", "channel", ch, "error", err)
	}
}
