// Package relay is the request-facing core: it turns lobby reports,
// inbound text messages and provider callbacks into stored state, event
// records and outbound notifications.
//
// State changes commit first. Notifications go out afterwards on a
// background goroutine. Every outbound call and store access made there gets
// its own timeout, and a failed send is logged and stored as a diagnostic
// without touching the committed state.
package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fujinet/game-alerts/internal/model"
	"github.com/fujinet/game-alerts/internal/notify"
	"github.com/fujinet/game-alerts/internal/policy"
	"github.com/fujinet/game-alerts/internal/store"
)

// ErrInvalidReport is returned for reports rejected before any write.
var ErrInvalidReport = policy.ErrInvalidReport

// Publisher receives every committed event, for live feeds.
type Publisher interface {
	Publish(model.EventRecord)
}

// Options tunes the engine. Zero values fall back to the defaults.
// DispatchTimeout bounds each single outbound call, not a whole fan-out.
type Options struct {
	ThrottleWindow     time.Duration
	StaleAfter         time.Duration
	RefreshOnHeartbeat bool
	DispatchTimeout    time.Duration
	Concurrency        int
}

func (o Options) withDefaults() Options {
	if o.ThrottleWindow <= 0 {
		o.ThrottleWindow = policy.DefaultThrottleWindow
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = policy.DefaultStaleAfter
	}
	if o.DispatchTimeout <= 0 {
		o.DispatchTimeout = 10 * time.Second
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	return o
}

// Engine wires the policy to a store and the outbound sinks.
type Engine struct {
	store     store.Store
	chat      notify.ChatSink
	messages  notify.MessageSink
	publisher Publisher
	logger    *slog.Logger
	opts      Options

	now     func() time.Time
	pending sync.WaitGroup
}

// New builds an engine. publisher may be nil when events are broadcast
// some other way (the Postgres backend uses NOTIFY).
func New(st store.Store, chat notify.ChatSink, messages notify.MessageSink, publisher Publisher, opts Options, logger *slog.Logger) *Engine {
	return &Engine{
		store:     st,
		chat:      chat,
		messages:  messages,
		publisher: publisher,
		logger:    logger,
		opts:      opts.withDefaults(),
		now:       time.Now,
	}
}

// SetClock replaces the engine's time source.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Store exposes the backing store to read-only handlers.
func (e *Engine) Store() store.Store {
	return e.store
}

// Wait blocks until every background dispatch has finished.
func (e *Engine) Wait() {
	e.pending.Wait()
}

// background runs fn after the request has committed, detached from the
// request's cancellation. fn bounds its own calls with step.
func (e *Engine) background(ctx context.Context, fn func(ctx context.Context)) {
	e.pending.Add(1)
	go func() {
		defer e.pending.Done()
		fn(context.WithoutCancel(ctx))
	}()
}

// step derives the context for one outbound call or store access.
func (e *Engine) step(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.opts.DispatchTimeout)
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}
