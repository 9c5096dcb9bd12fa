// Package store defines the persistence contract the relay runs on. Two
// backends implement it: sqlite (the default single-host file) and postgres.
//
// Every read-modify-write goes through a callback executed inside one
// transaction that holds a per-key lock, so concurrent requests for the same
// server or subscriber are serialized and the state change and its event
// record commit together.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/fujinet/game-alerts/internal/model"
)

// ErrNotFound is returned when a keyed row does not exist.
var ErrNotFound = errors.New("not found")

// ServerUpdateFunc receives the current state (nil when the server is new)
// and returns the state to store plus an optional event to append. A nil
// next leaves the row untouched. A non-nil error aborts the transaction.
type ServerUpdateFunc func(prev *model.ServerState) (next *model.ServerState, event *model.EventRecord, err error)

// SubscriberUpdateFunc receives the current subscriber (nil when unknown)
// and returns the row to store. A nil result writes nothing.
type SubscriberUpdateFunc func(prev *model.Subscriber) (*model.Subscriber, error)

// Stats are the headline row counts.
type Stats struct {
	Servers     int64 `json:"servers"`
	Subscribers int64 `json:"subscribers"`
	Confirmed   int64 `json:"confirmed_subscribers"`
	Events      int64 `json:"events"`
	SmsErrors   int64 `json:"sms_errors"`
}

// Store is implemented by each backend.
type Store interface {
	// Servers
	UpdateServer(ctx context.Context, serverURL string, fn ServerUpdateFunc) error
	GetServer(ctx context.Context, serverURL string) (*model.ServerState, error)
	ListServers(ctx context.Context) ([]model.ServerState, error)
	DeleteServer(ctx context.Context, serverURL string) (bool, error)
	// TouchIdleServer sets updated-at to now only if the server is still
	// empty and was last updated before cutoff.
	TouchIdleServer(ctx context.Context, serverURL string, cutoff, now time.Time) (bool, error)

	// Events
	ListEvents(ctx context.Context, limit int) ([]model.EventRecord, error)
	CountEvents(ctx context.Context) (int64, error)

	// Subscribers
	GetSubscriber(ctx context.Context, phone string) (*model.Subscriber, error)
	ListSubscribers(ctx context.Context) ([]model.Subscriber, error)
	UpdateSubscriber(ctx context.Context, phone string, fn SubscriberUpdateFunc) (*model.Subscriber, error)
	DeleteSubscriber(ctx context.Context, phone string) (bool, error)

	// Diagnostics
	AppendSmsError(ctx context.Context, rec *model.SmsErrorRecord) error
	ListSmsErrors(ctx context.Context, limit int) ([]model.SmsErrorRecord, error)

	// Leases guard jobs that must not run on two hosts at once.
	AcquireLease(ctx context.Context, name, owner string, ttl time.Duration, now time.Time) (bool, error)
	ReleaseLease(ctx context.Context, name, owner string) error

	// Retention
	PurgeSmsErrors(ctx context.Context, before time.Time) (int64, error)
	PurgeUnconfirmedSubscribers(ctx context.Context, before time.Time) (int64, error)
	PurgeExpiredLeases(ctx context.Context, now time.Time) (int64, error)

	Stats(ctx context.Context) (Stats, error)
	Ping(ctx context.Context) error
	Close() error
}

// DefaultListLimit caps list queries when the caller passes a non-positive
// limit.
const DefaultListLimit = 100

// MaxListLimit is the largest page a list query returns.
const MaxListLimit = 1000

// ClampLimit normalizes a caller-supplied page size.
func ClampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultListLimit
	case n > MaxListLimit:
		return MaxListLimit
	default:
		return n
	}
}
