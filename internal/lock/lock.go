// Package lock provides expiring cross-process locks for background jobs.
// A holder that dies mid-run never releases its lock; the TTL frees it.
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fujinet/game-alerts/internal/store"
)

// Locker takes a named lock for at most ttl. When ok is true the caller
// must call release once the guarded work is done.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error)
}

// --------------------------------------------------------------------------
// Store leases
// --------------------------------------------------------------------------

// StoreLocker keeps leases in the relay's own database.
type StoreLocker struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewStoreLocker builds a locker on st.
func NewStoreLocker(st store.Store, logger *slog.Logger) *StoreLocker {
	return &StoreLocker{store: st, logger: logger, now: time.Now}
}

func (l *StoreLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	owner := uuid.NewString()
	ok, err := l.store.AcquireLease(ctx, name, owner, ttl, l.now().UTC())
	if err != nil || !ok {
		return nil, false, err
	}
	release := func() {
		if err := l.store.ReleaseLease(context.WithoutCancel(ctx), name, owner); err != nil {
			l.logger.Warn("lease release failed, waiting out its ttl", "lock", name, "error", err)
		}
	}
	return release, true, nil
}

// --------------------------------------------------------------------------
// Redis
// --------------------------------------------------------------------------

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker uses SET NX PX on a shared Redis.
type RedisLocker struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisLocker builds a locker on client. Keys are namespaced by prefix.
func NewRedisLocker(client *redis.Client, prefix string, logger *slog.Logger) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix, logger: logger}
}

func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	key := l.prefix + name
	owner := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		if err := releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{key}, owner).Err(); err != nil {
			l.logger.Warn("redis lock release failed, waiting out its ttl", "key", key, "error", err)
		}
	}
	return release, true, nil
}
