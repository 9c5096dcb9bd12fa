// Package storetest is a conformance suite every store.Store backend runs
// from its own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fujinet/game-alerts/internal/model"
	"github.com/fujinet/game-alerts/internal/store"
)

// Base is the reference clock for the suite. Whole seconds survive every
// backend's timestamp precision.
var Base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// Opener returns an empty store that is closed when the test ends.
type Opener func(t *testing.T) store.Store

// Run executes the suite against the backend produced by open.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"ServerCreateAndUpdate", testServerCreateAndUpdate},
		{"ServerUpdateRollsBack", testServerUpdateRollsBack},
		{"ServerUpdatesSerialize", testServerUpdatesSerialize},
		{"DeleteServer", testDeleteServer},
		{"TouchIdleServer", testTouchIdleServer},
		{"EventsNewestFirst", testEventsNewestFirst},
		{"SubscriberUpsert", testSubscriberUpsert},
		{"SubscriberClaimIsExclusive", testSubscriberClaimIsExclusive},
		{"SmsErrors", testSmsErrors},
		{"Leases", testLeases},
		{"Retention", testRetention},
		{"Stats", testStats},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

func report(url string, cur int) func(prev *model.ServerState) (*model.ServerState, *model.EventRecord, error) {
	return func(prev *model.ServerState) (*model.ServerState, *model.EventRecord, error) {
		next := &model.ServerState{
			ServerURL: url, Game: "Reversi", AppKey: 7, Server: "fujinet", Region: "us",
			Status: "online", CurPlayers: cur, MaxPlayers: 4,
			TotalUpdates: 1, CreatedAt: Base, UpdatedAt: Base,
		}
		if prev != nil {
			next.TotalUpdates = prev.TotalUpdates + 1
			next.CreatedAt = prev.CreatedAt
			next.UpdatedAt = prev.UpdatedAt.Add(time.Second)
		}
		ev := &model.EventRecord{
			ID: uuid.NewString(), ServerURL: url, Game: next.Game, Kind: model.PlayerJoined,
			CurPlayers: cur, MaxPlayers: 4, CreatedAt: next.UpdatedAt,
		}
		return next, ev, nil
	}
}

func testServerCreateAndUpdate(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetServer(ctx, "http://a")
	require.ErrorIs(t, err, store.ErrNotFound)

	var sawNil bool
	require.NoError(t, s.UpdateServer(ctx, "http://a", func(prev *model.ServerState) (*model.ServerState, *model.EventRecord, error) {
		sawNil = prev == nil
		return report("http://a", 1)(prev)
	}))
	assert.True(t, sawNil)

	require.NoError(t, s.UpdateServer(ctx, "http://a", report("http://a", 2)))

	got, err := s.GetServer(ctx, "http://a")
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurPlayers)
	assert.Equal(t, 4, got.MaxPlayers)
	assert.Equal(t, 2, got.TotalUpdates)
	assert.Equal(t, "Reversi", got.Game)
	assert.Equal(t, 7, got.AppKey)
	assert.True(t, got.CreatedAt.Equal(Base))
	assert.True(t, got.UpdatedAt.Equal(Base.Add(time.Second)))

	n, err := s.CountEvents(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	all, err := s.ListServers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testServerUpdateRollsBack(t *testing.T, s store.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.UpdateServer(ctx, "http://a", func(prev *model.ServerState) (*model.ServerState, *model.EventRecord, error) {
		return nil, nil, boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetServer(ctx, "http://a")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// nil state with nil error writes nothing
	require.NoError(t, s.UpdateServer(ctx, "http://a", func(prev *model.ServerState) (*model.ServerState, *model.EventRecord, error) {
		return nil, nil, nil
	}))
	n, err := s.CountEvents(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testServerUpdatesSerialize(t *testing.T, s store.Store) {
	ctx := context.Background()
	const writers = 16

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.UpdateServer(ctx, "http://busy", report("http://busy", i%4))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.GetServer(ctx, "http://busy")
	require.NoError(t, err)
	assert.Equal(t, writers, got.TotalUpdates, "every update must see the previous one")

	n, err := s.CountEvents(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, writers, n)
}

func testDeleteServer(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.UpdateServer(ctx, "http://a", report("http://a", 0)))

	ok, err := s.DeleteServer(ctx, "http://a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.DeleteServer(ctx, "http://a")
	require.NoError(t, err)
	assert.False(t, ok)

	// the event log is untouched by deletes
	n, err := s.CountEvents(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func testTouchIdleServer(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.UpdateServer(ctx, "http://empty", report("http://empty", 0)))
	require.NoError(t, s.UpdateServer(ctx, "http://full", report("http://full", 3)))

	now := Base.Add(25 * time.Hour)
	cutoff := now.Add(-24 * time.Hour)

	ok, err := s.TouchIdleServer(ctx, "http://full", cutoff, now)
	require.NoError(t, err)
	assert.False(t, ok, "occupied servers are never refreshed")

	ok, err = s.TouchIdleServer(ctx, "http://empty", cutoff, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TouchIdleServer(ctx, "http://empty", cutoff, now)
	require.NoError(t, err)
	assert.False(t, ok, "second refresh is a no-op")

	got, err := s.GetServer(ctx, "http://empty")
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.Equal(now))
}

func testEventsNewestFirst(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		require.NoError(t, s.UpdateServer(ctx, "http://a", report("http://a", i)))
	}

	events, err := s.ListEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 3, events[0].CurPlayers)
	assert.Equal(t, 2, events[1].CurPlayers)
	assert.Equal(t, model.PlayerJoined, events[0].Kind)
	assert.NotEmpty(t, events[0].ID)
}

func testSubscriberUpsert(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetSubscriber(ctx, "+15550001")
	require.ErrorIs(t, err, store.ErrNotFound)

	saved, err := s.UpdateSubscriber(ctx, "+15550001", func(prev *model.Subscriber) (*model.Subscriber, error) {
		assert.Nil(t, prev)
		return &model.Subscriber{
			SMS: true, NotifyJoinLeave: true, Confirmed: false,
			VerificationCode: "123456", CodeIssuedAt: Base,
			PendingChannel: model.ChannelWhatsApp, CodeAttempts: 2,
			CreatedAt: Base, UpdatedAt: Base,
		}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "+15550001", saved.Phone)

	got, err := s.GetSubscriber(ctx, "+15550001")
	require.NoError(t, err)
	assert.True(t, got.SMS)
	assert.False(t, got.WhatsApp)
	assert.True(t, got.NotifyJoinLeave)
	assert.Equal(t, "123456", got.VerificationCode)
	assert.True(t, got.CodeIssuedAt.Equal(Base))
	assert.Equal(t, model.ChannelWhatsApp, got.PendingChannel)
	assert.Equal(t, 2, got.CodeAttempts)
	assert.True(t, got.LastNotified.IsZero())

	// nil result writes nothing
	none, err := s.UpdateSubscriber(ctx, "+15550001", func(prev *model.Subscriber) (*model.Subscriber, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = s.UpdateSubscriber(ctx, "+15550001", func(prev *model.Subscriber) (*model.Subscriber, error) {
		next := *prev
		next.Confirmed = true
		next.VerificationCode = ""
		next.CodeIssuedAt = time.Time{}
		next.LastNotified = Base.Add(time.Hour)
		return &next, nil
	})
	require.NoError(t, err)

	got, err = s.GetSubscriber(ctx, "+15550001")
	require.NoError(t, err)
	assert.True(t, got.Confirmed)
	assert.True(t, got.CodeIssuedAt.IsZero())
	assert.True(t, got.LastNotified.Equal(Base.Add(time.Hour)))
	assert.True(t, got.CreatedAt.Equal(Base))

	list, err := s.ListSubscribers(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	ok, err := s.DeleteSubscriber(ctx, "+15550001")
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = s.GetSubscriber(ctx, "+15550001")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testSubscriberClaimIsExclusive(t *testing.T, s store.Store) {
	ctx := context.Background()
	phone := "+15550002"
	_, err := s.UpdateSubscriber(ctx, phone, func(*model.Subscriber) (*model.Subscriber, error) {
		return &model.Subscriber{SMS: true, NotifyJoinLeave: true, Throttle: true, Confirmed: true, CreatedAt: Base, UpdatedAt: Base}, nil
	})
	require.NoError(t, err)

	const claimers = 12
	now := Base.Add(time.Hour)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed int
	)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := s.UpdateSubscriber(ctx, phone, func(prev *model.Subscriber) (*model.Subscriber, error) {
				if !prev.LastNotified.IsZero() && now.Sub(prev.LastNotified) < 24*time.Hour {
					return nil, nil
				}
				next := *prev
				next.LastNotified = now
				return &next, nil
			})
			assert.NoError(t, err)
			if got != nil {
				mu.Lock()
				claimed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, claimed, "a throttled subscriber is claimed exactly once")
}

func testSmsErrors(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		rec := &model.SmsErrorRecord{
			Source: model.ErrorSourceProvider, Channel: model.ChannelSMS,
			ResourceSID: fmt.Sprintf("SM%d", i), ErrorCode: "30003", ErrorMessage: "Unreachable",
			CreatedAt: Base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.AppendSmsError(ctx, rec))
		assert.NotZero(t, rec.ID)
	}

	list, err := s.ListSmsErrors(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "SM2", list[0].ResourceSID)
	assert.Equal(t, model.ChannelSMS, list[0].Channel)
	assert.Equal(t, "30003", list[0].ErrorCode)
}

func testLeases(t *testing.T, s store.Store) {
	ctx := context.Background()
	ttl := 10 * time.Minute

	ok, err := s.AcquireLease(ctx, "sweep", "a", ttl, Base)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcquireLease(ctx, "sweep", "b", ttl, Base.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "held lease blocks other owners")

	ok, err = s.AcquireLease(ctx, "sweep", "a", ttl, Base.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok, "owner may renew")

	ok, err = s.AcquireLease(ctx, "sweep", "b", ttl, Base.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok, "expired lease is taken over")

	require.NoError(t, s.ReleaseLease(ctx, "sweep", "a"), "stale owner release is harmless")
	ok, err = s.AcquireLease(ctx, "sweep", "c", ttl, Base.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "release by a stale owner must not free the lease")

	require.NoError(t, s.ReleaseLease(ctx, "sweep", "b"))
	ok, err = s.AcquireLease(ctx, "sweep", "c", ttl, Base.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)
}

func testRetention(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.AppendSmsError(ctx, &model.SmsErrorRecord{Source: model.ErrorSourceDelivery, ErrorMessage: "old", CreatedAt: Base}))
	require.NoError(t, s.AppendSmsError(ctx, &model.SmsErrorRecord{Source: model.ErrorSourceDelivery, ErrorMessage: "new", CreatedAt: Base.Add(48 * time.Hour)}))

	n, err := s.PurgeSmsErrors(ctx, Base.Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	for phone, confirmed := range map[string]bool{"+1": false, "+2": true} {
		_, err := s.UpdateSubscriber(ctx, phone, func(*model.Subscriber) (*model.Subscriber, error) {
			return &model.Subscriber{Confirmed: confirmed, CreatedAt: Base, UpdatedAt: Base}, nil
		})
		require.NoError(t, err)
	}
	n, err = s.PurgeUnconfirmedSubscribers(ctx, Base.Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	_, err = s.GetSubscriber(ctx, "+2")
	assert.NoError(t, err)

	_, err = s.AcquireLease(ctx, "old", "x", time.Minute, Base)
	require.NoError(t, err)
	n, err = s.PurgeExpiredLeases(ctx, Base.Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func testStats(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.UpdateServer(ctx, "http://a", report("http://a", 1)))
	require.NoError(t, s.UpdateServer(ctx, "http://b", report("http://b", 1)))
	_, err := s.UpdateSubscriber(ctx, "+1", func(*model.Subscriber) (*model.Subscriber, error) {
		return &model.Subscriber{Confirmed: true, CreatedAt: Base, UpdatedAt: Base}, nil
	})
	require.NoError(t, err)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, st.Servers)
	assert.EqualValues(t, 1, st.Subscribers)
	assert.EqualValues(t, 1, st.Confirmed)
	assert.EqualValues(t, 2, st.Events)
	assert.Zero(t, st.SmsErrors)

	require.NoError(t, s.Ping(ctx))
}
