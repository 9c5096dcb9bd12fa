package maintenance

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fujinet/game-alerts/internal/lock"
	"github.com/fujinet/game-alerts/internal/model"
	"github.com/fujinet/game-alerts/internal/policy"
	"github.com/fujinet/game-alerts/internal/store"
	"github.com/fujinet/game-alerts/internal/store/sqlite"
)

type blockingSweeper struct {
	calls   atomic.Int32
	started chan struct{}
	unblock chan struct{}
}

func (b *blockingSweeper) Sweep(ctx context.Context) (policy.SweepResult, error) {
	b.calls.Add(1)
	if b.started != nil {
		close(b.started)
		<-b.unblock
	}
	return policy.SweepResult{Updated: []string{"http://a"}}, nil
}

func openStore(t *testing.T) store.Store {
	t.Helper()
	st, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "maint.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNextDaily(t *testing.T) {
	at := 4 * time.Hour
	tests := []struct {
		now  time.Time
		want time.Time
	}{
		{time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC), time.Date(2024, 3, 1, 4, 0, 0, 0, time.UTC)},
		{time.Date(2024, 3, 1, 4, 0, 0, 0, time.UTC), time.Date(2024, 3, 2, 4, 0, 0, 0, time.UTC)},
		{time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC), time.Date(2024, 3, 2, 4, 0, 0, 0, time.UTC)},
		{time.Date(2024, 2, 29, 5, 0, 0, 0, time.UTC), time.Date(2024, 3, 1, 4, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NextDaily(tt.now, at), "now=%s", tt.now)
	}

	// non-UTC input is scheduled in UTC
	ny := time.FixedZone("EST", -5*3600)
	assert.Equal(t, time.Date(2024, 3, 2, 4, 0, 0, 0, time.UTC), NextDaily(time.Date(2024, 3, 1, 22, 0, 0, 0, ny), at))
}

func TestRunSweepNeverOverlapsInProcess(t *testing.T) {
	st := openStore(t)
	sw := &blockingSweeper{started: make(chan struct{}), unblock: make(chan struct{})}
	r := NewRunner(st, sw, lock.NewStoreLocker(st, quiet()), DefaultConfig(), quiet())

	done := make(chan bool)
	go func() {
		_, ran, err := r.RunSweep(context.Background())
		assert.NoError(t, err)
		done <- ran
	}()
	<-sw.started

	_, ran, err := r.RunSweep(context.Background())
	require.NoError(t, err)
	assert.False(t, ran, "overlapping run is skipped")

	close(sw.unblock)
	assert.True(t, <-done)
	assert.EqualValues(t, 1, sw.calls.Load())
}

func TestRunSweepRespectsCrossProcessLock(t *testing.T) {
	st := openStore(t)
	sw := &blockingSweeper{}
	locker := lock.NewStoreLocker(st, quiet())
	r := NewRunner(st, sw, locker, DefaultConfig(), quiet())

	// another host holds the lease
	release, ok, err := locker.Acquire(context.Background(), SweepLockName, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ran, err := r.RunSweep(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)

	release()
	res, ran, err := r.RunSweep(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, []string{"http://a"}, res.Updated)
}

func TestCleanup(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, st.AppendSmsError(ctx, &model.SmsErrorRecord{Source: model.ErrorSourceDelivery, ErrorMessage: "old", CreatedAt: now.Add(-100 * 24 * time.Hour)}))
	require.NoError(t, st.AppendSmsError(ctx, &model.SmsErrorRecord{Source: model.ErrorSourceDelivery, ErrorMessage: "recent", CreatedAt: now.Add(-time.Hour)}))
	for phone, created := range map[string]time.Time{"+1old": now.Add(-8 * 24 * time.Hour), "+1new": now.Add(-time.Hour)} {
		_, err := st.UpdateSubscriber(ctx, phone, func(*model.Subscriber) (*model.Subscriber, error) {
			return &model.Subscriber{CreatedAt: created, UpdatedAt: created}, nil
		})
		require.NoError(t, err)
	}
	require.NoError(t, st.UpdateServer(ctx, "http://a", func(*model.ServerState) (*model.ServerState, *model.EventRecord, error) {
		old := now.Add(-365 * 24 * time.Hour)
		return &model.ServerState{ServerURL: "http://a", CreatedAt: old, UpdatedAt: old},
			&model.EventRecord{ID: "e1", ServerURL: "http://a", Kind: model.ServerStarted, CreatedAt: old}, nil
	}))

	r := NewRunner(st, &blockingSweeper{}, lock.NewStoreLocker(st, quiet()), DefaultConfig(), quiet())
	r.now = func() time.Time { return now }
	r.Cleanup(ctx)

	diags, err := st.ListSmsErrors(ctx, 10)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, "recent", diags[0].ErrorMessage)

	subs, err := st.ListSubscribers(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "+1new", subs[0].Phone)

	n, err := st.CountEvents(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "events are never purged")
}

func TestStartStopsOnCancel(t *testing.T) {
	st := openStore(t)
	sw := &blockingSweeper{}
	cfg := DefaultConfig()
	cfg.CleanupInterval = 10 * time.Millisecond
	r := NewRunner(st, sw, lock.NewStoreLocker(st, quiet()), cfg, quiet())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(stopped)
	}()

	require.Eventually(t, func() bool { return sw.calls.Load() == 1 }, time.Second, 5*time.Millisecond, "sweep runs on start")
	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestRunLoopTagsTicksWithTaskName(t *testing.T) {
	var buf bytes.Buffer
	r := NewRunner(openStore(t), &blockingSweeper{}, nil, DefaultConfig(),
		slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	ctx, cancel := context.WithCancel(context.Background())
	ticks := make(chan time.Time, 1)
	ticks <- time.Now()

	var runs atomic.Int32
	r.runLoop(ctx, ticks, "cleanup", func() {
		runs.Add(1)
		cancel()
	})

	assert.EqualValues(t, 1, runs.Load())
	assert.Contains(t, buf.String(), "task=cleanup")
}
