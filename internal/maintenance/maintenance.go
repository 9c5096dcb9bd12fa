// Package maintenance runs the relay's background tasks as Go timers: the
// daily idle-server sweep and periodic retention cleanup. These are the only
// goroutines the relay starts on its own.
package maintenance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fujinet/game-alerts/internal/lock"
	"github.com/fujinet/game-alerts/internal/policy"
	"github.com/fujinet/game-alerts/internal/store"
)

// SweepLockName names the cross-process lock guarding the sweep.
const SweepLockName = "daily-sweep"

// Sweeper performs one idle-server pass.
type Sweeper interface {
	Sweep(ctx context.Context) (policy.SweepResult, error)
}

// Config controls task schedules. Zero durations disable the interval
// tasks and retention purges.
type Config struct {
	SweepEnabled         bool
	SweepAt              time.Duration // offset from 00:00 UTC
	SweepLease           time.Duration
	SweepOnStart         bool
	CleanupInterval      time.Duration
	DiagnosticRetention  time.Duration
	UnconfirmedRetention time.Duration
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		SweepEnabled:         true,
		SweepAt:              4 * time.Hour,
		SweepLease:           15 * time.Minute,
		SweepOnStart:         true,
		CleanupInterval:      6 * time.Hour,
		DiagnosticRetention:  90 * 24 * time.Hour,
		UnconfirmedRetention: 7 * 24 * time.Hour,
	}
}

// Runner owns the background tasks.
type Runner struct {
	store   store.Store
	sweeper Sweeper
	locker  lock.Locker
	cfg     Config
	logger  *slog.Logger

	running sync.Mutex
	now     func() time.Time
}

// NewRunner wires the tasks. locker guards the sweep across processes.
func NewRunner(st store.Store, sweeper Sweeper, locker lock.Locker, cfg Config, logger *slog.Logger) *Runner {
	if cfg.SweepLease <= 0 {
		cfg.SweepLease = DefaultConfig().SweepLease
	}
	return &Runner{store: st, sweeper: sweeper, locker: locker, cfg: cfg, logger: logger, now: time.Now}
}

// Start launches all configured tasks. Blocks until ctx is cancelled.
// Intended to be called with `go`.
func (r *Runner) Start(ctx context.Context) {
	r.logger.Info("Maintenance tasks started",
		"sweep", r.cfg.SweepEnabled,
		"sweep_at", r.cfg.SweepAt,
		"cleanup", r.cfg.CleanupInterval)

	var wg sync.WaitGroup

	if r.cfg.SweepEnabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.cfg.SweepOnStart {
				r.sweep(ctx)
			}
			r.dailyLoop(ctx, r.cfg.SweepAt, "sweep", func() { r.sweep(ctx) })
		}()
	}

	if r.cfg.CleanupInterval > 0 {
		t := time.NewTicker(r.cfg.CleanupInterval)
		defer t.Stop()
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.runLoop(ctx, t.C, "cleanup", func() { r.Cleanup(ctx) })
		}()
	}

	<-ctx.Done()
	wg.Wait()
	r.logger.Info("Maintenance tasks stopped")
}

func (r *Runner) runLoop(ctx context.Context, ch <-chan time.Time, name string, fn func()) {
	for {
		select {
		case <-ch:
			r.logger.Debug("task tick", "task", name)
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// dailyLoop runs fn once a day at the given offset from UTC midnight.
func (r *Runner) dailyLoop(ctx context.Context, at time.Duration, name string, fn func()) {
	for {
		next := NextDaily(r.now(), at)
		r.logger.Debug("next run scheduled", "task", name, "at", next)

		t := time.NewTimer(time.Until(next))
		select {
		case <-t.C:
			fn()
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
}

// NextDaily returns the first instant strictly after now that falls at
// offset past 00:00 UTC.
func NextDaily(now time.Time, offset time.Duration) time.Time {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	next := midnight.Add(offset)
	for !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// --------------------------------------------------------------------------
// Task implementations
// --------------------------------------------------------------------------

func (r *Runner) sweep(ctx context.Context) {
	if _, ran, err := r.RunSweep(ctx); err != nil {
		r.logger.Warn("Sweep: failed", "error", err)
	} else if !ran {
		r.logger.Info("Sweep: skipped, another run holds the lock")
	}
}

// RunSweep performs one guarded sweep. ran is false when another run, in
// this process or elsewhere, holds the lock.
func (r *Runner) RunSweep(ctx context.Context) (res policy.SweepResult, ran bool, err error) {
	if !r.running.TryLock() {
		return res, false, nil
	}
	defer r.running.Unlock()

	release, ok, err := r.locker.Acquire(ctx, SweepLockName, r.cfg.SweepLease)
	if err != nil || !ok {
		return res, false, err
	}
	defer release()

	res, err = r.sweeper.Sweep(ctx)
	if err != nil {
		return res, true, err
	}
	return res, true, nil
}
