package maintenance

import "context"

// Cleanup removes diagnostics past retention, signups that never confirmed,
// and leases whose holder died. The event log is never purged.
func (r *Runner) Cleanup(ctx context.Context) {
	now := r.now().UTC()

	if r.cfg.DiagnosticRetention > 0 {
		n, err := r.store.PurgeSmsErrors(ctx, now.Add(-r.cfg.DiagnosticRetention))
		r.report("diagnostics", n, err)
	}

	if r.cfg.UnconfirmedRetention > 0 {
		n, err := r.store.PurgeUnconfirmedSubscribers(ctx, now.Add(-r.cfg.UnconfirmedRetention))
		r.report("unconfirmed subscribers", n, err)
	}

	n, err := r.store.PurgeExpiredLeases(ctx, now)
	r.report("expired leases", n, err)
}

func (r *Runner) report(what string, n int64, err error) {
	switch {
	case err != nil:
		r.logger.Warn("Cleanup: failed to purge "+what, "error", err)
	case n > 0:
		r.logger.Info("Cleanup: purged "+what, "count", n)
	}
}
