package relay

import (
	"context"
	"fmt"

	"github.com/fujinet/game-alerts/internal/model"
	"github.com/fujinet/game-alerts/internal/policy"
)

// Sweep refreshes every idle server and posts one digest to chat. Each
// refresh is conditional in the store, so a server that reported in the
// meantime, or that a concurrent run already refreshed, is left alone and
// left out of the digest. Running it twice in a row is a no-op the second
// time.
func (e *Engine) Sweep(ctx context.Context) (policy.SweepResult, error) {
	states, err := e.store.ListServers(ctx)
	if err != nil {
		return policy.SweepResult{}, fmt.Errorf("list servers: %w", err)
	}

	now := e.clock()
	cutoff := now.Add(-e.opts.StaleAfter)
	picked := policy.Sweep(states, now, e.opts.StaleAfter)

	byURL := make(map[string]model.ServerState, len(states))
	for _, s := range states {
		byURL[s.ServerURL] = s
	}

	var touched []model.ServerState
	for _, url := range picked.Updated {
		ok, err := e.store.TouchIdleServer(ctx, url, cutoff, now)
		if err != nil {
			return policy.SweepResult{}, fmt.Errorf("refresh %s: %w", url, err)
		}
		if ok {
			touched = append(touched, byURL[url])
		}
	}

	res := policy.SweepResult{Updated: make([]string, 0, len(touched)), Digest: policy.Digest(touched)}
	for _, s := range touched {
		res.Updated = append(res.Updated, s.ServerURL)
	}

	e.logger.Info("idle sweep finished", "candidates", len(picked.Updated), "refreshed", len(res.Updated))
	if res.Digest != "" {
		e.sendChat(ctx, res.Digest)
	}
	return res, nil
}
