package policy

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fujinet/game-alerts/internal/model"
)

// ErrInvalidReport marks a report that must be rejected without touching
// any state.
var ErrInvalidReport = errors.New("invalid report")

// Validate checks the fields a report needs before it can be classified.
func Validate(r model.Report) error {
	if strings.TrimSpace(r.ServerURL) == "" {
		return fmt.Errorf("%w: serverurl is required", ErrInvalidReport)
	}
	if r.CurPlayers < 0 {
		return fmt.Errorf("%w: curplayers must not be negative", ErrInvalidReport)
	}
	if r.MaxPlayers < 0 {
		return fmt.Errorf("%w: maxplayers must not be negative", ErrInvalidReport)
	}
	if r.MaxPlayers > 0 && r.CurPlayers > r.MaxPlayers {
		return fmt.Errorf("%w: curplayers %d exceeds maxplayers %d", ErrInvalidReport, r.CurPlayers, r.MaxPlayers)
	}
	return nil
}

// Classify labels the transition from prev to in. A nil prev means the
// server has never reported before.
func Classify(prev *model.ServerState, in model.Report) model.EventKind {
	if prev == nil {
		return model.ServerStarted
	}
	switch {
	case prev.CurPlayers < in.CurPlayers:
		return model.PlayerJoined
	case prev.CurPlayers > 0 && in.CurPlayers == 0:
		return model.LastPlayerLeft
	case prev.CurPlayers > in.CurPlayers:
		return model.PlayerLeft
	default:
		return model.NoChange
	}
}

// Apply folds a report into the stored state. refreshOnHeartbeat controls
// whether a no_change report counts as a liveness signal for the sweep.
// UpdatedAt never moves backwards.
func Apply(prev *model.ServerState, in model.Report, kind model.EventKind, now time.Time, refreshOnHeartbeat bool) *model.ServerState {
	next := &model.ServerState{
		ServerURL:    in.ServerURL,
		Game:         in.Game,
		AppKey:       in.AppKey,
		Server:       in.Server,
		Region:       in.Region,
		Status:       in.Status,
		CurPlayers:   in.CurPlayers,
		MaxPlayers:   in.MaxPlayers,
		TotalUpdates: 1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if prev == nil {
		return next
	}

	next.CreatedAt = prev.CreatedAt
	next.TotalUpdates = prev.TotalUpdates + 1
	if kind == model.NoChange && !refreshOnHeartbeat {
		next.UpdatedAt = prev.UpdatedAt
	}
	if next.UpdatedAt.Before(prev.UpdatedAt) {
		next.UpdatedAt = prev.UpdatedAt
	}
	return next
}
