package relay

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fujinet/game-alerts/internal/model"
	"github.com/fujinet/game-alerts/internal/policy"
)

// HandleReport classifies a lobby report, stores the new state together
// with its event record, and schedules the notifications.
func (e *Engine) HandleReport(ctx context.Context, in model.Report) (model.EventKind, error) {
	if err := policy.Validate(in); err != nil {
		return "", err
	}

	now := e.clock()
	var (
		kind  model.EventKind
		state *model.ServerState
		event *model.EventRecord
	)
	err := e.store.UpdateServer(ctx, in.ServerURL, func(prev *model.ServerState) (*model.ServerState, *model.EventRecord, error) {
		kind = policy.Classify(prev, in)
		state = policy.Apply(prev, in, kind, now, e.opts.RefreshOnHeartbeat)
		event = nil
		if kind.Notifiable() {
			event = &model.EventRecord{
				ID:         uuid.NewString(),
				ServerURL:  state.ServerURL,
				Game:       state.Game,
				Kind:       kind,
				CurPlayers: state.CurPlayers,
				MaxPlayers: state.MaxPlayers,
				CreatedAt:  now,
			}
		}
		return state, event, nil
	})
	if err != nil {
		return "", fmt.Errorf("update server %s: %w", in.ServerURL, err)
	}

	e.logger.Info("report processed",
		"serverurl", in.ServerURL, "event", kind,
		"curplayers", in.CurPlayers, "maxplayers", in.MaxPlayers)

	if event == nil {
		return kind, nil
	}
	if e.publisher != nil {
		e.publisher.Publish(*event)
	}

	text := policy.Message(kind, *state)
	e.background(ctx, func(ctx context.Context) {
		e.dispatch(ctx, kind, text, now)
	})
	return kind, nil
}

// RemoveServer deletes a server's state and announces it in chat. It
// reports false when the server was not known.
func (e *Engine) RemoveServer(ctx context.Context, serverURL string) (bool, error) {
	existed, err := e.store.DeleteServer(ctx, serverURL)
	if err != nil {
		return false, fmt.Errorf("delete server %s: %w", serverURL, err)
	}
	if !existed {
		return false, nil
	}

	e.logger.Info("server removed", "serverurl", serverURL)
	text := policy.DeleteMessage(serverURL)
	e.background(ctx, func(ctx context.Context) {
		e.sendChat(ctx, text)
	})
	return true, nil
}
