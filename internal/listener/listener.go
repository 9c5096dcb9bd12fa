// Package listener provides a Postgres LISTEN/NOTIFY consumer for the live
// event feed. It holds a dedicated pgx connection (not from the pool)
// listening on the relay_events channel.
//
// Every process that commits an event fires pg_notify inside the same
// transaction, so each listener sees events from the whole fleet, including
// its own, and hands them to the local publisher.
package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fujinet/game-alerts/internal/model"
	"github.com/fujinet/game-alerts/internal/store/postgres"
)

const (
	reconnectBackoff = 5 * time.Second
	maxReconnect     = 30 * time.Second
)

// Publisher receives each decoded event.
type Publisher interface {
	Publish(model.EventRecord)
}

// Start opens a dedicated connection and listens on the event channel. It
// reconnects automatically on connection loss. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func Start(ctx context.Context, dbURL string, pub Publisher, logger *slog.Logger) {
	backoff := reconnectBackoff

	for {
		err := listenLoop(ctx, dbURL, pub, logger, func() { backoff = reconnectBackoff })
		if ctx.Err() != nil {
			logger.Info("Event listener stopped (context cancelled)")
			return
		}

		logger.Error("Event listener disconnected, reconnecting...",
			"error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnect)
		case <-ctx.Done():
			return
		}
	}
}

// listenLoop runs a single listen session. Returns when the connection drops
// or the context is cancelled.
func listenLoop(ctx context.Context, dbURL string, pub Publisher, logger *slog.Logger, connected func()) error {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	_, err = conn.Exec(ctx, "LISTEN "+postgres.EventChannel)
	if err != nil {
		return fmt.Errorf("LISTEN %s: %w", postgres.EventChannel, err)
	}
	logger.Info("Event listener connected", "channel", postgres.EventChannel)
	connected()

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}

		event, err := Decode(notification.Payload)
		if err != nil {
			logger.Warn("Failed to parse relay event",
				"payload", notification.Payload, "error", err)
			continue
		}

		logger.Debug("Relay event received",
			"serverurl", event.ServerURL, "event", event.Kind)
		pub.Publish(event)
	}
}

// Decode parses a NOTIFY payload into an event record.
func Decode(payload string) (model.EventRecord, error) {
	var e model.EventRecord
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return e, err
	}
	if e.ID == "" || e.Kind == "" {
		return e, fmt.Errorf("incomplete event payload")
	}
	return e, nil
}
