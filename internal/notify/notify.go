// Package notify delivers rendered alerts to the outside world: the chat
// webhook and the SMS/WhatsApp gateway.
//
// Sinks make exactly one attempt per call. Retrying is the caller's choice
// and the relay never retries. When a sink is not configured the Log
// variants stand in and only write the message to the logger.
package notify

import (
	"context"
	"log/slog"

	"github.com/fujinet/game-alerts/internal/model"
)

// ChatSink posts a line of text to the operators' chat channel.
type ChatSink interface {
	Send(ctx context.Context, text string) error
}

// MessageSink sends a text to one subscriber on one channel.
type MessageSink interface {
	Send(ctx context.Context, to, body string, ch model.Channel) error
}

// LogChat is the ChatSink used when no webhook is configured.
type LogChat struct {
	Logger *slog.Logger
}

func (l LogChat) Send(_ context.Context, text string) error {
	l.Logger.Info("chat send (webhook disabled)", "text", text)
	return nil
}

// LogMessages is the MessageSink used when the gateway is not configured.
type LogMessages struct {
	Logger *slog.Logger
}

func (l LogMessages) Send(_ context.Context, to, body string, ch model.Channel) error {
	l.Logger.Info("message send (gateway disabled)", "to", to, "channel", ch, "body", body)
	return nil
}
