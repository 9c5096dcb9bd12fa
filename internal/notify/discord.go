package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Discord posts chat messages through a Discord webhook.
type Discord struct {
	session *discordgo.Session
	id      string
	token   string
}

var _ ChatSink = (*Discord)(nil)

// NewDiscord builds a sink from a webhook URL of the form
// https://discord.com/api/webhooks/<id>/<token>.
func NewDiscord(webhookURL string, timeout time.Duration) (*Discord, error) {
	id, token, err := parseWebhook(webhookURL)
	if err != nil {
		return nil, err
	}

	// Webhook execution needs no bot token.
	s, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Client = &http.Client{Timeout: timeout}
	s.MaxRestRetries = 0

	return &Discord{session: s, id: id, token: token}, nil
}

func parseWebhook(raw string) (id, token string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse discord webhook: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, p := range parts {
		if p == "webhooks" && i+2 < len(parts) {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", errors.New("discord webhook URL must end in /webhooks/<id>/<token>")
}

// Send executes the webhook with text as the message content.
func (d *Discord) Send(ctx context.Context, text string) error {
	_, err := d.session.WebhookExecute(d.id, d.token, false,
		&discordgo.WebhookParams{Content: text}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	return nil
}
