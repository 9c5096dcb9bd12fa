package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/fujinet/game-alerts/internal/model"
)

// messageCreator is the slice of the Twilio REST client the sink uses.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Twilio sends SMS and WhatsApp messages from one provisioned number.
type Twilio struct {
	api        messageCreator
	accountSID string
	from       string
	logger     *slog.Logger
}

var _ MessageSink = (*Twilio)(nil)

// NewTwilio builds a sink for the given account. from is the bare number;
// the WhatsApp prefix is added per message.
func NewTwilio(accountSID, authToken, from string, timeout time.Duration, logger *slog.Logger) *Twilio {
	c := &client.Client{
		Credentials: client.NewCredentials(accountSID, authToken),
		HTTPClient:  &http.Client{Timeout: timeout},
	}
	c.SetAccountSid(accountSID)

	rc := twilio.NewRestClientWithParams(twilio.ClientParams{Client: c})
	return &Twilio{api: rc.Api, accountSID: accountSID, from: from, logger: logger}
}

// Send delivers body to the bare number to over ch.
func (t *Twilio) Send(ctx context.Context, to, body string, ch model.Channel) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetPathAccountSid(t.accountSID)
	params.SetBody(body)

	switch ch {
	case model.ChannelSMS:
		params.SetTo(to)
		params.SetFrom(t.from)
	case model.ChannelWhatsApp:
		params.SetTo(model.WhatsAppPrefix + to)
		params.SetFrom(model.WhatsAppPrefix + t.from)
	default:
		return fmt.Errorf("twilio: unsupported channel %q", ch)
	}

	msg, err := t.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio %s to %s: %w", ch, to, err)
	}
	if msg == nil || msg.Sid == nil {
		return errors.New("twilio: response carried no message sid")
	}
	t.logger.Debug("message sent", "sid", *msg.Sid, "to", to, "channel", ch)
	return nil
}
