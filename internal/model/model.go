// Package model holds the relay's persisted entities and the inbound report
// shape. Nothing here talks to a database or the network.
package model

import (
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Event kinds
// --------------------------------------------------------------------------

// EventKind is the classification of a transition between two consecutive
// reports for the same server.
type EventKind string

const (
	ServerStarted  EventKind = "server_started"
	PlayerJoined   EventKind = "player_joined"
	PlayerLeft     EventKind = "player_left"
	LastPlayerLeft EventKind = "last_player_left"
	NoChange       EventKind = "no_change"
)

// Notifiable reports whether the kind produces outward notifications.
func (k EventKind) Notifiable() bool {
	switch k {
	case ServerStarted, PlayerJoined, PlayerLeft, LastPlayerLeft:
		return true
	}
	return false
}

// IsPlayerEvent is true for the join/leave category.
func (k EventKind) IsPlayerEvent() bool {
	return k == PlayerJoined || k == PlayerLeft || k == LastPlayerLeft
}

// --------------------------------------------------------------------------
// Channels
// --------------------------------------------------------------------------

// Channel is a subscriber delivery channel on the telephony gateway.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelChat     Channel = "chat"
)

// WhatsAppPrefix marks WhatsApp addresses on the telephony provider.
const WhatsAppPrefix = "whatsapp:"

// SplitAddress strips a provider address down to the bare number and
// reports which channel it arrived on.
func SplitAddress(addr string) (string, Channel) {
	addr = strings.TrimSpace(addr)
	if strings.HasPrefix(addr, WhatsAppPrefix) {
		return strings.TrimPrefix(addr, WhatsAppPrefix), ChannelWhatsApp
	}
	return addr, ChannelSMS
}

// --------------------------------------------------------------------------
// Entities
// --------------------------------------------------------------------------

// Report is the JSON body a lobby server posts on every status change.
type Report struct {
	Game       string `json:"game"`
	AppKey     int    `json:"appkey"`
	Server     string `json:"server"`
	Region     string `json:"region"`
	ServerURL  string `json:"serverurl"`
	Status     string `json:"status"`
	CurPlayers int    `json:"curplayers"`
	MaxPlayers int    `json:"maxplayers"`
}

// ServerState is the last-known status of one game server instance.
type ServerState struct {
	ServerURL    string    `json:"serverurl"`
	Game         string    `json:"game"`
	AppKey       int       `json:"appkey"`
	Server       string    `json:"server"`
	Region       string    `json:"region"`
	Status       string    `json:"status"`
	CurPlayers   int       `json:"curplayers"`
	MaxPlayers   int       `json:"maxplayers"`
	TotalUpdates int       `json:"total_updates"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// EventRecord is an append-only log entry for one classified event.
type EventRecord struct {
	ID         string    `json:"id"`
	ServerURL  string    `json:"serverurl"`
	Game       string    `json:"game"`
	Kind       EventKind `json:"kind"`
	CurPlayers int       `json:"curplayers"`
	MaxPlayers int       `json:"maxplayers"`
	CreatedAt  time.Time `json:"created_at"`
}

// Subscriber is a phone number that receives alerts.
type Subscriber struct {
	Phone             string    `json:"phone"`
	SMS               bool      `json:"sms"`
	WhatsApp          bool      `json:"whatsapp"`
	NotifyJoinLeave   bool      `json:"notify_join_leave"`
	NotifyServerStart bool      `json:"notify_server_start"`
	Throttle          bool      `json:"throttle"`
	LastNotified      time.Time `json:"last_notified,omitzero"`
	Confirmed         bool      `json:"confirmed"`
	VerificationCode  string    `json:"-"`
	CodeIssuedAt      time.Time `json:"-"`
	PendingChannel    Channel   `json:"-"` // enabled once the code is confirmed
	CodeAttempts      int       `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Channels lists the delivery channels enabled for the subscriber.
func (s *Subscriber) Channels() []Channel {
	var out []Channel
	if s.SMS {
		out = append(out, ChannelSMS)
	}
	if s.WhatsApp {
		out = append(out, ChannelWhatsApp)
	}
	return out
}

// EnableChannel turns on delivery over ch. Chat is not a subscriber channel.
func (s *Subscriber) EnableChannel(ch Channel) {
	switch ch {
	case ChannelSMS:
		s.SMS = true
	case ChannelWhatsApp:
		s.WhatsApp = true
	}
}

// SmsErrorRecord is a delivery-failure diagnostic. Source is "provider" for
// the telephony error webhook and "delivery" for failed outbound attempts.
type SmsErrorRecord struct {
	ID            int64     `json:"id"`
	Source        string    `json:"source"`
	Channel       Channel   `json:"channel"`
	Destination   string    `json:"destination,omitempty"`
	ResourceSID   string    `json:"resource_sid,omitempty"`
	ServiceSID    string    `json:"service_sid,omitempty"`
	ErrorCode     string    `json:"error_code,omitempty"`
	ErrorMessage  string    `json:"error_message"`
	CallbackURL   string    `json:"callback_url,omitempty"`
	RequestMethod string    `json:"request_method,omitempty"`
	Details       string    `json:"details,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	ErrorSourceProvider = "provider"
	ErrorSourceDelivery = "delivery"
)
