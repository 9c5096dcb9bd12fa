// Package account implements the dashboard's self-service flow: a phone
// number registers, proves ownership with a one-time code sent over its
// channel, and then manages its alert preferences with a signed session
// token.
package account

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/fujinet/game-alerts/internal/model"
	"github.com/fujinet/game-alerts/internal/notify"
	"github.com/fujinet/game-alerts/internal/store"
)

var (
	ErrInvalidPhone   = errors.New("invalid phone number")
	ErrInvalidChannel = errors.New("channel must be sms or whatsapp")
	ErrInvalidCode    = errors.New("invalid or expired verification code")
	ErrUnauthorized   = errors.New("unauthorized")
)

const tokenIssuer = "game-alerts"

// MaxCodeAttempts is how many wrong guesses burn a verification code.
const MaxCodeAttempts = 5

// Options configures codes and session tokens.
type Options struct {
	Secret   []byte
	TokenTTL time.Duration
	CodeTTL  time.Duration
}

// Service runs the account flow against the subscriber store.
type Service struct {
	store    store.Store
	messages notify.MessageSink
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

// New builds the service. An empty secret disables token issuing.
func New(st store.Store, messages notify.MessageSink, opts Options, logger *slog.Logger) *Service {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	if opts.CodeTTL <= 0 {
		opts.CodeTTL = 10 * time.Minute
	}
	return &Service{store: st, messages: messages, opts: opts, logger: logger, now: time.Now}
}

// SetClock replaces the service's time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// --------------------------------------------------------------------------
// Phone numbers
// --------------------------------------------------------------------------

// NormalizePhone reduces user input to E.164. SMS numbers with ten digits
// are taken as North American and get a +1; WhatsApp numbers must already
// carry their country code.
func NormalizePhone(raw string, ch model.Channel) (string, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), model.WhatsAppPrefix)

	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()

	switch ch {
	case model.ChannelSMS:
		if len(d) == 10 {
			d = "1" + d
		}
	case model.ChannelWhatsApp:
	default:
		return "", ErrInvalidChannel
	}

	if len(d) < 8 || len(d) > 15 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, raw)
	}
	return "+" + d, nil
}

// --------------------------------------------------------------------------
// Registration
// --------------------------------------------------------------------------

// Register issues a verification code for the number and sends it over ch.
// A new number is stored unconfirmed with every alert switched off; an
// existing one keeps its preferences and only gets a fresh code. ch is held
// as pending and only switched on by Confirm.
func (s *Service) Register(ctx context.Context, rawPhone string, ch model.Channel) (string, error) {
	phone, err := NormalizePhone(rawPhone, ch)
	if err != nil {
		return "", err
	}
	code, err := newCode()
	if err != nil {
		return "", err
	}

	now := s.now().UTC()
	_, err = s.store.UpdateSubscriber(ctx, phone, func(prev *model.Subscriber) (*model.Subscriber, error) {
		next := model.Subscriber{CreatedAt: now}
		if prev != nil {
			next = *prev
		}
		next.PendingChannel = ch
		next.VerificationCode = code
		next.CodeIssuedAt = now
		next.CodeAttempts = 0
		next.UpdatedAt = now
		return &next, nil
	})
	if err != nil {
		return "", fmt.Errorf("store verification code: %w", err)
	}

	body := fmt.Sprintf("Your game alerts verification code is %s", code)
	if err := s.messages.Send(ctx, phone, body, ch); err != nil {
		return "", fmt.Errorf("send verification code: %w", err)
	}
	s.logger.Info("verification code sent", "phone", phone, "channel", ch)
	return phone, nil
}

func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Confirm checks a verification code, marks the subscriber confirmed,
// enables the channel the code was sent over and returns a session token.
// Each wrong guess is counted, and the code is cleared after
// MaxCodeAttempts of them.
func (s *Service) Confirm(ctx context.Context, phone, code string) (string, *model.Subscriber, error) {
	phone = strings.TrimSpace(phone)
	code = strings.TrimSpace(code)
	now := s.now().UTC()

	var matched bool
	sub, err := s.store.UpdateSubscriber(ctx, phone, func(prev *model.Subscriber) (*model.Subscriber, error) {
		if prev == nil || prev.VerificationCode == "" || code == "" {
			return nil, nil
		}
		next := *prev
		next.UpdatedAt = now
		if now.Sub(prev.CodeIssuedAt) > s.opts.CodeTTL {
			clearCode(&next)
			return &next, nil
		}
		if subtle.ConstantTimeCompare([]byte(prev.VerificationCode), []byte(code)) != 1 {
			next.CodeAttempts++
			if next.CodeAttempts >= MaxCodeAttempts {
				clearCode(&next)
			}
			return &next, nil
		}
		matched = true
		next.Confirmed = true
		next.EnableChannel(prev.PendingChannel)
		clearCode(&next)
		return &next, nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("confirm %s: %w", phone, err)
	}
	if !matched {
		return "", nil, ErrInvalidCode
	}

	token, err := s.issueToken(phone, now)
	if err != nil {
		return "", nil, err
	}
	s.logger.Info("subscriber confirmed", "phone", phone)
	return token, sub, nil
}

func clearCode(sub *model.Subscriber) {
	sub.VerificationCode = ""
	sub.CodeIssuedAt = time.Time{}
	sub.PendingChannel = ""
	sub.CodeAttempts = 0
}

// --------------------------------------------------------------------------
// Session tokens
// --------------------------------------------------------------------------

func (s *Service) issueToken(phone string, now time.Time) (string, error) {
	if len(s.opts.Secret) == 0 {
		return "", errors.New("session secret not configured")
	}
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   phone,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.opts.TokenTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.opts.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Authenticate validates a session token and returns the phone number it
// was issued to.
func (s *Service) Authenticate(tokenString string) (string, error) {
	if len(s.opts.Secret) == 0 {
		return "", ErrUnauthorized
	}

	var claims jwt.RegisteredClaims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	token, err := parser.ParseWithClaims(strings.TrimSpace(tokenString), &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.opts.Secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrUnauthorized
	}

	now := s.now()
	if !claims.VerifyExpiresAt(now, true) || !claims.VerifyIssuer(tokenIssuer, true) || claims.Subject == "" {
		return "", ErrUnauthorized
	}
	return claims.Subject, nil
}

// --------------------------------------------------------------------------
// Self-service
// --------------------------------------------------------------------------

// Preferences is a partial update; nil fields are left unchanged.
type Preferences struct {
	NotifyJoinLeave   *bool `json:"notify_join_leave,omitempty"`
	NotifyServerStart *bool `json:"notify_server_start,omitempty"`
	Throttle          *bool `json:"throttle,omitempty"`
	SMS               *bool `json:"sms,omitempty"`
	WhatsApp          *bool `json:"whatsapp,omitempty"`
}

// Get returns the subscriber behind an authenticated session.
func (s *Service) Get(ctx context.Context, phone string) (*model.Subscriber, error) {
	sub, err := s.store.GetSubscriber(ctx, phone)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	return sub, err
}

// UpdatePreferences applies p to a confirmed subscriber.
func (s *Service) UpdatePreferences(ctx context.Context, phone string, p Preferences) (*model.Subscriber, error) {
	now := s.now().UTC()
	sub, err := s.store.UpdateSubscriber(ctx, phone, func(prev *model.Subscriber) (*model.Subscriber, error) {
		if prev == nil || !prev.Confirmed {
			return nil, ErrUnauthorized
		}
		next := *prev
		set(&next.NotifyJoinLeave, p.NotifyJoinLeave)
		set(&next.NotifyServerStart, p.NotifyServerStart)
		set(&next.Throttle, p.Throttle)
		set(&next.SMS, p.SMS)
		set(&next.WhatsApp, p.WhatsApp)
		next.UpdatedAt = now
		return &next, nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

type phoneKey struct{}

// WithPhone returns a context carrying an authenticated phone number.
func WithPhone(ctx context.Context, phone string) context.Context {
	return context.WithValue(ctx, phoneKey{}, phone)
}

// PhoneFrom returns the phone number stored by WithPhone, or "".
func PhoneFrom(ctx context.Context) string {
	phone, _ := ctx.Value(phoneKey{}).(string)
	return phone
}

func set(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// Delete erases every stored detail of the subscriber.
func (s *Service) Delete(ctx context.Context, phone string) error {
	existed, err := s.store.DeleteSubscriber(ctx, phone)
	if err != nil {
		return err
	}
	if !existed {
		return ErrUnauthorized
	}
	s.logger.Info("subscriber deleted", "phone", phone)
	return nil
}
