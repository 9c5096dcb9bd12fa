package account

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fujinet/game-alerts/internal/model"
	"github.com/fujinet/game-alerts/internal/store/sqlite"
)

type codeCatcher struct {
	mu   sync.Mutex
	last map[string]string
	err  error
}

var codeRe = regexp.MustCompile(`\d{6}`)

func (c *codeCatcher) Send(_ context.Context, to, body string, _ model.Channel) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		c.last = map[string]string{}
	}
	c.last[to] = codeRe.FindString(body)
	return c.err
}

func (c *codeCatcher) code(phone string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last[phone]
}

func newService(t *testing.T) (*Service, *codeCatcher, *time.Time) {
	t.Helper()
	st, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "accounts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	codes := &codeCatcher{}
	svc := New(st, codes, Options{Secret: []byte("test-secret"), TokenTTL: time.Hour, CodeTTL: 10 * time.Minute},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	now := time.Now().UTC().Truncate(time.Second)
	svc.SetClock(func() time.Time { return now })
	return svc, codes, &now
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		raw  string
		ch   model.Channel
		want string
		err  error
	}{
		{"(555) 010-0001", model.ChannelSMS, "+15550100001", nil},
		{"+1 555 010 0001", model.ChannelSMS, "+15550100001", nil},
		{"+44 7700 900123", model.ChannelWhatsApp, "+447700900123", nil},
		{"whatsapp:+447700900123", model.ChannelWhatsApp, "+447700900123", nil},
		{"5550100001", model.ChannelWhatsApp, "+5550100001", nil},
		{"123", model.ChannelSMS, "", ErrInvalidPhone},
		{"5550100001", model.ChannelChat, "", ErrInvalidChannel},
	}
	for _, tt := range tests {
		got, err := NormalizePhone(tt.raw, tt.ch)
		if tt.err != nil {
			assert.True(t, errors.Is(err, tt.err), "%q: got %v", tt.raw, err)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestRegisterConfirmFlow(t *testing.T) {
	svc, codes, _ := newService(t)
	ctx := context.Background()

	phone, err := svc.Register(ctx, "555-010-0001", model.ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, "+15550100001", phone)

	sub, err := svc.store.GetSubscriber(ctx, phone)
	require.NoError(t, err)
	assert.False(t, sub.Confirmed)
	assert.False(t, sub.NotifyJoinLeave, "dashboard signups start with alerts off")
	assert.False(t, sub.SMS, "channel waits for the code")
	assert.Equal(t, model.ChannelSMS, sub.PendingChannel)

	_, _, err = svc.Confirm(ctx, phone, "000000x")
	assert.ErrorIs(t, err, ErrInvalidCode)

	token, sub, err := svc.Confirm(ctx, phone, codes.code(phone))
	require.NoError(t, err)
	assert.True(t, sub.Confirmed)
	assert.True(t, sub.SMS)
	assert.Empty(t, sub.VerificationCode)
	assert.Empty(t, sub.PendingChannel)

	got, err := svc.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, phone, got)

	// codes are single use
	_, _, err = svc.Confirm(ctx, phone, codes.code(phone))
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestRegisterKeepsChannelPendingUntilConfirmed(t *testing.T) {
	svc, codes, _ := newService(t)
	ctx := context.Background()

	phone, err := svc.Register(ctx, "5550100003", model.ChannelSMS)
	require.NoError(t, err)
	_, _, err = svc.Confirm(ctx, phone, codes.code(phone))
	require.NoError(t, err)

	// someone else asks for WhatsApp on the same number and never confirms
	_, err = svc.Register(ctx, phone, model.ChannelWhatsApp)
	require.NoError(t, err)

	sub, err := svc.store.GetSubscriber(ctx, phone)
	require.NoError(t, err)
	assert.True(t, sub.SMS)
	assert.False(t, sub.WhatsApp)
	assert.Equal(t, model.ChannelWhatsApp, sub.PendingChannel)

	_, sub, err = svc.Confirm(ctx, phone, codes.code(phone))
	require.NoError(t, err)
	assert.True(t, sub.SMS)
	assert.True(t, sub.WhatsApp)
}

func TestWrongGuessesBurnCode(t *testing.T) {
	svc, codes, _ := newService(t)
	ctx := context.Background()

	phone, err := svc.Register(ctx, "5550100004", model.ChannelSMS)
	require.NoError(t, err)
	code := codes.code(phone)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	for i := 1; i < MaxCodeAttempts; i++ {
		_, _, err = svc.Confirm(ctx, phone, wrong)
		assert.ErrorIs(t, err, ErrInvalidCode)
	}
	sub, err := svc.store.GetSubscriber(ctx, phone)
	require.NoError(t, err)
	assert.Equal(t, MaxCodeAttempts-1, sub.CodeAttempts)
	assert.NotEmpty(t, sub.VerificationCode)

	_, _, err = svc.Confirm(ctx, phone, wrong)
	assert.ErrorIs(t, err, ErrInvalidCode)

	_, _, err = svc.Confirm(ctx, phone, code)
	assert.ErrorIs(t, err, ErrInvalidCode, "code is gone after too many misses")

	sub, err = svc.store.GetSubscriber(ctx, phone)
	require.NoError(t, err)
	assert.False(t, sub.Confirmed)
	assert.False(t, sub.SMS)
	assert.Empty(t, sub.VerificationCode)

	// a fresh code starts a fresh count
	_, err = svc.Register(ctx, phone, model.ChannelSMS)
	require.NoError(t, err)
	_, sub, err = svc.Confirm(ctx, phone, codes.code(phone))
	require.NoError(t, err)
	assert.True(t, sub.Confirmed)
}

func TestCodeExpires(t *testing.T) {
	svc, codes, now := newService(t)
	ctx := context.Background()

	phone, err := svc.Register(ctx, "+447700900123", model.ChannelWhatsApp)
	require.NoError(t, err)

	*now = now.Add(11 * time.Minute)
	_, _, err = svc.Confirm(ctx, phone, codes.code(phone))
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestRegisterSendFailure(t *testing.T) {
	svc, codes, _ := newService(t)
	codes.err = errors.New("gateway down")

	_, err := svc.Register(context.Background(), "5550100001", model.ChannelSMS)
	assert.Error(t, err)
}

func TestAuthenticateRejects(t *testing.T) {
	svc, _, now := newService(t)

	token, err := svc.issueToken("+15550100001", *now)
	require.NoError(t, err)

	_, err = svc.Authenticate("garbage")
	assert.ErrorIs(t, err, ErrUnauthorized)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer: tokenIssuer, Subject: "+1", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	_, err = svc.Authenticate(forged)
	assert.ErrorIs(t, err, ErrUnauthorized)

	*now = now.Add(2 * time.Hour)
	_, err = svc.Authenticate(token)
	assert.ErrorIs(t, err, ErrUnauthorized, "expired")
}

func TestPreferencesAndDelete(t *testing.T) {
	svc, codes, _ := newService(t)
	ctx := context.Background()

	phone, err := svc.Register(ctx, "5550100002", model.ChannelSMS)
	require.NoError(t, err)

	on := true
	_, err = svc.UpdatePreferences(ctx, phone, Preferences{NotifyJoinLeave: &on})
	assert.ErrorIs(t, err, ErrUnauthorized, "unconfirmed numbers cannot change preferences")

	_, _, err = svc.Confirm(ctx, phone, codes.code(phone))
	require.NoError(t, err)

	sub, err := svc.UpdatePreferences(ctx, phone, Preferences{NotifyJoinLeave: &on, Throttle: &on})
	require.NoError(t, err)
	assert.True(t, sub.NotifyJoinLeave)
	assert.True(t, sub.Throttle)
	assert.False(t, sub.NotifyServerStart)

	got, err := svc.Get(ctx, phone)
	require.NoError(t, err)
	assert.True(t, got.Throttle)

	require.NoError(t, svc.Delete(ctx, phone))
	_, err = svc.Get(ctx, phone)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorIs(t, svc.Delete(ctx, phone), ErrUnauthorized)
}
