package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fujinet/game-alerts/internal/account"
	"github.com/fujinet/game-alerts/internal/config"
	"github.com/fujinet/game-alerts/internal/feed"
	"github.com/fujinet/game-alerts/internal/model"
	"github.com/fujinet/game-alerts/internal/relay"
	"github.com/fujinet/game-alerts/internal/store"
	"github.com/fujinet/game-alerts/internal/store/sqlite"
)

// --------------------------------------------------------------------------
// Fakes and harness
// --------------------------------------------------------------------------

type chatLog struct {
	mu    sync.Mutex
	texts []string
}

func (c *chatLog) Send(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return nil
}

func (c *chatLog) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

type outbox struct {
	mu   sync.Mutex
	last map[string]string
}

func (o *outbox) Send(_ context.Context, to, body string, _ model.Channel) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		o.last = map[string]string{}
	}
	o.last[to] = body
	return nil
}

func (o *outbox) body(to string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last[to]
}

type testServer struct {
	router http.Handler
	engine *relay.Engine
	store  store.Store
	chat   *chatLog
	out    *outbox
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	ctx := context.Background()
	st, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := &config.Config{
		DatabaseURL:      "api.db",
		CORSAllowOrigins: []string{"*"},
		JWTSecret:        "test-secret",
	}
	if mutate != nil {
		mutate(cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts := &testServer{store: st, chat: &chatLog{}, out: &outbox{}}
	hub := feed.NewHub(nil, logger)
	t.Cleanup(hub.Close)

	ts.engine = relay.New(st, ts.chat, ts.out, hub, relay.Options{}, logger)
	var accounts *account.Service
	if cfg.AccountsEnabled() {
		accounts = account.New(st, ts.out, account.Options{Secret: []byte(cfg.JWTSecret)}, logger)
	}
	ts.router = NewRouter(ts.engine, accounts, hub, cfg)
	return ts
}

func (ts *testServer) do(t *testing.T, method, target, contentType, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func errorCodeOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error.Code
}

const report = `{"game":"Reversi","appkey":1,"server":"fujinet","region":"us",
	"serverurl":"http://lobby.example/play?table=reversi","status":"online","curplayers":%d,"maxplayers":4}`

func reportBody(cur string) string {
	return strings.Replace(report, "%d", cur, 1)
}

// --------------------------------------------------------------------------
// Meta
// --------------------------------------------------------------------------

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, path := range []string{"/", "/health", "/health/db", "/health/notify"} {
		rec := ts.do(t, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.NotEmpty(t, rec.Header().Get("X-Process-Time"), path)
	}

	rec := ts.do(t, http.MethodGet, "/health/notify", "", "")
	assert.Contains(t, rec.Body.String(), `"discord":"log_only"`)
}

// --------------------------------------------------------------------------
// Lobby webhook
// --------------------------------------------------------------------------

func TestPostGameLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/game", "application/json", reportBody("1"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"event":"server_started"`)

	rec = ts.do(t, http.MethodPost, "/game", "application/json", reportBody("1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"event":"no_change"`)

	rec = ts.do(t, http.MethodPost, "/game", "application/json", reportBody("0"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"event":"last_player_left"`)

	ts.engine.Wait()
	chat := ts.chat.all()
	require.Len(t, chat, 2)
	joined := strings.Join(chat, "\n")
	assert.Contains(t, joined, "has 1 player(s) currently")
	assert.Contains(t, joined, "the last player has left the game")

	rec = ts.do(t, http.MethodGet, "/api/v1/events?limit=10", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var events []model.EventRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 2)
	assert.Equal(t, model.LastPlayerLeft, events[0].Kind)
}

func TestPostGameRejectsBadInput(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"malformed", `{"game":`, "INVALID_JSON"},
		{"missing serverurl", `{"game":"Reversi","curplayers":1,"maxplayers":4}`, "INVALID_REPORT"},
		{"negative players", strings.Replace(reportBody("1"), `"curplayers":1`, `"curplayers":-1`, 1), "INVALID_REPORT"},
		{"over capacity", reportBody("9"), "INVALID_REPORT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/game", "application/json", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, errorCodeOf(t, rec))
		})
	}

	servers, err := ts.store.ListServers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, servers)
	ts.engine.Wait()
	assert.Empty(t, ts.chat.all())
}

func TestDeleteGame(t *testing.T) {
	ts := newTestServer(t, nil)
	target := "http://lobby.example/play?table=reversi"

	rec := ts.do(t, http.MethodDelete, "/game?serverurl="+url.QueryEscape(target), "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/game", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_SERVERURL", errorCodeOf(t, rec))

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/game", "application/json", reportBody("0")).Code)
	ts.engine.Wait()

	rec = ts.do(t, http.MethodDelete, "/game", "application/json", `{"serverurl":"`+target+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ts.engine.Wait()

	chat := ts.chat.all()
	require.NotEmpty(t, chat)
	assert.Equal(t,
		"🌐 Server event - GameServer: [http://lobby.example/play] running game [reversi] has been deleted from Lobby.",
		chat[len(chat)-1])

	_, err := ts.store.GetServer(context.Background(), target)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --------------------------------------------------------------------------
// Twilio webhooks
// --------------------------------------------------------------------------

func TestInboundSMS(t *testing.T) {
	ts := newTestServer(t, nil)

	form := url.Values{"From": {"whatsapp:+15550100"}, "To": {"+15550199"}, "Body": {" start "}}
	rec := ts.do(t, http.MethodPost, "/sms", "application/x-www-form-urlencoded", form.Encode())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<Response>")
	assert.Contains(t, rec.Body.String(), "subscribed to game alerts")

	sub, err := ts.store.GetSubscriber(context.Background(), "+15550100")
	require.NoError(t, err)
	assert.True(t, sub.WhatsApp)
	assert.True(t, sub.Confirmed)
	assert.True(t, sub.NotifyJoinLeave)

	form.Set("Body", "what?")
	rec = ts.do(t, http.MethodPost, "/sms", "application/x-www-form-urlencoded", form.Encode())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rows in the event database")

	rec = ts.do(t, http.MethodPost, "/sms", "application/x-www-form-urlencoded", url.Values{"Body": {"STOP"}}.Encode())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func twilioSignature(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestInboundSMSSignature(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) {
		c.TwilioValidateSignature = true
		c.TwilioAuthToken = "auth-token"
		c.PublicURL = "https://relay.example"
	})
	form := url.Values{"From": {"+15550100"}, "Body": {"START"}}

	rec := ts.do(t, http.MethodPost, "/sms", "application/x-www-form-urlencoded", form.Encode())
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPost, "/sms", "application/x-www-form-urlencoded", form.Encode(),
		"X-Twilio-Signature", twilioSignature("wrong", "https://relay.example/sms", form))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPost, "/sms", "application/x-www-form-urlencoded", form.Encode(),
		"X-Twilio-Signature", twilioSignature("auth-token", "https://relay.example/sms", form))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestSMSErrors(t *testing.T) {
	ts := newTestServer(t, nil)
	payload := `{"resource_sid":"SM123","service_sid":"MG9","error_code":30003,
		"more_info":{"Msg":"Unreachable destination handset"},
		"webhook":{"request":{"url":"https://relay.example/sms","method":"POST"}}}`

	rec := ts.do(t, http.MethodPost, "/sms/errors", "application/json", payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	form := url.Values{"Payload": {`{"resource_sid":"SM124","error_code":"11200","more_info":{"Msg":"HTTP retrieval failure"}}`}}
	rec = ts.do(t, http.MethodPost, "/sms/errors", "application/x-www-form-urlencoded", form.Encode())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/sms/errors", "application/json", "nope")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	recs, err := ts.store.ListSmsErrors(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	byID := map[string]model.SmsErrorRecord{}
	for _, r := range recs {
		byID[r.ResourceSID] = r
	}
	first := byID["SM123"]
	assert.Equal(t, model.ErrorSourceProvider, first.Source)
	assert.Equal(t, "30003", first.ErrorCode)
	assert.Equal(t, "Unreachable destination handset", first.ErrorMessage)
	assert.Equal(t, "https://relay.example/sms", first.CallbackURL)
	assert.Equal(t, "POST", first.RequestMethod)
	assert.Contains(t, first.Details, "MG9")
	assert.Equal(t, "11200", byID["SM124"].ErrorCode)
}

// --------------------------------------------------------------------------
// Dashboard API
// --------------------------------------------------------------------------

func TestStatsAndServers(t *testing.T) {
	ts := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/game", "application/json", reportBody("2")).Code)
	ts.engine.Wait()

	rec := ts.do(t, http.MethodGet, "/api/v1/stats", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats store.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats.Servers)
	assert.EqualValues(t, 1, stats.Events)

	rec = ts.do(t, http.MethodGet, "/api/v1/servers", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var servers []model.ServerState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &servers))
	require.Len(t, servers, 1)
	assert.Equal(t, 2, servers[0].CurPlayers)

	rec = ts.do(t, http.MethodGet, "/api/v1/events?limit=abc", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

var sixDigits = regexp.MustCompile(`\d{6}`)

func TestAccountFlow(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/v1/account/register", "application/json", `{"phone":"(555) 010-0123","channel":"sms"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	phone := "+15550100123"
	code := sixDigits.FindString(ts.out.body(phone))
	require.NotEmpty(t, code)

	rec = ts.do(t, http.MethodPost, "/api/v1/account/confirm", "application/json", `{"phone":"`+phone+`","code":"000000x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/account/confirm", "application/json", `{"phone":"`+phone+`","code":"`+code+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var confirmed struct {
		Token      string           `json:"token"`
		Subscriber model.Subscriber `json:"subscriber"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &confirmed))
	require.NotEmpty(t, confirmed.Token)
	assert.True(t, confirmed.Subscriber.Confirmed)
	assert.True(t, confirmed.Subscriber.SMS)
	bearer := "Bearer " + confirmed.Token

	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/api/v1/account", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/api/v1/account", "", "", "Authorization", "Bearer junk").Code)

	rec = ts.do(t, http.MethodPatch, "/api/v1/account", "application/json", `{"notify_join_leave":true,"throttle":true}`, "Authorization", bearer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sub model.Subscriber
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sub))
	assert.True(t, sub.NotifyJoinLeave)
	assert.False(t, sub.NotifyServerStart)
	assert.True(t, sub.Throttle)

	rec = ts.do(t, http.MethodGet, "/api/v1/account", "", "", "Authorization", bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"phone":"+15550100123"`)

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/api/v1/account", "", "", "Authorization", bearer).Code)
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/api/v1/account", "", "", "Authorization", bearer).Code)
}

func TestAccountRoutesDisabledWithoutSecret(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.JWTSecret = "" })
	rec := ts.do(t, http.MethodPost, "/api/v1/account/register", "application/json", `{"phone":"5550100123"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegisterRejectsBadPhone(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodPost, "/api/v1/account/register", "application/json", `{"phone":"12","channel":"sms"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/v1/account/register", "application/json", `{"phone":"5550100123","channel":"pigeon"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) {
		c.RateLimitEnabled = true
		c.RateLimitRequests = 4
		c.RateLimitWindow = time.Hour
	})

	codes := map[int]int{}
	for range 5 {
		codes[ts.do(t, http.MethodGet, "/api/v1/stats", "", "").Code]++
	}
	assert.Equal(t, 2, codes[http.StatusOK], "burst is half the window allowance")
	assert.Equal(t, 3, codes[http.StatusTooManyRequests])

	// routes outside /api/v1 are not limited
	for range 5 {
		assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health", "", "").Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.CORSAllowOrigins = []string{"https://dash.example"} })
	rec := ts.do(t, http.MethodOptions, "/api/v1/stats", "", "",
		"Origin", "https://dash.example", "Access-Control-Request-Method", "GET")
	assert.Equal(t, "https://dash.example", rec.Header().Get("Access-Control-Allow-Origin"))
}
