// Package handler provides HTTP handlers for all API endpoints.
// Webhook handlers hand the decoded payload to the relay engine; read
// endpoints query the store directly.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/fujinet/game-alerts/internal/account"
	"github.com/fujinet/game-alerts/internal/api/respond"
	"github.com/fujinet/game-alerts/internal/config"
	"github.com/fujinet/game-alerts/internal/feed"
	"github.com/fujinet/game-alerts/internal/relay"
	"github.com/fujinet/game-alerts/internal/store"
)

// maxBodyBytes bounds every JSON or form body the API reads.
const maxBodyBytes = 64 << 10

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	engine   *relay.Engine
	store    store.Store
	accounts *account.Service
	hub      *feed.Hub
	cfg      *config.Config
}

// New creates a Handler with shared dependencies. accounts may be nil when
// session tokens are not configured.
func New(engine *relay.Engine, accounts *account.Service, hub *feed.Hub, cfg *config.Config) *Handler {
	return &Handler{
		engine:   engine,
		store:    engine.Store(),
		accounts: accounts,
		hub:      hub,
		cfg:      cfg,
	}
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns API name, version, status and enabled integrations.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	backend := "sqlite"
	if h.cfg.IsPostgres() {
		backend = "postgres"
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"name":     "Game Alerts Relay",
		"version":  "2.0.0",
		"status":   "running",
		"docs":     "/docs",
		"database": backend,
		"integrations": map[string]bool{
			"discord":  h.cfg.DiscordWebhook != "",
			"twilio":   h.cfg.TwilioEnabled(),
			"accounts": h.accounts != nil,
		},
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Description Verifies the event store answers a trivial query.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		respond.WriteJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckNotify reports which outbound sinks are configured and how many
// feed clients are connected.
// @Summary Notification sink status
// @Description Reports whether Discord and Twilio are configured (log-only otherwise).
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/notify [get]
func (h *Handler) HealthCheckNotify(w http.ResponseWriter, r *http.Request) {
	mode := func(on bool) string {
		if on {
			return "configured"
		}
		return "log_only"
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "healthy",
		"discord":      mode(h.cfg.DiscordWebhook != ""),
		"twilio":       mode(h.cfg.TwilioEnabled()),
		"feed_clients": h.hub.Clients(),
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}
