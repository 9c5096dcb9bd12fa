package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/fujinet/game-alerts/internal/account"
	"github.com/fujinet/game-alerts/internal/api/handler"
	"github.com/fujinet/game-alerts/internal/config"
	"github.com/fujinet/game-alerts/internal/feed"
	"github.com/fujinet/game-alerts/internal/relay"
)

// NewRouter creates and configures the Chi router with all middleware and
// routes. accounts may be nil, in which case the account API is not mounted.
func NewRouter(engine *relay.Engine, accounts *account.Service, hub *feed.Hub, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(TimingMiddleware)

	h := handler.New(engine, accounts, hub, cfg)

	// --- Routes ---

	r.Get("/", h.Root)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
		r.Get("/notify", h.HealthCheckNotify)
	})

	// Lobby webhook. Lobby servers post from anywhere, so no CORS or
	// rate limit here.
	r.Post("/game", h.PostGame)
	r.Delete("/game", h.DeleteGame)

	// Twilio webhooks
	r.Route("/sms", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if cfg.TwilioValidateSignature {
				r.Use(TwilioSignatureMiddleware(cfg.TwilioAuthToken, cfg.PublicURL))
			}
			r.Post("/", h.InboundSMS)
		})
		r.Post("/errors", h.SMSErrors)
	})

	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/docs/doc.json")))

	// Dashboard API
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Process-Time", "X-Request-Id"},
		AllowCredentials: false,
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(c.Handler)

		// The websocket is long-lived; keep it out of the rate limiter.
		r.Get("/events/ws", h.EventStream)

		r.Group(func(r chi.Router) {
			if cfg.RateLimitEnabled {
				r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
			}

			r.Get("/servers", h.ListServers)
			r.Get("/events", h.ListEvents)
			r.Get("/stats", h.Stats)

			if accounts == nil {
				return
			}
			r.Post("/account/register", h.Register)
			r.Post("/account/confirm", h.Confirm)
			r.Group(func(r chi.Router) {
				r.Use(RequireAccount(accounts))
				r.Get("/account", h.GetAccount)
				r.Patch("/account", h.UpdateAccount)
				r.Delete("/account", h.DeleteAccount)
			})
		})
	})

	return r
}
