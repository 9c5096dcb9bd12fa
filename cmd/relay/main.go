// Command relay is the game lobby alert relay server.
//
// Usage:
//
//	relay
//	DATABASE_URL=postgres://relay@db/relay API_PORT=8080 relay

// @title Game Alerts Relay API
// @version 2.0.0
// @description Receives lobby status reports, classifies player and server events, and relays alerts to Discord and SMS/WhatsApp subscribers.
// @host localhost:5100
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @license.name MIT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/fujinet/game-alerts/internal/account"
	"github.com/fujinet/game-alerts/internal/api"
	"github.com/fujinet/game-alerts/internal/config"
	"github.com/fujinet/game-alerts/internal/feed"
	"github.com/fujinet/game-alerts/internal/listener"
	"github.com/fujinet/game-alerts/internal/lock"
	"github.com/fujinet/game-alerts/internal/logging"
	"github.com/fujinet/game-alerts/internal/maintenance"
	"github.com/fujinet/game-alerts/internal/notify"
	"github.com/fujinet/game-alerts/internal/relay"
	"github.com/fujinet/game-alerts/internal/store/backend"

	_ "github.com/fujinet/game-alerts/docs" // swagger docs
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, logCloser := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	defer logCloser.Close()
	slog.SetDefault(logger)

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Open the event store
	logger.Info("Opening event store...", "postgres", cfg.IsPostgres())
	st, err := backend.Open(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open event store", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	logger.Info("Event store ready")

	// Outbound sinks; without credentials alerts are only logged
	var chat notify.ChatSink = notify.LogChat{Logger: logger}
	if cfg.DiscordWebhook != "" {
		d, err := notify.NewDiscord(cfg.DiscordWebhook, cfg.OutboundTimeout)
		if err != nil {
			logger.Error("Invalid DISCORD_WEBHOOK", "error", err)
			os.Exit(1)
		}
		chat = d
		logger.Info("Discord sink enabled")
	} else {
		logger.Info("Discord sink disabled (no DISCORD_WEBHOOK)")
	}

	var messages notify.MessageSink = notify.LogMessages{Logger: logger}
	if cfg.TwilioEnabled() {
		messages = notify.NewTwilio(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioNumber, cfg.OutboundTimeout, logger)
		logger.Info("Twilio sink enabled", "from", cfg.TwilioNumber)
	} else {
		logger.Info("Twilio sink disabled (TWILIO_ACCT_SID, TWILIO_AUTH_TOKEN, TWILIO_TN required)")
	}

	// Live feed. With Postgres every process learns about events through
	// LISTEN/NOTIFY, so the engine does not publish directly.
	hub := feed.NewHub(feed.AllowOrigins(cfg.CORSAllowOrigins), logger)
	var publisher relay.Publisher = hub
	if cfg.IsPostgres() {
		publisher = nil
		go listener.Start(ctx, cfg.DatabaseURL, hub, logger)
	}

	engine := relay.New(st, chat, messages, publisher, relay.Options{
		ThrottleWindow:     cfg.ThrottleWindow,
		StaleAfter:         cfg.SweepStale,
		RefreshOnHeartbeat: cfg.HeartbeatRefresh,
		DispatchTimeout:    cfg.OutboundTimeout,
		Concurrency:        cfg.NotifyConcurrency,
	}, logger)

	// Sweep lock: Redis when configured, otherwise a lease row in the store
	var locker lock.Locker = lock.NewStoreLocker(st, logger)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("Failed to connect to Redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		locker = lock.NewRedisLocker(rdb, "game-alerts:", logger)
		logger.Info("Redis sweep lock enabled", "addr", cfg.RedisAddr)
	}

	// Start maintenance tasks (daily sweep, retention cleanup)
	mcfg := maintenance.DefaultConfig()
	mcfg.SweepEnabled = cfg.SweepEnabled
	mcfg.SweepAt = cfg.SweepAt
	mcfg.SweepLease = cfg.SweepLease
	mcfg.DiagnosticRetention = cfg.DiagnosticRetention
	mcfg.UnconfirmedRetention = cfg.UnconfirmedRetention
	go maintenance.NewRunner(st, engine, locker, mcfg, logger).Start(ctx)

	var accounts *account.Service
	if cfg.AccountsEnabled() {
		accounts = account.New(st, messages, account.Options{
			Secret:   []byte(cfg.JWTSecret),
			TokenTTL: cfg.JWTTTL,
			CodeTTL:  cfg.VerificationTTL,
		}, logger)
	} else {
		logger.Info("Account API disabled (no JWT_SECRET)")
	}

	router := api.NewRouter(engine, accounts, hub, cfg)

	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting game alerts relay",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	// Let in-flight notifications finish before the store closes.
	engine.Wait()
	logger.Info("Server stopped")
}
