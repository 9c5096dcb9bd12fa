// Package config provides centralized configuration loaded from environment
// variables. Shared by cmd/relay and cmd/relayctl.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultDatabase is the SQLite file used when DATABASE_URL is unset.
const DefaultDatabase = "gameEvents.db"

// --------------------------------------------------------------------------
// Config struct, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	PublicURL   string // external base URL, used for webhook signatures

	// Logging
	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int

	// CORS
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Outbound sinks
	DiscordWebhook          string
	TwilioAccountSID        string
	TwilioAuthToken         string
	TwilioNumber            string
	TwilioValidateSignature bool
	OutboundTimeout         time.Duration
	NotifyConcurrency       int

	// Notification policy
	ThrottleWindow   time.Duration
	HeartbeatRefresh bool

	// Sweep
	SweepEnabled bool
	SweepAt      time.Duration // offset from 00:00 UTC
	SweepStale   time.Duration
	SweepLease   time.Duration

	// Redis (optional sweep lock)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Dashboard accounts
	JWTSecret       string
	JWTTTL          time.Duration
	VerificationTTL time.Duration

	// Retention
	DiagnosticRetention  time.Duration
	UnconfirmedRetention time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	sweepAt, err := parseClock(envOr("SWEEP_AT", "04:00"))
	if err != nil {
		return nil, fmt.Errorf("SWEEP_AT: %w", err)
	}

	cfg := &Config{
		DatabaseURL:    envOr("DATABASE_URL", DefaultDatabase),
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 1),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 5100)),
		Environment: envOr("ENVIRONMENT", "development"),
		PublicURL:   strings.TrimRight(envOr("PUBLIC_BASE_URL", ""), "/"),

		LogLevel:      envOr("LOG_LEVEL", "info"),
		LogFile:       envOr("LOG_FILE", ""),
		LogMaxSizeMB:  envInt("LOG_MAX_SIZE_MB", 50),
		LogMaxBackups: envInt("LOG_MAX_BACKUPS", 4),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		DiscordWebhook:          envOr("DISCORD_WEBHOOK", ""),
		TwilioAccountSID:        envOr("TWILIO_ACCT_SID", ""),
		TwilioAuthToken:         envOr("TWILIO_AUTH_TOKEN", ""),
		TwilioNumber:            envOr("TWILIO_TN", ""),
		TwilioValidateSignature: envBool("TWILIO_VALIDATE_SIGNATURE", false),
		OutboundTimeout:         time.Duration(envInt("OUTBOUND_TIMEOUT_SECONDS", 10)) * time.Second,
		NotifyConcurrency:       envInt("NOTIFY_CONCURRENCY", 4),

		ThrottleWindow:   time.Duration(envInt("THROTTLE_WINDOW_HOURS", 24)) * time.Hour,
		HeartbeatRefresh: envBool("HEARTBEAT_REFRESH", false),

		SweepEnabled: envBool("SWEEP_ENABLED", true),
		SweepAt:      sweepAt,
		SweepStale:   time.Duration(envInt("SWEEP_STALE_HOURS", 24)) * time.Hour,
		SweepLease:   time.Duration(envInt("SWEEP_LEASE_MINUTES", 15)) * time.Minute,

		RedisAddr:     envOr("REDIS_ADDR", ""),
		RedisPassword: envOr("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0),

		JWTSecret:       envOr("JWT_SECRET", ""),
		JWTTTL:          time.Duration(envInt("JWT_TTL_HOURS", 24)) * time.Hour,
		VerificationTTL: time.Duration(envInt("VERIFICATION_CODE_TTL_MINUTES", 10)) * time.Minute,

		DiagnosticRetention:  time.Duration(envInt("DIAGNOSTIC_RETENTION_DAYS", 90)) * 24 * time.Hour,
		UnconfirmedRetention: time.Duration(envInt("UNCONFIRMED_RETENTION_DAYS", 7)) * 24 * time.Hour,
	}

	if cfg.TwilioValidateSignature && cfg.TwilioAuthToken == "" {
		return nil, fmt.Errorf("TWILIO_VALIDATE_SIGNATURE requires TWILIO_AUTH_TOKEN")
	}
	return cfg, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsPostgres reports whether DatabaseURL selects the Postgres backend.
func (c *Config) IsPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

// TwilioEnabled reports whether the SMS/WhatsApp gateway is configured.
func (c *Config) TwilioEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioNumber != ""
}

// AccountsEnabled reports whether the dashboard account API can issue
// session tokens.
func (c *Config) AccountsEnabled() bool {
	return c.JWTSecret != ""
}

// parseClock turns "HH:MM" into an offset from midnight.
func parseClock(v string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("want HH:MM, got %q", v)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
