package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"DATABASE_URL", "API_PORT", "PORT", "SWEEP_AT", "TWILIO_VALIDATE_SIGNATURE", "HEARTBEAT_REFRESH"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultDatabase, cfg.DatabaseURL)
	assert.False(t, cfg.IsPostgres())
	assert.Equal(t, 5100, cfg.APIPort)
	assert.Equal(t, 4*time.Hour, cfg.SweepAt)
	assert.Equal(t, 24*time.Hour, cfg.ThrottleWindow)
	assert.False(t, cfg.HeartbeatRefresh)
	assert.Equal(t, 4, cfg.LogMaxBackups)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://relay@localhost/relay")
	t.Setenv("API_PORT", "8080")
	t.Setenv("SWEEP_AT", "23:30")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("TWILIO_ACCT_SID", "AC1")
	t.Setenv("TWILIO_AUTH_TOKEN", "tok")
	t.Setenv("TWILIO_TN", "+15550100")
	t.Setenv("PUBLIC_BASE_URL", "https://relay.example/")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsPostgres())
	assert.Equal(t, 8080, cfg.APIPort)
	assert.Equal(t, 23*time.Hour+30*time.Minute, cfg.SweepAt)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowOrigins)
	assert.True(t, cfg.TwilioEnabled())
	assert.Equal(t, "https://relay.example", cfg.PublicURL)
}

func TestLoadRejects(t *testing.T) {
	t.Setenv("SWEEP_AT", "4am")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("SWEEP_AT", "")
	t.Setenv("TWILIO_VALIDATE_SIGNATURE", "true")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	_, err = Load()
	assert.Error(t, err)
}
