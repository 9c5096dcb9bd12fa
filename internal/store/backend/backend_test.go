package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fujinet/game-alerts/internal/config"
	"github.com/fujinet/game-alerts/internal/store/sqlite"
)

func TestOpenSelectsSQLite(t *testing.T) {
	cfg := &config.Config{DatabaseURL: filepath.Join(t.TempDir(), "nested", "events.db")}
	st, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer st.Close()

	_, ok := st.(*sqlite.Store)
	assert.True(t, ok)
	assert.NoError(t, st.Ping(context.Background()))
}
