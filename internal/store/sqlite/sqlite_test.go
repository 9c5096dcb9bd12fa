package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fujinet/game-alerts/internal/store"
	"github.com/fujinet/game-alerts/internal/store/storetest"
)

func openTemp(t *testing.T) store.Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, openTemp)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// migrations run again against an existing file
	s, err = Open(ctx, "file:"+path)
	require.NoError(t, err)
	defer s.Close()
	assert.NoError(t, s.Ping(ctx))
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "file:a.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate", dsn("a.db"))
	assert.Contains(t, dsn("file:a.db?mode=rwc"), "file:a.db?mode=rwc&_pragma=")
	assert.Equal(t, "a.db", filePart("file:a.db?mode=rwc"))
}
