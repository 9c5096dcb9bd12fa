package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/fujinet/game-alerts/internal/store"
	"github.com/fujinet/game-alerts/internal/store/storetest"
)

// The suite needs a disposable database; every table is truncated before
// each case.
func TestConformance(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		s, err := Open(ctx, url, Options{MaxConns: 8})
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })

		conn, err := pgx.Connect(ctx, url)
		require.NoError(t, err)
		defer conn.Close(ctx)
		_, err = conn.Exec(ctx, `TRUNCATE servers, events, subscribers, sms_errors, leases RESTART IDENTITY`)
		require.NoError(t, err)
		return s
	})
}
