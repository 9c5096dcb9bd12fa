// Package backend selects the store implementation from DATABASE_URL.
package backend

import (
	"context"
	"strings"

	"github.com/fujinet/game-alerts/internal/config"
	"github.com/fujinet/game-alerts/internal/store"
	"github.com/fujinet/game-alerts/internal/store/postgres"
	"github.com/fujinet/game-alerts/internal/store/sqlite"
)

// Open returns a Postgres store for postgres:// URLs and a SQLite store for
// anything else (a path or file: DSN).
func Open(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.IsPostgres() {
		st, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.Options{
			MinConns:        cfg.DBPoolMinConns,
			MaxConns:        cfg.DBPoolMaxConns,
			MaxConnLifetime: cfg.DBPoolMaxLife,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	st, err := sqlite.Open(ctx, strings.TrimPrefix(cfg.DatabaseURL, "sqlite://"))
	if err != nil {
		return nil, err
	}
	return st, nil
}
