// Package factory selects the concrete storage drivers based on
// configuration. Boot fails fast on an unknown driver.
package factory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/reelscript/reelscript/internal/config"
	"github.com/reelscript/reelscript/internal/ephemeral"
	"github.com/reelscript/reelscript/internal/ephemeral/badgerstore"
	"github.com/reelscript/reelscript/internal/ephemeral/redisstore"
	"github.com/reelscript/reelscript/internal/store"
	"github.com/reelscript/reelscript/internal/store/postgres"
)

// NewStore opens the durable Postgres store and applies the schema. The
// returned *sql.DB is shared with the queue, which owns its own polling SQL.
func NewStore(ctx context.Context, cfg *config.Config) (store.Store, *sql.DB, error) {
	db, err := postgres.Open(ctx, cfg.PostgresDSN, cfg.QueueConcurrency*2+4)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.Bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("apply schema: %w", err)
	}
	return postgres.NewWithDB(db), db, nil
}

// NewEphemeral selects the ephemeral driver from cfg.EphemeralDriver.
func NewEphemeral(ctx context.Context, cfg *config.Config) (ephemeral.Store, error) {
	switch cfg.EphemeralDriver {
	case ephemeral.DriverRedis:
		return redisstore.Open(ctx, cfg.EphemeralURL)
	case ephemeral.DriverBadger:
		return badgerstore.Open(cfg.BadgerPath)
	default:
		return nil, fmt.Errorf("unknown EPHEMERAL_DRIVER: %s", cfg.EphemeralDriver)
	}
}
