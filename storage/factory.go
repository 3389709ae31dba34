package storage

import (
	"context"
	"fmt"

	"vfm-car-finder/config"
)

// Open returns the run store selected by cfg.Store, or nil for "none".
func Open(ctx context.Context, cfg *config.Config) (*SQLWriter, error) {
	switch cfg.Store {
	case config.StorePostgres:
		return NewPostgresWriter(ctx, cfg.DSN())
	case config.StoreSQLite:
		return NewSQLiteWriter(ctx, cfg.SQLitePath)
	case config.StoreNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("storage: unknown store %q", cfg.Store)
	}
}
