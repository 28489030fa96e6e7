package cmd

import (
	"context"

	"github.com/namelens/promptc/internal/config"
	"github.com/namelens/promptc/internal/store"
)

func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, &configError{err: err}
	}
	return cfg, nil
}

// openStore opens the catalog database and applies migrations.
func openStore(ctx context.Context) (*store.Store, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	return store.OpenMigrated(ctx, cfg.Store)
}
