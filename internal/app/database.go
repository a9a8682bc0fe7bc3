package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prn-tf/boxvault/internal/config"
	"github.com/prn-tf/boxvault/internal/repository"
	"github.com/prn-tf/boxvault/internal/repository/postgres"
	"github.com/prn-tf/boxvault/internal/repository/sqlite"
)

// Database is a catalog store with migrations.
type Database interface {
	repository.DatabaseHealth

	Migrate(ctx context.Context) error
	MigrateDown(ctx context.Context) error
	SchemaVersion(ctx context.Context) (int64, error)
	Repositories() *repository.Repositories
}

// OpenDatabase connects to the configured catalog driver.
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (Database, error) {
	logger = logger.With().Str("component", "database").Str("driver", cfg.Driver).Logger()

	switch cfg.Driver {
	case "postgres":
		db, err := postgres.NewDB(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return db, nil

	case "sqlite":
		db, err := sqlite.NewDB(ctx, sqliteConfig(cfg), logger)
		if err != nil {
			return nil, err
		}
		return db, nil
	}

	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

func sqliteConfig(cfg config.DatabaseConfig) sqlite.Config {
	sc := sqlite.DefaultConfig(cfg.Path)
	if cfg.JournalMode != "" {
		sc.JournalMode = cfg.JournalMode
	}
	if cfg.BusyTimeout > 0 {
		sc.BusyTimeout = cfg.BusyTimeout
	}
	if cfg.CacheSize != 0 {
		sc.CacheSize = cfg.CacheSize
	}
	if cfg.SynchronousMode != "" {
		sc.SynchronousMode = cfg.SynchronousMode
	}
	return sc
}
