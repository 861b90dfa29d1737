package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ISTE-SAL/InGress/internal/config"
	"github.com/ISTE-SAL/InGress/internal/database"
	"github.com/ISTE-SAL/InGress/internal/repository/postgres"
	"github.com/ISTE-SAL/InGress/internal/repository/sqlite"
	"github.com/ISTE-SAL/InGress/internal/service"
)

type stores struct {
	events       service.EventStore
	participants service.RosterStore
	close        func()
}

// openStores connects to the configured backend and applies its schema.
func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		if cfg.SQLitePath == "" {
			logger.Warn("sqlitePath is empty, using an in-memory database", "component", "store")
		}
		db, err := database.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := sqlite.Migrate(db); err != nil {
			_ = database.CloseSQLite(db)
			return nil, err
		}
		logger.Info("using sqlite store", "component", "store", "path", cfg.SQLitePath)
		return &stores{
			events:       sqlite.NewEventRepository(db),
			participants: sqlite.NewParticipantRepository(db),
			close:        func() { _ = database.CloseSQLite(db) },
		}, nil
	case config.StorePostgres:
		pool, err := database.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("connected to PostgreSQL", "component", "store", "host", cfg.Database.Host, "db", cfg.Database.DBName)
		return &stores{
			events:       postgres.NewEventRepository(pool),
			participants: postgres.NewParticipantRepository(pool),
			close:        pool.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
