// Package database provides PostgreSQL connection management using pgx
// and the embedded SQLite alternative used for single-door deployments.
package database

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ISTE-SAL/InGress/internal/config"
	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

const connectAttempts = 5

// connectInterval is the pause between connection attempts.
var connectInterval = 2 * time.Second

// NewPool creates and validates a pgxpool connection pool.
// It retries a few times to accommodate containers starting up.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	return connect(ctx, poolCfg, logger)
}

func connect(ctx context.Context, poolCfg *pgxpool.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(connectInterval), connectAttempts-1),
		ctx,
	)
	attempt := 0
	pool, err := backoff.RetryNotifyWithData(func() (*pgxpool.Pool, error) {
		attempt++
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return pool, nil
	}, policy, func(err error, wait time.Duration) {
		logger.Warn(
			"db connect attempt failed, retrying",
			"component", "database",
			"attempt", attempt,
			"max_attempts", connectAttempts,
			"retry_in", wait,
			"error", err,
		)
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return pool, nil
}

// Migrate creates the events and participants tables if missing.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
