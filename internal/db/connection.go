// Package db connects to the metadata database.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridiandata/viewsync/internal/config"
)

const (
	defaultMaxConns       = 10
	defaultConnectTimeout = 10 * time.Second
	maxConnectElapsed     = 1 * time.Minute
)

// Connect opens a pgx pool to the metadata database and verifies it with a
// ping. Transient connection failures are retried with exponential backoff
// for up to a minute, which covers database restarts during deploys.
func Connect(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("metadata database configuration is required")
	}

	connStr, err := cfg.ConnectionString("postgres")
	if err != nil {
		return nil, fmt.Errorf("failed to build connection string: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	maxConns := cfg.MaxConns
	if maxConns == 0 {
		maxConns = defaultMaxConns
	}
	poolCfg.MaxConns = int32(maxConns) //nolint:gosec // bounded by config validation
	poolCfg.ConnConfig.ConnectTimeout = defaultConnectTimeout

	operation := func() (*pgxpool.Pool, error) {
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			// Config errors won't improve on retry.
			return nil, backoff.Permanent(err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			slog.Warn("Metadata database not reachable yet, retrying", "error", err)
			return nil, err
		}
		return pool, nil
	}

	pool, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(maxConnectElapsed),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to metadata database: %w", err)
	}

	slog.Info("Connected to metadata database",
		"host", cfg.Host, "database", cfg.Database, "max_conns", maxConns)
	return pool, nil
}
