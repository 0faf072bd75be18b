// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Connect backoff bounds.
const (
	connectBaseDelay = 250 * time.Millisecond
	connectMaxDelay  = 5 * time.Second
)

// Connect opens a pool for databaseURL and waits until the database answers
// a ping, retrying up to retries times with capped exponential backoff.
func Connect(ctx context.Context, databaseURL string, retries uint64, logger *slog.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := pingWithRetry(ctx, pool, retries, logger); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func pingWithRetry(ctx context.Context, pool Pool, retries uint64, logger *slog.Logger) error {
	backoff := retry.WithMaxRetries(retries,
		retry.WithCappedDuration(connectMaxDelay, retry.NewExponential(connectBaseDelay)))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := pool.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}
