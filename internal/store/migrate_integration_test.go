//go:build integration

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

package store_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/opentablerpg/otrpg/internal/store"
)

func TestMigrator_FullCycle(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("otrpg_test"),
		postgres.WithUsername("otrpg"),
		postgres.WithPassword("otrpg"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrator, err := store.NewMigrator(connStr)
	require.NoError(t, err)
	defer migrator.Close()

	status, err := migrator.Status()
	require.NoError(t, err)
	assert.Zero(t, status.Version)
	assert.NotEmpty(t, status.Pending)

	require.NoError(t, migrator.Up())

	status, err = migrator.Status()
	require.NoError(t, err)
	assert.Positive(t, status.Version)
	assert.False(t, status.Dirty)
	assert.Empty(t, status.Pending)
	latest := status.Version

	pool, err := store.Connect(ctx, connStr, 3, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer pool.Close()

	var tables int
	err = pool.QueryRow(ctx, `
		SELECT count(*) FROM information_schema.tables
		WHERE table_schema = 'public'
		  AND table_name IN ('accounts', 'sessions', 'lobbies', 'lobby_members', 'invites')
	`).Scan(&tables)
	require.NoError(t, err)
	assert.Equal(t, 5, tables)

	require.NoError(t, migrator.Steps(-1))
	version, _, err := migrator.Version()
	require.NoError(t, err)
	assert.Equal(t, latest-1, version)

	require.NoError(t, migrator.Steps(1))
	require.NoError(t, migrator.Down())

	version, dirty, err := migrator.Version()
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, dirty)
}
