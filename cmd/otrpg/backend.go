// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/opentablerpg/otrpg/internal/auth"
	"github.com/opentablerpg/otrpg/internal/config"
	"github.com/opentablerpg/otrpg/internal/invite"
	"github.com/opentablerpg/otrpg/internal/lobby"
	"github.com/opentablerpg/otrpg/internal/store"
	"github.com/opentablerpg/otrpg/internal/store/memory"
	"github.com/opentablerpg/otrpg/internal/store/postgres"
)

// backend bundles the repositories of one storage implementation.
type backend struct {
	accounts auth.AccountRepository
	sessions auth.SessionRepository
	lobbies  lobby.LobbyRepository
	members  lobby.MemberRepository
	invites  invite.Repository
	tx       lobby.Transactor
	ping     func(ctx context.Context) error
	close    func()
}

// openBackend connects the store selected by cfg. With autoMigrate set,
// pending PostgreSQL migrations are applied before the pool is opened.
func openBackend(ctx context.Context, cfg *config.Config, autoMigrate bool, logger *slog.Logger) (*backend, error) {
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory store; data is lost on exit")
		s := memory.New()
		return &backend{
			accounts: s.Accounts(),
			sessions: s.Sessions(),
			lobbies:  s.Lobbies(),
			members:  s.Members(),
			invites:  s.Invites(),
			tx:       s,
			ping:     s.Ping,
			close:    func() {},
		}, nil

	case config.StorePostgres:
		if autoMigrate {
			if err := migrateUp(cfg.Database.URL, logger); err != nil {
				return nil, err
			}
		}
		pool, err := store.Connect(ctx, cfg.Database.URL, cfg.Database.ConnectRetries, logger)
		if err != nil {
			return nil, err
		}
		return &backend{
			accounts: postgres.NewAccountRepository(pool),
			sessions: postgres.NewSessionRepository(pool),
			lobbies:  postgres.NewLobbyRepository(pool),
			members:  postgres.NewMemberRepository(pool),
			invites:  postgres.NewInviteRepository(pool),
			tx:       store.NewTransactor(pool),
			ping:     pool.Ping,
			close:    pool.Close,
		}, nil
	}
	return nil, oops.Code("CONFIG_INVALID").With("key", "store").Errorf("unknown store %q", cfg.Store)
}

func migrateUp(databaseURL string, logger *slog.Logger) error {
	migrator, err := store.NewMigrator(databaseURL)
	if err != nil {
		return oops.Code("AUTO_MIGRATE_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATE_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	logger.Info("database migrations applied")
	return nil
}
