// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

// Package memory is an in-process implementation of every repository and
// the transactor. It enforces the same uniqueness rules as the PostgreSQL
// schema and is used for development mode and tests.
//
// A single mutex serializes all access. A transaction holds the mutex for
// its whole duration and restores a snapshot when fn fails.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/opentablerpg/otrpg/internal/auth"
	"github.com/opentablerpg/otrpg/internal/invite"
	"github.com/opentablerpg/otrpg/internal/lobby"
)

// Store holds all records.
type Store struct {
	mu   sync.Mutex
	data *tables
}

type tables struct {
	accounts map[ulid.ULID]*auth.Account
	sessions map[ulid.ULID]*auth.Session
	lobbies  map[ulid.ULID]*lobby.Lobby
	members  map[ulid.ULID]*lobby.Member
	invites  map[ulid.ULID]*invite.Invite
}

// New creates an empty Store.
func New() *Store {
	return &Store{data: &tables{
		accounts: make(map[ulid.ULID]*auth.Account),
		sessions: make(map[ulid.ULID]*auth.Session),
		lobbies:  make(map[ulid.ULID]*lobby.Lobby),
		members:  make(map[ulid.ULID]*lobby.Member),
		invites:  make(map[ulid.ULID]*invite.Invite),
	}}
}

// Records are replaced on update, never mutated in place, so a shallow
// copy of each map is a consistent snapshot.
func (t *tables) snapshot() *tables {
	return &tables{
		accounts: maps.Clone(t.accounts),
		sessions: maps.Clone(t.sessions),
		lobbies:  maps.Clone(t.lobbies),
		members:  maps.Clone(t.members),
		invites:  maps.Clone(t.invites),
	}
}

type txKey struct{}

func (s *Store) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(txKey{}).(*Store)
	return ok && owner == s
}

// lock acquires the store mutex unless ctx already belongs to one of this
// store's transactions. The returned func releases what was acquired.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// InTransaction runs fn with exclusive access to the store. Changes made by
// fn are discarded if it returns an error. Nested calls join the outer
// transaction.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	saved := s.data.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.data = saved
		return err
	}
	return nil
}

// Ping always succeeds; it lets the store back readiness checks.
func (s *Store) Ping(context.Context) error {
	return nil
}

// Accounts returns the account repository.
func (s *Store) Accounts() *AccountRepository { return &AccountRepository{s: s} }

// Sessions returns the session repository.
func (s *Store) Sessions() *SessionRepository { return &SessionRepository{s: s} }

// Lobbies returns the lobby repository.
func (s *Store) Lobbies() *LobbyRepository { return &LobbyRepository{s: s} }

// Members returns the member repository.
func (s *Store) Members() *MemberRepository { return &MemberRepository{s: s} }

// Invites returns the invite repository.
func (s *Store) Invites() *InviteRepository { return &InviteRepository{s: s} }

var _ lobby.Transactor = (*Store)(nil)

func ptr[T any](v T) *T { return &v }
