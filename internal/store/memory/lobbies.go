// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

package memory

import (
	"context"
	"slices"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/opentablerpg/otrpg/internal/lobby"
	"github.com/opentablerpg/otrpg/pkg/errutil"
)

// LobbyRepository implements lobby.LobbyRepository.
type LobbyRepository struct {
	s *Store
}

var _ lobby.LobbyRepository = (*LobbyRepository)(nil)

func cloneLobby(l *lobby.Lobby) *lobby.Lobby {
	c := *l
	return &c
}

// Create stores a new lobby.
func (r *LobbyRepository) Create(ctx context.Context, l *lobby.Lobby) error {
	defer r.s.lock(ctx)()

	if _, exists := r.s.data.lobbies[l.ID]; exists {
		return oops.Code("LOBBY_ID_TAKEN").With("id", l.ID.String()).Wrap(errutil.ErrConflict)
	}
	if _, ok := r.s.data.accounts[l.CreatedBy]; !ok {
		return oops.Code("LOBBY_OWNER_MISSING").With("created_by", l.CreatedBy.String()).
			Errorf("owner account does not exist")
	}
	r.s.data.lobbies[l.ID] = cloneLobby(l)
	return nil
}

// GetByID retrieves a lobby by ID.
func (r *LobbyRepository) GetByID(ctx context.Context, id ulid.ULID) (*lobby.Lobby, error) {
	defer r.s.lock(ctx)()

	l, ok := r.s.data.lobbies[id]
	if !ok {
		return nil, oops.Code("LOBBY_NOT_FOUND").With("id", id.String()).Wrap(errutil.ErrNotFound)
	}
	return cloneLobby(l), nil
}

// ListByMember returns the lobbies userID belongs to, newest first.
func (r *LobbyRepository) ListByMember(ctx context.Context, userID ulid.ULID) ([]*lobby.Lobby, error) {
	defer r.s.lock(ctx)()

	var result []*lobby.Lobby
	for _, m := range r.s.data.members {
		if !m.BelongsTo(userID) {
			continue
		}
		if l, ok := r.s.data.lobbies[m.LobbyID]; ok {
			result = append(result, cloneLobby(l))
		}
	}
	slices.SortFunc(result, func(a, b *lobby.Lobby) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return b.ID.Compare(a.ID)
	})
	return result, nil
}
