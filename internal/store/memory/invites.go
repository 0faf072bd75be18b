// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

package memory

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/opentablerpg/otrpg/internal/invite"
	"github.com/opentablerpg/otrpg/pkg/errutil"
)

// InviteRepository implements invite.Repository.
type InviteRepository struct {
	s *Store
}

var _ invite.Repository = (*InviteRepository)(nil)

func cloneInvite(i *invite.Invite) *invite.Invite {
	c := *i
	if i.UsedAt != nil {
		c.UsedAt = ptr(*i.UsedAt)
	}
	if i.RevokedAt != nil {
		c.RevokedAt = ptr(*i.RevokedAt)
	}
	return &c
}

// Create stores a new invite.
func (r *InviteRepository) Create(ctx context.Context, inv *invite.Invite) error {
	defer r.s.lock(ctx)()

	if _, exists := r.s.data.invites[inv.ID]; exists {
		return oops.Code("INVITE_ID_TAKEN").With("id", inv.ID.String()).Wrap(errutil.ErrConflict)
	}
	if _, ok := r.s.data.lobbies[inv.LobbyID]; !ok {
		return oops.Code("INVITE_LOBBY_MISSING").With("lobby_id", inv.LobbyID.String()).
			Errorf("lobby does not exist")
	}
	for _, existing := range r.s.data.invites {
		if existing.TokenHash == inv.TokenHash {
			return oops.Code("INVITE_TOKEN_TAKEN").Wrap(errutil.ErrConflict)
		}
	}
	r.s.data.invites[inv.ID] = cloneInvite(inv)
	return nil
}

// GetByTokenHash retrieves an invite by token hash.
func (r *InviteRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*invite.Invite, error) {
	defer r.s.lock(ctx)()

	for _, inv := range r.s.data.invites {
		if inv.TokenHash == tokenHash {
			return cloneInvite(inv), nil
		}
	}
	return nil, oops.Code("INVITE_NOT_FOUND").Wrap(errutil.ErrNotFound)
}

// MarkUsed sets UsedAt if the invite is still redeemable.
func (r *InviteRepository) MarkUsed(ctx context.Context, id ulid.ULID, at time.Time) (bool, error) {
	defer r.s.lock(ctx)()

	inv, ok := r.s.data.invites[id]
	if !ok || inv.IsUsed() || inv.IsRevoked() {
		return false, nil
	}
	updated := cloneInvite(inv)
	updated.UsedAt = ptr(at)
	r.s.data.invites[id] = updated
	return true, nil
}

// RevokePending revokes every open invite for (lobby, email).
func (r *InviteRepository) RevokePending(ctx context.Context, lobbyID ulid.ULID, email string, at time.Time) (int64, error) {
	defer r.s.lock(ctx)()

	var n int64
	for id, inv := range r.s.data.invites {
		if inv.LobbyID != lobbyID || inv.TargetEmail != email || inv.IsUsed() || inv.IsRevoked() {
			continue
		}
		updated := cloneInvite(inv)
		updated.RevokedAt = ptr(at)
		r.s.data.invites[id] = updated
		n++
	}
	return n, nil
}
