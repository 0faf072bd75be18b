// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

package memory

import (
	"context"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/opentablerpg/otrpg/internal/lobby"
	"github.com/opentablerpg/otrpg/pkg/errutil"
)

// MemberRepository implements lobby.MemberRepository.
type MemberRepository struct {
	s *Store
}

var _ lobby.MemberRepository = (*MemberRepository)(nil)

func cloneMember(m *lobby.Member) *lobby.Member {
	c := *m
	if m.UserID != nil {
		c.UserID = ptr(*m.UserID)
	}
	if m.TargetEmail != nil {
		c.TargetEmail = ptr(*m.TargetEmail)
	}
	return &c
}

func sameEmail(m *lobby.Member, email string) bool {
	return m.TargetEmail != nil && *m.TargetEmail == email
}

// checkInsert applies the constraints of the lobby_members table to a new
// or replacement row. skip is the ID of the row being replaced.
func (r *MemberRepository) checkInsert(m *lobby.Member, skip ulid.ULID) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if _, ok := r.s.data.lobbies[m.LobbyID]; !ok {
		return oops.Code("MEMBER_LOBBY_MISSING").With("lobby_id", m.LobbyID.String()).
			Errorf("lobby does not exist")
	}
	for id, existing := range r.s.data.members {
		if id == skip || existing.LobbyID != m.LobbyID {
			continue
		}
		switch {
		case m.UserID != nil && existing.BelongsTo(*m.UserID):
			return oops.Code("MEMBER_DUPLICATE_USER").Wrapf(errutil.ErrConflict, "account is already a member of this lobby")
		case m.TargetEmail != nil && sameEmail(existing, *m.TargetEmail):
			return oops.Code("MEMBER_DUPLICATE_EMAIL").Wrapf(errutil.ErrConflict, "email is already invited to this lobby")
		case m.IsDM && existing.IsDM:
			return oops.Code("MEMBER_DUPLICATE_DM").Wrapf(errutil.ErrConflict, "lobby already has a DM")
		}
	}
	return nil
}

// Create stores a new member row.
func (r *MemberRepository) Create(ctx context.Context, m *lobby.Member) error {
	defer r.s.lock(ctx)()

	if _, exists := r.s.data.members[m.ID]; exists {
		return oops.Code("MEMBER_ID_TAKEN").With("id", m.ID.String()).Wrap(errutil.ErrConflict)
	}
	if err := r.checkInsert(m, ulid.ULID{}); err != nil {
		return err
	}
	r.s.data.members[m.ID] = cloneMember(m)
	return nil
}

// ListByLobby returns a lobby's members in creation order.
func (r *MemberRepository) ListByLobby(ctx context.Context, lobbyID ulid.ULID) ([]*lobby.Member, error) {
	defer r.s.lock(ctx)()

	var result []*lobby.Member
	for _, m := range r.s.data.members {
		if m.LobbyID == lobbyID {
			result = append(result, cloneMember(m))
		}
	}
	slices.SortFunc(result, func(a, b *lobby.Member) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return a.ID.Compare(b.ID)
	})
	return result, nil
}

// GetByUser returns the member row linking userID to the lobby.
func (r *MemberRepository) GetByUser(ctx context.Context, lobbyID, userID ulid.ULID) (*lobby.Member, error) {
	defer r.s.lock(ctx)()

	for _, m := range r.s.data.members {
		if m.LobbyID == lobbyID && m.BelongsTo(userID) {
			return cloneMember(m), nil
		}
	}
	return nil, oops.Code("MEMBER_NOT_FOUND").With("lobby_id", lobbyID.String()).Wrap(errutil.ErrNotFound)
}

// GetByEmail returns the member row keyed by email.
func (r *MemberRepository) GetByEmail(ctx context.Context, lobbyID ulid.ULID, email string) (*lobby.Member, error) {
	defer r.s.lock(ctx)()

	for _, m := range r.s.data.members {
		if m.LobbyID == lobbyID && sameEmail(m, email) {
			return cloneMember(m), nil
		}
	}
	return nil, oops.Code("MEMBER_NOT_FOUND").With("lobby_id", lobbyID.String()).Wrap(errutil.ErrNotFound)
}

// UpsertInvited inserts m or resets the existing (lobby, email) row.
func (r *MemberRepository) UpsertInvited(ctx context.Context, m *lobby.Member) (*lobby.Member, error) {
	defer r.s.lock(ctx)()

	if m.TargetEmail == nil {
		return nil, oops.Code("MEMBER_INVALID_EMAIL").Wrapf(errutil.ErrValidation, "target email is required")
	}

	for id, existing := range r.s.data.members {
		if existing.LobbyID != m.LobbyID || !sameEmail(existing, *m.TargetEmail) {
			continue
		}
		updated := cloneMember(existing)
		updated.Status = lobby.StatusInvited
		updated.UserID = nil
		updated.IsDM = false
		updated.UpdatedAt = m.UpdatedAt
		r.s.data.members[id] = updated
		return cloneMember(updated), nil
	}

	row := cloneMember(m)
	row.Status = lobby.StatusInvited
	row.UserID = nil
	row.IsDM = false
	if err := r.checkInsert(row, ulid.ULID{}); err != nil {
		return nil, err
	}
	r.s.data.members[row.ID] = row
	return cloneMember(row), nil
}

// Activate links a pending member to userID.
func (r *MemberRepository) Activate(ctx context.Context, memberID, userID ulid.ULID, at time.Time) (*lobby.Member, error) {
	defer r.s.lock(ctx)()

	existing, ok := r.s.data.members[memberID]
	if !ok || !existing.IsPending() {
		return nil, oops.Code("MEMBER_NOT_PENDING").With("id", memberID.String()).
			Wrapf(errutil.ErrGone, "member is no longer pending")
	}

	updated := cloneMember(existing)
	updated.Status = lobby.StatusActive
	updated.UserID = ptr(userID)
	updated.TargetEmail = nil
	updated.UpdatedAt = at
	if err := r.checkInsert(updated, memberID); err != nil {
		return nil, err
	}
	r.s.data.members[memberID] = updated
	return cloneMember(updated), nil
}
