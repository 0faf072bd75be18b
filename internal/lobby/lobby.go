// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

// Package lobby manages lobbies and their membership.
//
// Every lobby has exactly one DM member, created together with the lobby.
// Other members are either resolved accounts or pending invitees keyed by
// normalized email; a member row never carries both or neither.
package lobby

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/opentablerpg/otrpg/internal/auth"
	"github.com/opentablerpg/otrpg/pkg/errutil"
)

// MaxNameLength is the longest lobby name accepted, in characters.
const MaxNameLength = 100

// Status is the lifecycle state of a member row.
type Status string

// Member statuses.
const (
	StatusActive  Status = "active"
	StatusInvited Status = "invited"
)

// Lobby is a play space owned by the GM who created it.
type Lobby struct {
	ID        ulid.ULID
	Name      string
	CreatedBy ulid.ULID
	CreatedAt time.Time
}

// Member associates a lobby with an account or a pending invitee.
type Member struct {
	ID          ulid.ULID
	LobbyID     ulid.ULID
	UserID      *ulid.ULID
	TargetEmail *string
	Status      Status
	IsDM        bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsPending reports whether the member is an invitee without an account link.
func (m *Member) IsPending() bool {
	return m.Status == StatusInvited && m.UserID == nil
}

// IsActiveDM reports whether the member is the lobby's active DM.
func (m *Member) IsActiveDM() bool {
	return m.IsDM && m.Status == StatusActive
}

// BelongsTo reports whether the member row is linked to accountID.
func (m *Member) BelongsTo(accountID ulid.ULID) bool {
	return m.UserID != nil && *m.UserID == accountID
}

// Validate checks the exactly-one-identity rule.
func (m *Member) Validate() error {
	hasUser := m.UserID != nil
	hasEmail := m.TargetEmail != nil
	if hasUser == hasEmail {
		return oops.Code("MEMBER_IDENTITY_INVALID").
			With("member_id", m.ID.String()).
			With("has_user", hasUser).
			With("has_email", hasEmail).
			Wrapf(errutil.ErrInvariantViolation, "member must reference exactly one of user or email")
	}
	if m.Status != StatusActive && m.Status != StatusInvited {
		return oops.Code("MEMBER_STATUS_INVALID").
			With("status", string(m.Status)).
			Wrapf(errutil.ErrInvariantViolation, "unknown member status %q", m.Status)
	}
	return nil
}

// NewLobby creates a validated Lobby. The name is trimmed and must be
// between 1 and MaxNameLength characters.
func NewLobby(name string, createdBy ulid.ULID, now time.Time) (*Lobby, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return nil, oops.Code("LOBBY_INVALID_NAME").
			With("length", utf8.RuneCountInString(name)).
			Wrapf(errutil.ErrValidation, "lobby name must be 1-%d characters", MaxNameLength)
	}
	return &Lobby{
		ID:        ulid.Make(),
		Name:      name,
		CreatedBy: createdBy,
		CreatedAt: now,
	}, nil
}

// NewDMMember creates the active DM member row for a lobby owner.
func NewDMMember(lobbyID, ownerID ulid.ULID, now time.Time) *Member {
	return &Member{
		ID:        ulid.Make(),
		LobbyID:   lobbyID,
		UserID:    &ownerID,
		Status:    StatusActive,
		IsDM:      true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewPendingMember creates an invited member row keyed by normalized email.
func NewPendingMember(lobbyID ulid.ULID, email string, now time.Time) (*Member, error) {
	email = auth.NormalizeEmail(email)
	if email == "" {
		return nil, oops.Code("MEMBER_INVALID_EMAIL").Wrapf(errutil.ErrValidation, "target email cannot be empty")
	}
	return &Member{
		ID:          ulid.Make(),
		LobbyID:     lobbyID,
		TargetEmail: &email,
		Status:      StatusInvited,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Detail is a lobby together with all of its member rows.
type Detail struct {
	Lobby   *Lobby
	Members []*Member
}

// DM returns the lobby's DM member.
func (d *Detail) DM() *Member {
	for _, m := range d.Members {
		if m.IsDM {
			return m
		}
	}
	return nil
}

// ToDetail projects a lobby and its members into a Detail. A DM count other
// than one is a defect and fails with errutil.ErrInvariantViolation.
func ToDetail(l *Lobby, members []*Member) (*Detail, error) {
	dmCount := 0
	for _, m := range members {
		if m.IsDM {
			dmCount++
		}
	}
	if dmCount != 1 {
		return nil, oops.Code("LOBBY_DM_INVARIANT").
			With("lobby_id", l.ID.String()).
			With("dm_count", dmCount).
			Wrapf(errutil.ErrInvariantViolation, "lobby has %d DM members", dmCount)
	}
	return &Detail{Lobby: l, Members: members}, nil
}

// LobbyRepository manages lobby persistence.
type LobbyRepository interface {
	// Create stores a new lobby.
	Create(ctx context.Context, l *Lobby) error

	// GetByID retrieves a lobby by ID.
	// Returns an error wrapping errutil.ErrNotFound if absent.
	GetByID(ctx context.Context, id ulid.ULID) (*Lobby, error)

	// ListByMember returns the lobbies in which userID holds a member row,
	// newest first.
	ListByMember(ctx context.Context, userID ulid.ULID) ([]*Lobby, error)
}

// MemberRepository manages member persistence.
type MemberRepository interface {
	// Create stores a new member row. A duplicate (lobby, user),
	// (lobby, email), or a second DM fails with errutil.ErrConflict.
	Create(ctx context.Context, m *Member) error

	// ListByLobby returns every member row of a lobby in creation order.
	ListByLobby(ctx context.Context, lobbyID ulid.ULID) ([]*Member, error)

	// GetByUser returns the member row linking userID to the lobby.
	// Returns an error wrapping errutil.ErrNotFound if absent.
	GetByUser(ctx context.Context, lobbyID, userID ulid.ULID) (*Member, error)

	// GetByEmail returns the member row keyed by the normalized email.
	// Returns an error wrapping errutil.ErrNotFound if absent.
	GetByEmail(ctx context.Context, lobbyID ulid.ULID, email string) (*Member, error)

	// UpsertInvited inserts m, or resets the existing (lobby, email) row to
	// invited with no user and no DM flag. Returns the stored row.
	UpsertInvited(ctx context.Context, m *Member) (*Member, error)

	// Activate links a pending member to userID, marks it active, and clears
	// its target email. A member that is no longer pending fails with
	// errutil.ErrGone; an existing (lobby, user) row with errutil.ErrConflict.
	Activate(ctx context.Context, memberID, userID ulid.ULID, at time.Time) (*Member, error)
}

// Transactor runs fn atomically. Repository calls made with the ctx passed
// to fn join the transaction.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
