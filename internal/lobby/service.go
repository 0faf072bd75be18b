// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

package lobby

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/opentablerpg/otrpg/internal/auth"
	"github.com/opentablerpg/otrpg/pkg/errutil"
)

// Service creates lobbies and answers membership queries.
type Service struct {
	lobbies LobbyRepository
	members MemberRepository
	tx      Transactor
	now     func() time.Time
	logger  *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock replaces the wall clock used for timestamps.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a new Service.
func NewService(lobbies LobbyRepository, members MemberRepository, tx Transactor, opts ...ServiceOption) (*Service, error) {
	if lobbies == nil {
		return nil, oops.Code("LOBBY_INVALID_SERVICE").Errorf("lobby repository is required")
	}
	if members == nil {
		return nil, oops.Code("LOBBY_INVALID_SERVICE").Errorf("member repository is required")
	}
	if tx == nil {
		return nil, oops.Code("LOBBY_INVALID_SERVICE").Errorf("transactor is required")
	}

	s := &Service{
		lobbies: lobbies,
		members: members,
		tx:      tx,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.now == nil || s.logger == nil {
		return nil, oops.Code("LOBBY_INVALID_SERVICE").Errorf("clock and logger are required")
	}
	return s, nil
}

// CreateLobby creates a lobby owned by owner together with its DM member.
// Only GM accounts may create lobbies. Both rows commit together; the member
// list is re-read and checked before the transaction commits.
func (s *Service) CreateLobby(ctx context.Context, owner *auth.Account, name string) (*Detail, error) {
	if !owner.IsGM() {
		return nil, oops.Code("LOBBY_GM_REQUIRED").
			With("account_id", owner.ID.String()).
			Wrapf(errutil.ErrForbidden, "only GM accounts can create lobbies")
	}

	now := s.now().UTC()
	l, err := NewLobby(name, owner.ID, now)
	if err != nil {
		return nil, err
	}

	var detail *Detail
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.lobbies.Create(ctx, l); err != nil {
			return oops.With("operation", "create lobby").Wrap(err)
		}
		if err := s.members.Create(ctx, NewDMMember(l.ID, owner.ID, now)); err != nil {
			return oops.With("operation", "create dm member").Wrap(err)
		}

		members, err := s.members.ListByLobby(ctx, l.ID)
		if err != nil {
			return oops.With("operation", "list members").Wrap(err)
		}
		detail, err = ToDetail(l, members)
		return err
	})
	if err != nil {
		return nil, oops.With("lobby_id", l.ID.String()).Wrap(err)
	}

	s.logger.InfoContext(ctx, "lobby created",
		"lobby_id", l.ID.String(),
		"owner_id", owner.ID.String())
	return detail, nil
}

// GetLobbyDetail returns a lobby with all of its members, pending invitees
// included. The caller must hold a member row in the lobby.
func (s *Service) GetLobbyDetail(ctx context.Context, lobbyID ulid.ULID, caller *auth.Account) (*Detail, error) {
	l, err := s.lobbies.GetByID(ctx, lobbyID)
	if err != nil {
		return nil, oops.With("operation", "get lobby").With("lobby_id", lobbyID.String()).Wrap(err)
	}

	members, err := s.members.ListByLobby(ctx, lobbyID)
	if err != nil {
		return nil, oops.With("operation", "list members").With("lobby_id", lobbyID.String()).Wrap(err)
	}

	if !hasMember(members, caller.ID) {
		return nil, oops.Code("LOBBY_MEMBERSHIP_REQUIRED").
			With("lobby_id", lobbyID.String()).
			With("account_id", caller.ID.String()).
			Wrapf(errutil.ErrForbidden, "not a member of this lobby")
	}
	return ToDetail(l, members)
}

// ListLobbies returns the lobbies the caller belongs to, newest first.
func (s *Service) ListLobbies(ctx context.Context, caller *auth.Account) ([]*Lobby, error) {
	lobbies, err := s.lobbies.ListByMember(ctx, caller.ID)
	if err != nil {
		return nil, oops.With("operation", "list lobbies").With("account_id", caller.ID.String()).Wrap(err)
	}
	return lobbies, nil
}

// RequireActiveDM returns the lobby if account is its active DM.
// A missing lobby fails with errutil.ErrNotFound, anything else with
// errutil.ErrForbidden.
func (s *Service) RequireActiveDM(ctx context.Context, lobbyID ulid.ULID, account *auth.Account) (*Lobby, error) {
	l, err := s.lobbies.GetByID(ctx, lobbyID)
	if err != nil {
		return nil, oops.With("operation", "get lobby").With("lobby_id", lobbyID.String()).Wrap(err)
	}

	m, err := s.members.GetByUser(ctx, lobbyID, account.ID)
	switch {
	case errors.Is(err, errutil.ErrNotFound):
		return nil, dmRequired(lobbyID, account.ID)
	case err != nil:
		return nil, oops.With("operation", "get member").With("lobby_id", lobbyID.String()).Wrap(err)
	case !m.IsActiveDM():
		return nil, dmRequired(lobbyID, account.ID)
	}
	return l, nil
}

func dmRequired(lobbyID, accountID ulid.ULID) error {
	return oops.Code("LOBBY_DM_REQUIRED").
		With("lobby_id", lobbyID.String()).
		With("account_id", accountID.String()).
		Wrapf(errutil.ErrForbidden, "only the lobby DM can do this")
}

func hasMember(members []*Member, accountID ulid.ULID) bool {
	for _, m := range members {
		if m.BelongsTo(accountID) {
			return true
		}
	}
	return false
}
