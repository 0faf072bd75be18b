// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

package lobby_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentablerpg/otrpg/internal/auth"
	"github.com/opentablerpg/otrpg/internal/lobby"
	"github.com/opentablerpg/otrpg/internal/store/memory"
	"github.com/opentablerpg/otrpg/pkg/errutil"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type env struct {
	store *memory.Store
	svc   *lobby.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s := memory.New()
	svc, err := lobby.NewService(s.Lobbies(), s.Members(), s,
		lobby.WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return &env{store: s, svc: svc}
}

func (e *env) account(t *testing.T, email string, role auth.Role) *auth.Account {
	t.Helper()
	acct, err := auth.NewAccount(email, "hash", "Someone", role)
	require.NoError(t, err)
	require.NoError(t, e.store.Accounts().Create(context.Background(), acct))
	return acct
}

func dmCount(members []*lobby.Member) int {
	n := 0
	for _, m := range members {
		if m.IsDM {
			n++
		}
	}
	return n
}

func TestNewService_RequiresDependencies(t *testing.T) {
	s := memory.New()

	_, err := lobby.NewService(nil, s.Members(), s)
	errutil.AssertErrorCode(t, err, "LOBBY_INVALID_SERVICE")
	_, err = lobby.NewService(s.Lobbies(), nil, s)
	errutil.AssertErrorCode(t, err, "LOBBY_INVALID_SERVICE")
	_, err = lobby.NewService(s.Lobbies(), s.Members(), nil)
	errutil.AssertErrorCode(t, err, "LOBBY_INVALID_SERVICE")
}

func TestService_CreateLobby(t *testing.T) {
	ctx := context.Background()

	t.Run("GM gets a lobby with exactly one active DM", func(t *testing.T) {
		e := newEnv(t)
		gm := e.account(t, "gm@test.com", auth.RoleGM)

		detail, err := e.svc.CreateLobby(ctx, gm, "  Campaign A ")
		require.NoError(t, err)
		assert.Equal(t, "Campaign A", detail.Lobby.Name)
		assert.Equal(t, gm.ID, detail.Lobby.CreatedBy)
		require.Len(t, detail.Members, 1)
		assert.Equal(t, 1, dmCount(detail.Members))

		dm := detail.DM()
		require.NotNil(t, dm)
		assert.True(t, dm.BelongsTo(gm.ID))
		assert.Equal(t, lobby.StatusActive, dm.Status)
		assert.Nil(t, dm.TargetEmail)
	})

	t.Run("player is forbidden", func(t *testing.T) {
		e := newEnv(t)
		player := e.account(t, "player@test.com", auth.RolePlayer)

		_, err := e.svc.CreateLobby(ctx, player, "Campaign A")
		errutil.AssertKind(t, err, errutil.KindForbidden)
		errutil.AssertErrorCode(t, err, "LOBBY_GM_REQUIRED")

		lobbies, err := e.svc.ListLobbies(ctx, player)
		require.NoError(t, err)
		assert.Empty(t, lobbies)
	})

	t.Run("invalid names are rejected", func(t *testing.T) {
		e := newEnv(t)
		gm := e.account(t, "gm@test.com", auth.RoleGM)

		for _, name := range []string{"", "   ", strings.Repeat("x", lobby.MaxNameLength+1)} {
			_, err := e.svc.CreateLobby(ctx, gm, name)
			errutil.AssertKind(t, err, errutil.KindValidation)
		}
	})

	t.Run("failure before commit leaves no partial lobby", func(t *testing.T) {
		s := memory.New()
		failing := &failingMembers{MemberRepository: s.Members(), createErr: errors.New("disk full")}
		svc, err := lobby.NewService(s.Lobbies(), failing, s)
		require.NoError(t, err)

		gm, err := auth.NewAccount("gm@test.com", "hash", "GM", auth.RoleGM)
		require.NoError(t, err)
		require.NoError(t, s.Accounts().Create(ctx, gm))

		_, err = svc.CreateLobby(ctx, gm, "Campaign A")
		errutil.AssertKind(t, err, errutil.KindInternal)

		oopsErr, ok := oops.AsOops(err)
		require.True(t, ok)
		lobbyID, err := ulid.Parse(oopsErr.Context()["lobby_id"].(string))
		require.NoError(t, err)

		_, err = s.Lobbies().GetByID(ctx, lobbyID)
		errutil.AssertKind(t, err, errutil.KindNotFound)
	})

	t.Run("DM invariant is checked after re-reading members", func(t *testing.T) {
		s := memory.New()
		broken := &failingMembers{MemberRepository: s.Members(), dropDM: true}
		svc, err := lobby.NewService(s.Lobbies(), broken, s)
		require.NoError(t, err)

		gm, err := auth.NewAccount("gm@test.com", "hash", "GM", auth.RoleGM)
		require.NoError(t, err)
		require.NoError(t, s.Accounts().Create(ctx, gm))

		_, err = svc.CreateLobby(ctx, gm, "Campaign A")
		errutil.AssertKind(t, err, errutil.KindInvariantViolation)
		errutil.AssertErrorCode(t, err, "LOBBY_DM_INVARIANT")
	})
}

func TestService_GetLobbyDetail(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	gm := e.account(t, "gm@test.com", auth.RoleGM)
	outsider := e.account(t, "outsider@test.com", auth.RolePlayer)

	created, err := e.svc.CreateLobby(ctx, gm, "Campaign A")
	require.NoError(t, err)
	lobbyID := created.Lobby.ID

	pending, err := lobby.NewPendingMember(lobbyID, "invitee@test.com", fixedNow)
	require.NoError(t, err)
	_, err = e.store.Members().UpsertInvited(ctx, pending)
	require.NoError(t, err)

	t.Run("member sees all rows including pending invitees", func(t *testing.T) {
		detail, err := e.svc.GetLobbyDetail(ctx, lobbyID, gm)
		require.NoError(t, err)
		require.Len(t, detail.Members, 2)
		assert.Equal(t, 1, dmCount(detail.Members))
		assert.True(t, detail.Members[1].IsPending())
	})

	t.Run("non-member is forbidden", func(t *testing.T) {
		_, err := e.svc.GetLobbyDetail(ctx, lobbyID, outsider)
		errutil.AssertKind(t, err, errutil.KindForbidden)
		errutil.AssertErrorCode(t, err, "LOBBY_MEMBERSHIP_REQUIRED")
	})

	t.Run("missing lobby is not found", func(t *testing.T) {
		_, err := e.svc.GetLobbyDetail(ctx, ulid.Make(), gm)
		errutil.AssertKind(t, err, errutil.KindNotFound)
	})
}

func TestService_ListLobbies(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	gm := e.account(t, "gm@test.com", auth.RoleGM)
	other := e.account(t, "other@test.com", auth.RoleGM)

	first, err := e.svc.CreateLobby(ctx, gm, "First")
	require.NoError(t, err)
	second, err := e.svc.CreateLobby(ctx, gm, "Second")
	require.NoError(t, err)
	_, err = e.svc.CreateLobby(ctx, other, "Not mine")
	require.NoError(t, err)

	lobbies, err := e.svc.ListLobbies(ctx, gm)
	require.NoError(t, err)
	require.Len(t, lobbies, 2)
	// Same timestamp from the fixed clock, so ULID order breaks the tie.
	assert.Equal(t, second.Lobby.ID, lobbies[0].ID)
	assert.Equal(t, first.Lobby.ID, lobbies[1].ID)
}

func TestService_RequireActiveDM(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	gm := e.account(t, "gm@test.com", auth.RoleGM)
	player := e.account(t, "player@test.com", auth.RolePlayer)

	created, err := e.svc.CreateLobby(ctx, gm, "Campaign A")
	require.NoError(t, err)
	lobbyID := created.Lobby.ID

	member := &lobby.Member{ID: ulid.Make(), LobbyID: lobbyID, UserID: &player.ID, Status: lobby.StatusActive, CreatedAt: fixedNow}
	require.NoError(t, e.store.Members().Create(ctx, member))

	l, err := e.svc.RequireActiveDM(ctx, lobbyID, gm)
	require.NoError(t, err)
	assert.Equal(t, lobbyID, l.ID)

	_, err = e.svc.RequireActiveDM(ctx, lobbyID, player)
	errutil.AssertKind(t, err, errutil.KindForbidden)
	errutil.AssertErrorCode(t, err, "LOBBY_DM_REQUIRED")

	stranger := e.account(t, "stranger@test.com", auth.RoleGM)
	_, err = e.svc.RequireActiveDM(ctx, lobbyID, stranger)
	errutil.AssertKind(t, err, errutil.KindForbidden)

	_, err = e.svc.RequireActiveDM(ctx, ulid.Make(), gm)
	errutil.AssertKind(t, err, errutil.KindNotFound)
}

// failingMembers wraps a member repository to inject faults.
type failingMembers struct {
	lobby.MemberRepository
	createErr error
	dropDM    bool
}

func (f *failingMembers) Create(ctx context.Context, m *lobby.Member) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.MemberRepository.Create(ctx, m)
}

func (f *failingMembers) ListByLobby(ctx context.Context, lobbyID ulid.ULID) ([]*lobby.Member, error) {
	members, err := f.MemberRepository.ListByLobby(ctx, lobbyID)
	if err != nil || !f.dropDM {
		return members, err
	}
	var kept []*lobby.Member
	for _, m := range members {
		if !m.IsDM {
			kept = append(kept, m)
		}
	}
	return kept, nil
}
