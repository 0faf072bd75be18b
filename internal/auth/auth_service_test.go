// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

package auth_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/opentablerpg/otrpg/internal/auth"
	"github.com/opentablerpg/otrpg/internal/auth/mocks"
	"github.com/opentablerpg/otrpg/pkg/errutil"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	accounts *mocks.MockAccountRepository
	sessions *mocks.MockSessionRepository
	hasher   *mocks.MockPasswordHasher
	svc      *auth.Service
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		accounts: mocks.NewMockAccountRepository(t),
		sessions: mocks.NewMockSessionRepository(t),
		hasher:   mocks.NewMockPasswordHasher(t),
		now:      fixedNow,
	}
	svc, err := auth.NewService(f.accounts, f.sessions, f.hasher,
		auth.WithClock(func() time.Time { return f.now }),
		auth.WithSessionTTL(time.Hour),
	)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func notFound() error {
	return oops.Code("TEST_NOT_FOUND").Wrap(errutil.ErrNotFound)
}

func TestNewService_NilDependencies(t *testing.T) {
	tests := []struct {
		name        string
		accounts    auth.AccountRepository
		sessions    auth.SessionRepository
		hasher      auth.PasswordHasher
		opts        []auth.ServiceOption
		expectError string
	}{
		{
			name:        "nil accounts repository",
			sessions:    mocks.NewMockSessionRepository(t),
			hasher:      mocks.NewMockPasswordHasher(t),
			expectError: "accounts repository is required",
		},
		{
			name:        "nil sessions repository",
			accounts:    mocks.NewMockAccountRepository(t),
			hasher:      mocks.NewMockPasswordHasher(t),
			expectError: "sessions repository is required",
		},
		{
			name:        "nil password hasher",
			accounts:    mocks.NewMockAccountRepository(t),
			sessions:    mocks.NewMockSessionRepository(t),
			expectError: "password hasher is required",
		},
		{
			name:        "non-positive ttl",
			accounts:    mocks.NewMockAccountRepository(t),
			sessions:    mocks.NewMockSessionRepository(t),
			hasher:      mocks.NewMockPasswordHasher(t),
			opts:        []auth.ServiceOption{auth.WithSessionTTL(0)},
			expectError: "session TTL must be positive",
		},
		{
			name:        "nil logger",
			accounts:    mocks.NewMockAccountRepository(t),
			sessions:    mocks.NewMockSessionRepository(t),
			hasher:      mocks.NewMockPasswordHasher(t),
			opts:        []auth.ServiceOption{auth.WithLogger(nil)},
			expectError: "clock and logger are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := auth.NewService(tt.accounts, tt.sessions, tt.hasher, tt.opts...)
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("creates account with normalized email", func(t *testing.T) {
		f := newFixture(t)
		f.hasher.On("Hash", "Secret123!").Return("$argon2id$hash", nil)
		f.accounts.On("Create", ctx, mock.MatchedBy(func(a *auth.Account) bool {
			return a.Email == "gm@test.com" && a.Role == auth.RoleGM && a.PasswordHash == "$argon2id$hash"
		})).Return(nil)

		acct, err := f.svc.Register(ctx, auth.RegisterInput{
			Email:       "  GM@Test.com ",
			Password:    "Secret123!",
			DisplayName: "Game Master",
		}, auth.RoleGM)
		require.NoError(t, err)
		assert.Equal(t, "gm@test.com", acct.Email)
		assert.Equal(t, "Game Master", acct.DisplayName)
	})

	t.Run("duplicate email surfaces as conflict", func(t *testing.T) {
		f := newFixture(t)
		f.hasher.On("Hash", "Secret123!").Return("$argon2id$hash", nil)
		f.accounts.On("Create", ctx, mock.AnythingOfType("*auth.Account")).
			Return(oops.Code("ACCOUNT_EMAIL_TAKEN").Wrap(errutil.ErrConflict))

		_, err := f.svc.Register(ctx, auth.RegisterInput{Email: "gm@test.com", Password: "Secret123!", DisplayName: "GM"}, auth.RoleGM)
		errutil.AssertKind(t, err, errutil.KindConflict)
		errutil.AssertErrorCode(t, err, "ACCOUNT_EMAIL_TAKEN")
	})

	t.Run("empty password is a validation error", func(t *testing.T) {
		f := newFixture(t)
		f.hasher.On("Hash", "").Return("", auth.ErrEmptyPassword)

		_, err := f.svc.Register(ctx, auth.RegisterInput{Email: "gm@test.com", DisplayName: "GM"}, auth.RoleGM)
		errutil.AssertKind(t, err, errutil.KindValidation)
	})

	t.Run("blank display name is a validation error", func(t *testing.T) {
		f := newFixture(t)
		f.hasher.On("Hash", "Secret123!").Return("$argon2id$hash", nil)

		_, err := f.svc.Register(ctx, auth.RegisterInput{Email: "gm@test.com", Password: "Secret123!", DisplayName: " "}, auth.RoleGM)
		errutil.AssertKind(t, err, errutil.KindValidation)
		errutil.AssertErrorCode(t, err, "ACCOUNT_INVALID_DISPLAY_NAME")
	})

	t.Run("store failure is internal", func(t *testing.T) {
		f := newFixture(t)
		f.hasher.On("Hash", "Secret123!").Return("$argon2id$hash", nil)
		f.accounts.On("Create", ctx, mock.AnythingOfType("*auth.Account")).Return(errors.New("connection reset"))

		_, err := f.svc.Register(ctx, auth.RegisterInput{Email: "gm@test.com", Password: "Secret123!", DisplayName: "GM"}, auth.RoleGM)
		errutil.AssertKind(t, err, errutil.KindInternal)
	})
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()
	account := &auth.Account{ID: ulid.Make(), Email: "gm@test.com", PasswordHash: "$argon2id$real", Role: auth.RoleGM}

	t.Run("successful login creates session", func(t *testing.T) {
		f := newFixture(t)
		f.accounts.On("GetByEmail", ctx, "gm@test.com").Return(account, nil)
		f.hasher.On("Verify", "Secret123!", account.PasswordHash).Return(true)
		f.sessions.On("Create", ctx, mock.MatchedBy(func(s *auth.Session) bool {
			return s.AccountID == account.ID &&
				s.CreatedAt.Equal(fixedNow) &&
				s.ExpiresAt.Equal(fixedNow.Add(time.Hour))
		})).Return(nil)

		got, session, token, err := f.svc.Login(ctx, " GM@test.com", "Secret123!")
		require.NoError(t, err)
		assert.Equal(t, account, got)
		assert.Len(t, token, 64)
		assert.Equal(t, auth.HashSessionToken(token), session.TokenHash)
	})

	t.Run("unknown email still verifies against dummy hash", func(t *testing.T) {
		f := newFixture(t)
		f.accounts.On("GetByEmail", ctx, "nobody@test.com").Return(nil, notFound())
		f.hasher.On("Verify", "Secret123!", mock.AnythingOfType("string")).Return(false)

		_, _, token, err := f.svc.Login(ctx, "nobody@test.com", "Secret123!")
		errutil.AssertKind(t, err, errutil.KindUnauthenticated)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
		assert.Empty(t, token)
	})

	t.Run("wrong password", func(t *testing.T) {
		f := newFixture(t)
		f.accounts.On("GetByEmail", ctx, "gm@test.com").Return(account, nil)
		f.hasher.On("Verify", "wrong", account.PasswordHash).Return(false)

		_, _, _, err := f.svc.Login(ctx, "gm@test.com", "wrong")
		errutil.AssertKind(t, err, errutil.KindUnauthenticated)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
	})

	t.Run("store failure during lookup is internal", func(t *testing.T) {
		f := newFixture(t)
		f.accounts.On("GetByEmail", ctx, "gm@test.com").Return(nil, errors.New("connection refused"))

		_, _, _, err := f.svc.Login(ctx, "gm@test.com", "Secret123!")
		errutil.AssertKind(t, err, errutil.KindInternal)
		errutil.AssertErrorCode(t, err, "AUTH_LOGIN_FAILED")
	})

	t.Run("session persist failure is internal", func(t *testing.T) {
		f := newFixture(t)
		f.accounts.On("GetByEmail", ctx, "gm@test.com").Return(account, nil)
		f.hasher.On("Verify", "Secret123!", account.PasswordHash).Return(true)
		f.sessions.On("Create", ctx, mock.AnythingOfType("*auth.Session")).Return(errors.New("disk full"))

		_, _, _, err := f.svc.Login(ctx, "gm@test.com", "Secret123!")
		errutil.AssertKind(t, err, errutil.KindInternal)
		errutil.AssertErrorCode(t, err, "AUTH_SESSION_CREATE_FAILED")
	})
}

func TestService_ResolveSession(t *testing.T) {
	ctx := context.Background()
	account := &auth.Account{ID: ulid.Make(), Email: "gm@test.com", Role: auth.RoleGM}
	token := "raw-token"
	tokenHash := auth.HashSessionToken(token)

	liveSession := func() *auth.Session {
		return &auth.Session{
			ID:        ulid.Make(),
			AccountID: account.ID,
			TokenHash: tokenHash,
			CreatedAt: fixedNow.Add(-time.Minute),
			ExpiresAt: fixedNow.Add(time.Hour),
		}
	}

	t.Run("live session resolves to account", func(t *testing.T) {
		f := newFixture(t)
		f.sessions.On("GetByTokenHash", ctx, tokenHash).Return(liveSession(), nil)
		f.accounts.On("GetByID", ctx, account.ID).Return(account, nil)

		got, err := f.svc.ResolveSession(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, account, got)
	})

	t.Run("one nanosecond before expiry still resolves", func(t *testing.T) {
		f := newFixture(t)
		s := liveSession()
		f.now = s.ExpiresAt.Add(-time.Nanosecond)
		f.sessions.On("GetByTokenHash", ctx, tokenHash).Return(s, nil)
		f.accounts.On("GetByID", ctx, account.ID).Return(account, nil)

		_, err := f.svc.ResolveSession(ctx, token)
		require.NoError(t, err)
	})

	// The three failure cases must be indistinguishable to the caller.
	failures := []struct {
		name  string
		setup func(f *fixture)
	}{
		{
			name: "unknown token",
			setup: func(f *fixture) {
				f.sessions.On("GetByTokenHash", ctx, tokenHash).Return(nil, notFound())
			},
		},
		{
			name: "expired at the boundary instant",
			setup: func(f *fixture) {
				s := liveSession()
				f.now = s.ExpiresAt
				f.sessions.On("GetByTokenHash", ctx, tokenHash).Return(s, nil)
			},
		},
		{
			name: "revoked",
			setup: func(f *fixture) {
				s := liveSession()
				revokedAt := fixedNow.Add(-time.Second)
				s.RevokedAt = &revokedAt
				f.sessions.On("GetByTokenHash", ctx, tokenHash).Return(s, nil)
			},
		},
		{
			name: "account vanished",
			setup: func(f *fixture) {
				f.sessions.On("GetByTokenHash", ctx, tokenHash).Return(liveSession(), nil)
				f.accounts.On("GetByID", ctx, account.ID).Return(nil, notFound())
			},
		},
	}

	var messages []string
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)

			got, err := f.svc.ResolveSession(ctx, token)
			assert.Nil(t, got)
			errutil.AssertKind(t, err, errutil.KindUnauthenticated)
			errutil.AssertErrorCode(t, err, auth.CodeSessionInvalid)
			messages = append(messages, err.Error())
		})
	}
	for _, msg := range messages {
		assert.Equal(t, messages[0], msg)
	}

	t.Run("empty token never hits the store", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.ResolveSession(ctx, "")
		errutil.AssertKind(t, err, errutil.KindUnauthenticated)
	})

	t.Run("store failure propagates as internal", func(t *testing.T) {
		f := newFixture(t)
		f.sessions.On("GetByTokenHash", ctx, tokenHash).Return(nil, errors.New("connection refused"))

		_, err := f.svc.ResolveSession(ctx, token)
		errutil.AssertKind(t, err, errutil.KindInternal)
		errutil.AssertErrorCode(t, err, "SESSION_RESOLVE_FAILED")
	})
}

func TestService_RevokeSession(t *testing.T) {
	ctx := context.Background()
	token := "raw-token"
	tokenHash := auth.HashSessionToken(token)

	t.Run("revokes live session", func(t *testing.T) {
		f := newFixture(t)
		s := &auth.Session{ID: ulid.Make(), AccountID: ulid.Make(), TokenHash: tokenHash, ExpiresAt: fixedNow.Add(time.Hour)}
		f.sessions.On("GetByTokenHash", ctx, tokenHash).Return(s, nil)
		f.sessions.On("Revoke", ctx, s.ID, fixedNow).Return(true, nil)

		require.NoError(t, f.svc.RevokeSession(ctx, token))
	})

	t.Run("unknown token is a no-op", func(t *testing.T) {
		f := newFixture(t)
		f.sessions.On("GetByTokenHash", ctx, tokenHash).Return(nil, notFound())

		require.NoError(t, f.svc.RevokeSession(ctx, token))
	})

	t.Run("already revoked is a no-op", func(t *testing.T) {
		f := newFixture(t)
		revokedAt := fixedNow.Add(-time.Minute)
		s := &auth.Session{ID: ulid.Make(), TokenHash: tokenHash, ExpiresAt: fixedNow.Add(time.Hour), RevokedAt: &revokedAt}
		f.sessions.On("GetByTokenHash", ctx, tokenHash).Return(s, nil)

		require.NoError(t, f.svc.RevokeSession(ctx, token))
		f.sessions.AssertNotCalled(t, "Revoke", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("lost race against concurrent revoke is a no-op", func(t *testing.T) {
		f := newFixture(t)
		s := &auth.Session{ID: ulid.Make(), TokenHash: tokenHash, ExpiresAt: fixedNow.Add(time.Hour)}
		f.sessions.On("GetByTokenHash", ctx, tokenHash).Return(s, nil)
		f.sessions.On("Revoke", ctx, s.ID, fixedNow).Return(false, nil)

		require.NoError(t, f.svc.RevokeSession(ctx, token))
	})

	t.Run("empty token is a no-op", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.svc.RevokeSession(ctx, ""))
	})

	t.Run("store failure is reported", func(t *testing.T) {
		f := newFixture(t)
		f.sessions.On("GetByTokenHash", ctx, tokenHash).Return(nil, errors.New("connection refused"))

		err := f.svc.RevokeSession(ctx, token)
		errutil.AssertErrorCode(t, err, "SESSION_REVOKE_FAILED")
	})
}

func TestService_TokensAreNotLogged(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer

	accounts := mocks.NewMockAccountRepository(t)
	sessions := mocks.NewMockSessionRepository(t)
	hasher := mocks.NewMockPasswordHasher(t)
	svc, err := auth.NewService(accounts, sessions, hasher,
		auth.WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))))
	require.NoError(t, err)

	account := &auth.Account{ID: ulid.Make(), Email: "gm@test.com", PasswordHash: "h", Role: auth.RoleGM}
	sessions.On("Create", ctx, mock.AnythingOfType("*auth.Session")).Return(nil)

	session, token, err := svc.CreateSession(ctx, account)
	require.NoError(t, err)

	sessions.On("GetByTokenHash", ctx, session.TokenHash).Return(session, nil)
	sessions.On("Revoke", ctx, session.ID, mock.AnythingOfType("time.Time")).Return(true, nil)
	require.NoError(t, svc.RevokeSession(ctx, token))

	assert.Contains(t, buf.String(), "session created")
	assert.Contains(t, buf.String(), "session revoked")
	assert.NotContains(t, buf.String(), token)
	assert.NotContains(t, buf.String(), session.TokenHash)
}
