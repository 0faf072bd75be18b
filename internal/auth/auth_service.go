// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/opentablerpg/otrpg/pkg/errutil"
)

// Service provides registration, login, and session lifecycle operations.
type Service struct {
	accounts AccountRepository
	sessions SessionRepository
	hasher   PasswordHasher
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithSessionTTL sets the lifetime of new sessions.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) { s.ttl = ttl }
}

// WithClock replaces the wall clock used for session creation and liveness.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger used for best-effort diagnostics.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a new Service.
func NewService(accounts AccountRepository, sessions SessionRepository, hasher PasswordHasher, opts ...ServiceOption) (*Service, error) {
	if accounts == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("accounts repository is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("sessions repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("password hasher is required")
	}

	s := &Service{
		accounts: accounts,
		sessions: sessions,
		hasher:   hasher,
		ttl:      DefaultSessionTTL,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.ttl <= 0 {
		return nil, oops.Code("AUTH_INVALID_SERVICE").With("ttl", s.ttl.String()).Errorf("session TTL must be positive")
	}
	if s.now == nil || s.logger == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("clock and logger are required")
	}
	return s, nil
}

// SessionTTL returns the configured session lifetime.
func (s *Service) SessionTTL() time.Duration {
	return s.ttl
}

// dummyPasswordHash is verified when an account doesn't exist so that login
// takes the same time either way. It never matches any password.
//
//nolint:gosec // G101: intentionally fake hash, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// RegisterInput holds the fields needed to create an account.
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
}

// Register creates an account with the given role.
// A duplicate normalized email fails with errutil.ErrConflict.
func (s *Service) Register(ctx context.Context, in RegisterInput, role Role) (*Account, error) {
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, ErrEmptyPassword) {
			return nil, oops.Code("AUTH_INVALID_PASSWORD").Wrap(errutil.ErrValidation)
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}

	account, err := NewAccount(in.Email, hash, in.DisplayName, role)
	if err != nil {
		return nil, oops.Code(errutil.Code(err)).
			With("operation", "validate account").
			Wrapf(errutil.ErrValidation, "%s", err.Error())
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, oops.With("operation", "create account").With("role", string(role)).Wrap(err)
	}

	s.logger.InfoContext(ctx, "account registered",
		"account_id", account.ID.String(),
		"role", string(account.Role))
	return account, nil
}

// Login verifies credentials and creates a session.
// Unknown emails and wrong passwords return the same error.
func (s *Service) Login(ctx context.Context, email, password string) (*Account, *Session, string, error) {
	account, lookupErr := s.accounts.GetByEmail(ctx, NormalizeEmail(email))

	targetHash := dummyPasswordHash
	switch {
	case lookupErr == nil:
		targetHash = account.PasswordHash
	case !errors.Is(lookupErr, errutil.ErrNotFound):
		return nil, nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get account by email").
			Wrap(lookupErr)
	}

	// Always verify so both branches cost one argon2 computation.
	valid := s.hasher.Verify(password, targetHash)
	if lookupErr != nil || !valid {
		if lookupErr == nil {
			s.logger.InfoContext(ctx, "login rejected", "account_id", account.ID.String())
		}
		return nil, nil, "", invalidCredentials()
	}

	session, token, err := s.CreateSession(ctx, account)
	if err != nil {
		return nil, nil, "", err
	}
	return account, session, token, nil
}

// CreateSession allocates and persists a new session for account.
// Returns the session and the plaintext bearer token.
func (s *Service) CreateSession(ctx context.Context, account *Account) (*Session, string, error) {
	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return nil, "", oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "generate session token").
			Wrap(err)
	}

	now := s.now().UTC()
	session, err := NewSession(account.ID, tokenHash, now, now.Add(s.ttl))
	if err != nil {
		return nil, "", oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "build session").
			Wrap(err)
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, "", oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "persist session").
			With("account_id", account.ID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "session created",
		"session_id", session.ID.String(),
		"account_id", account.ID.String(),
		"expires_at", session.ExpiresAt)
	return session, token, nil
}

// ResolveSession returns the account behind a live session token.
// Missing, expired, and revoked sessions fail identically with
// errutil.ErrUnauthenticated; store failures propagate as internal errors.
func (s *Service) ResolveSession(ctx context.Context, token string) (*Account, error) {
	if token == "" {
		return nil, sessionInvalid()
	}

	session, err := s.sessions.GetByTokenHash(ctx, HashSessionToken(token))
	if err != nil {
		if errors.Is(err, errutil.ErrNotFound) {
			return nil, sessionInvalid()
		}
		return nil, oops.Code("SESSION_RESOLVE_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	if !session.IsLiveAt(s.now()) {
		return nil, sessionInvalid()
	}

	account, err := s.accounts.GetByID(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, errutil.ErrNotFound) {
			return nil, sessionInvalid()
		}
		return nil, oops.Code("SESSION_RESOLVE_FAILED").
			With("operation", "get account by id").
			With("session_id", session.ID.String()).
			Wrap(err)
	}
	return account, nil
}

// RevokeSession ends the session behind token. Unknown and already revoked
// tokens are a no-op. Only store failures return an error.
func (s *Service) RevokeSession(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	session, err := s.sessions.GetByTokenHash(ctx, HashSessionToken(token))
	if err != nil {
		if errors.Is(err, errutil.ErrNotFound) {
			return nil
		}
		return oops.Code("SESSION_REVOKE_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}
	if session.IsRevoked() {
		return nil
	}

	revoked, err := s.sessions.Revoke(ctx, session.ID, s.now().UTC())
	if err != nil {
		return oops.Code("SESSION_REVOKE_FAILED").
			With("operation", "revoke session").
			With("session_id", session.ID.String()).
			Wrap(err)
	}
	if revoked {
		s.logger.InfoContext(ctx, "session revoked", "session_id", session.ID.String())
	}
	return nil
}
