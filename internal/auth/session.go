// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	SessionTokenBytes = 32                  // 32 bytes = 64 hex chars
	DefaultSessionTTL = 14 * 24 * time.Hour // 14 days
)

// Session is a login session. The raw bearer token is never stored; only
// its SHA-256 hash is.
type Session struct {
	ID        ulid.ULID
	AccountID ulid.ULID
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// NewSession creates a validated Session instance.
func NewSession(accountID ulid.ULID, tokenHash string, createdAt, expiresAt time.Time) (*Session, error) {
	if accountID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_ACCOUNT").Errorf("account ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if !expiresAt.After(createdAt) {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").
			With("created_at", createdAt).
			With("expires_at", expiresAt).
			Errorf("expiry must be after creation")
	}

	return &Session{
		ID:        ulid.Make(),
		AccountID: accountID,
		TokenHash: tokenHash,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}, nil
}

// IsRevoked returns true once the session has been explicitly revoked.
func (s *Session) IsRevoked() bool {
	return s.RevokedAt != nil
}

// IsLiveAt reports whether the session is usable at t: not revoked and
// t strictly before ExpiresAt. At the expiry instant the session is dead.
func (s *Session) IsLiveAt(t time.Time) bool {
	return !s.IsRevoked() && t.Before(s.ExpiresAt)
}

// GenerateSessionToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error).
// The plaintext token goes to the client; the hash is stored.
func GenerateSessionToken() (token, hash string, err error) {
	tokenBytes := make([]byte, SessionTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	return token, HashSessionToken(token), nil
}

// HashSessionToken computes the SHA256 hash of a session token.
func HashSessionToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// GetByTokenHash retrieves a session by its token hash regardless of
	// liveness. Returns an error wrapping errutil.ErrNotFound if absent.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// Revoke sets RevokedAt on a session that is not yet revoked.
	// Returns false if the session is missing or already revoked.
	Revoke(ctx context.Context, id ulid.ULID, at time.Time) (bool, error)
}
