// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

// Package invite issues and redeems single-use email invitations to lobbies.
//
// An invite carries the SHA-256 hash of a random token; the raw token is
// handed to the issuer exactly once inside the invite URL. Invites become
// inert once used, superseded by a reissue, or expired, and are never
// deleted.
package invite

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Invite policy.
const (
	TokenBytes = 32
	TTL        = 7 * 24 * time.Hour
)

// AcceptPath is the redemption endpoint embedded in invite URLs.
const AcceptPath = "/api/invites/accept"

// Invite is a pending invitation of an email address to a lobby.
type Invite struct {
	ID          ulid.ULID
	LobbyID     ulid.ULID
	CreatedBy   ulid.ULID
	TargetEmail string // normalized
	TokenHash   string
	ExpiresAt   time.Time
	UsedAt      *time.Time
	RevokedAt   *time.Time
	CreatedAt   time.Time
}

// IsUsed reports whether the invite has been redeemed.
func (i *Invite) IsUsed() bool { return i.UsedAt != nil }

// IsRevoked reports whether a reissue superseded the invite.
func (i *Invite) IsRevoked() bool { return i.RevokedAt != nil }

// IsExpiredAt reports whether the invite has expired at t. Like sessions,
// an invite is dead at the expiry instant.
func (i *Invite) IsExpiredAt(t time.Time) bool { return !t.Before(i.ExpiresAt) }

// GenerateToken creates a random invite token and its hash.
func GenerateToken() (token, hash string, err error) {
	b := make([]byte, TokenBytes)
	if _, err = rand.Read(b); err != nil {
		return "", "", oops.Code("INVITE_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			Wrap(err)
	}
	token = hex.EncodeToString(b)
	return token, HashToken(token), nil
}

// HashToken returns the hex SHA-256 digest stored for token.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// Repository manages invite persistence.
type Repository interface {
	// Create stores a new invite. A duplicate token hash fails with
	// errutil.ErrConflict.
	Create(ctx context.Context, inv *Invite) error

	// GetByTokenHash retrieves an invite regardless of its state.
	// Returns an error wrapping errutil.ErrNotFound if absent.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Invite, error)

	// MarkUsed sets UsedAt if the invite is neither used nor revoked.
	// Returns false when another redemption or a reissue got there first.
	MarkUsed(ctx context.Context, id ulid.ULID, at time.Time) (bool, error)

	// RevokePending revokes every unused, unrevoked invite for the
	// (lobby, email) pair and returns how many were revoked.
	RevokePending(ctx context.Context, lobbyID ulid.ULID, email string, at time.Time) (int64, error)
}
