// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Role is the account-level role tag.
type Role string

// Account roles.
const (
	RoleGM     Role = "gm"
	RolePlayer Role = "player"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleGM || r == RolePlayer
}

// Account represents a registered identity.
type Account struct {
	ID           ulid.ULID
	Email        string // normalized
	PasswordHash string
	DisplayName  string
	Role         Role
	CreatedAt    time.Time
}

// IsGM returns true if the account may own lobbies.
func (a *Account) IsGM() bool {
	return a.Role == RoleGM
}

// NormalizeEmail trims surrounding whitespace and lowercases the address.
// It is the uniqueness key for accounts and invite targets, and must be
// applied at every write and comparison site.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewAccount creates a validated Account with a fresh ID.
// The email is normalized; the password hash must already be computed.
func NewAccount(email, passwordHash, displayName string, role Role) (*Account, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, oops.Code("ACCOUNT_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, oops.Code("ACCOUNT_INVALID_DISPLAY_NAME").Errorf("display name cannot be empty")
	}
	if !role.Valid() {
		return nil, oops.Code("ACCOUNT_INVALID_ROLE").With("role", string(role)).Errorf("unknown role %q", role)
	}

	return &Account{
		ID:           ulid.Make(),
		Email:        email,
		PasswordHash: passwordHash,
		DisplayName:  displayName,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// AccountRepository manages account persistence.
type AccountRepository interface {
	// Create stores a new account.
	// Returns an error wrapping errutil.ErrConflict if the email is taken.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID.
	// Returns an error wrapping errutil.ErrNotFound if absent.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByEmail retrieves an account by normalized email.
	// Returns an error wrapping errutil.ErrNotFound if absent.
	GetByEmail(ctx context.Context, email string) (*Account, error)
}
