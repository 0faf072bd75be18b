// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/opentablerpg/otrpg/internal/auth"
	"github.com/opentablerpg/otrpg/internal/store"
	"github.com/opentablerpg/otrpg/pkg/errutil"
)

// SessionRepository implements auth.SessionRepository using PostgreSQL.
type SessionRepository struct {
	pool store.Pool
}

var _ auth.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool store.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	_, err := store.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO sessions (id, account_id, token_hash, created_at, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		session.ID.String(),
		session.AccountID.String(),
		session.TokenHash,
		session.CreatedAt,
		session.ExpiresAt,
		session.RevokedAt,
	)
	if err != nil {
		if conflict := asConflict(err); conflict != nil {
			return conflict
		}
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			With("account_id", session.AccountID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a session by its token hash, live or not.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	row := store.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, account_id, token_hash, created_at, expires_at, revoked_at
		FROM sessions
		WHERE token_hash = $1
	`, tokenHash)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(errutil.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}
	return session, nil
}

// Revoke marks a session revoked. It reports false when the session is
// unknown or was already revoked.
func (r *SessionRepository) Revoke(ctx context.Context, id ulid.ULID, at time.Time) (bool, error) {
	tag, err := store.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE sessions SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`, id.String(), at)
	if err != nil {
		return false, oops.Code("SESSION_REVOKE_FAILED").
			With("operation", "revoke session").
			With("id", id.String()).
			Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanSession(row scanner) (*auth.Session, error) {
	var (
		s         auth.Session
		id        string
		accountID string
	)
	if err := row.Scan(&id, &accountID, &s.TokenHash, &s.CreatedAt, &s.ExpiresAt, &s.RevokedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, oops.Code("SESSION_SCAN_FAILED").Wrap(err)
	}

	var err error
	if s.ID, err = parseULID(id, "id"); err != nil {
		return nil, err
	}
	if s.AccountID, err = parseULID(accountID, "account_id"); err != nil {
		return nil, err
	}
	return &s, nil
}
