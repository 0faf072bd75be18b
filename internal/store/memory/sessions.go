// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

package memory

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/opentablerpg/otrpg/internal/auth"
	"github.com/opentablerpg/otrpg/pkg/errutil"
)

// SessionRepository implements auth.SessionRepository.
type SessionRepository struct {
	s *Store
}

var _ auth.SessionRepository = (*SessionRepository)(nil)

func cloneSession(s *auth.Session) *auth.Session {
	c := *s
	if s.RevokedAt != nil {
		c.RevokedAt = ptr(*s.RevokedAt)
	}
	return &c
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	defer r.s.lock(ctx)()

	if _, exists := r.s.data.sessions[session.ID]; exists {
		return oops.Code("SESSION_ID_TAKEN").With("id", session.ID.String()).Wrap(errutil.ErrConflict)
	}
	for _, existing := range r.s.data.sessions {
		if existing.TokenHash == session.TokenHash {
			return oops.Code("SESSION_TOKEN_TAKEN").Wrap(errutil.ErrConflict)
		}
	}
	r.s.data.sessions[session.ID] = cloneSession(session)
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	defer r.s.lock(ctx)()

	for _, s := range r.s.data.sessions {
		if s.TokenHash == tokenHash {
			return cloneSession(s), nil
		}
	}
	return nil, oops.Code("SESSION_NOT_FOUND").Wrap(errutil.ErrNotFound)
}

// Revoke sets RevokedAt if the session exists and is not yet revoked.
func (r *SessionRepository) Revoke(ctx context.Context, id ulid.ULID, at time.Time) (bool, error) {
	defer r.s.lock(ctx)()

	s, ok := r.s.data.sessions[id]
	if !ok || s.IsRevoked() {
		return false, nil
	}
	updated := cloneSession(s)
	updated.RevokedAt = ptr(at)
	r.s.data.sessions[id] = updated
	return true, nil
}
