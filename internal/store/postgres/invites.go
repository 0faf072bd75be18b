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

	"github.com/opentablerpg/otrpg/internal/invite"
	"github.com/opentablerpg/otrpg/internal/store"
	"github.com/opentablerpg/otrpg/pkg/errutil"
)

const inviteColumns = `id, lobby_id, created_by, target_email, token_hash, expires_at, used_at, revoked_at, created_at`

// InviteRepository implements invite.Repository using PostgreSQL.
type InviteRepository struct {
	pool store.Pool
}

var _ invite.Repository = (*InviteRepository)(nil)

// NewInviteRepository creates a new InviteRepository.
func NewInviteRepository(pool store.Pool) *InviteRepository {
	return &InviteRepository{pool: pool}
}

// Create stores a new invite.
func (r *InviteRepository) Create(ctx context.Context, inv *invite.Invite) error {
	_, err := store.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO invites (`+inviteColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		inv.ID.String(),
		inv.LobbyID.String(),
		inv.CreatedBy.String(),
		inv.TargetEmail,
		inv.TokenHash,
		inv.ExpiresAt,
		inv.UsedAt,
		inv.RevokedAt,
		inv.CreatedAt,
	)
	if err != nil {
		if conflict := asConflict(err); conflict != nil {
			return conflict
		}
		return oops.Code("INVITE_CREATE_FAILED").
			With("operation", "insert invite").
			With("lobby_id", inv.LobbyID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves an invite by its token hash in any state.
func (r *InviteRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*invite.Invite, error) {
	row := store.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+inviteColumns+` FROM invites WHERE token_hash = $1
	`, tokenHash)

	inv, err := scanInvite(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("INVITE_NOT_FOUND").Wrap(errutil.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("INVITE_GET_FAILED").
			With("operation", "get invite by token hash").
			Wrap(err)
	}
	return inv, nil
}

// MarkUsed sets used_at on an invite that is neither used nor revoked.
// Of two concurrent callers exactly one sees true.
func (r *InviteRepository) MarkUsed(ctx context.Context, id ulid.ULID, at time.Time) (bool, error) {
	tag, err := store.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE invites SET used_at = $2
		WHERE id = $1 AND used_at IS NULL AND revoked_at IS NULL
	`, id.String(), at)
	if err != nil {
		return false, oops.Code("INVITE_MARK_USED_FAILED").
			With("operation", "mark invite used").
			With("invite_id", id.String()).
			Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

// RevokePending revokes every unused, unrevoked invite for (lobby, email)
// and returns how many were revoked.
func (r *InviteRepository) RevokePending(ctx context.Context, lobbyID ulid.ULID, email string, at time.Time) (int64, error) {
	tag, err := store.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE invites SET revoked_at = $3
		WHERE lobby_id = $1 AND target_email = $2
		  AND used_at IS NULL AND revoked_at IS NULL
	`, lobbyID.String(), email, at)
	if err != nil {
		return 0, oops.Code("INVITE_REVOKE_FAILED").
			With("operation", "revoke pending invites").
			With("lobby_id", lobbyID.String()).
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

func scanInvite(row scanner) (*invite.Invite, error) {
	var (
		inv       invite.Invite
		id        string
		lobbyID   string
		createdBy string
	)
	err := row.Scan(&id, &lobbyID, &createdBy, &inv.TargetEmail, &inv.TokenHash,
		&inv.ExpiresAt, &inv.UsedAt, &inv.RevokedAt, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, oops.Code("INVITE_SCAN_FAILED").Wrap(err)
	}

	if inv.ID, err = parseULID(id, "id"); err != nil {
		return nil, err
	}
	if inv.LobbyID, err = parseULID(lobbyID, "lobby_id"); err != nil {
		return nil, err
	}
	if inv.CreatedBy, err = parseULID(createdBy, "created_by"); err != nil {
		return nil, err
	}
	return &inv, nil
}
