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

	"github.com/opentablerpg/otrpg/internal/lobby"
	"github.com/opentablerpg/otrpg/internal/store"
	"github.com/opentablerpg/otrpg/pkg/errutil"
)

const memberColumns = `id, lobby_id, user_id, target_email, status, is_dm, created_at, updated_at`

// MemberRepository implements lobby.MemberRepository using PostgreSQL.
// The lobby_members constraints enforce one DM per lobby and uniqueness
// of (lobby, user) and (lobby, email).
type MemberRepository struct {
	pool store.Pool
}

var _ lobby.MemberRepository = (*MemberRepository)(nil)

// NewMemberRepository creates a new MemberRepository.
func NewMemberRepository(pool store.Pool) *MemberRepository {
	return &MemberRepository{pool: pool}
}

// Create stores a new member row.
func (r *MemberRepository) Create(ctx context.Context, m *lobby.Member) error {
	if err := m.Validate(); err != nil {
		return err
	}

	_, err := store.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO lobby_members (`+memberColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		m.ID.String(),
		m.LobbyID.String(),
		ulidToStringPtr(m.UserID),
		m.TargetEmail,
		string(m.Status),
		m.IsDM,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		if conflict := asConflict(err); conflict != nil {
			return conflict
		}
		return oops.Code("MEMBER_CREATE_FAILED").
			With("operation", "insert member").
			With("lobby_id", m.LobbyID.String()).
			Wrap(err)
	}
	return nil
}

// ListByLobby returns a lobby's members in creation order.
func (r *MemberRepository) ListByLobby(ctx context.Context, lobbyID ulid.ULID) ([]*lobby.Member, error) {
	rows, err := store.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+memberColumns+`
		FROM lobby_members
		WHERE lobby_id = $1
		ORDER BY created_at, id
	`, lobbyID.String())
	if err != nil {
		return nil, oops.Code("MEMBER_LIST_FAILED").
			With("operation", "list members").
			With("lobby_id", lobbyID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var members []*lobby.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("MEMBER_LIST_FAILED").
			With("operation", "iterate members").
			With("lobby_id", lobbyID.String()).
			Wrap(err)
	}
	return members, nil
}

// GetByUser returns the member row linking userID to the lobby.
func (r *MemberRepository) GetByUser(ctx context.Context, lobbyID, userID ulid.ULID) (*lobby.Member, error) {
	row := store.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+memberColumns+`
		FROM lobby_members
		WHERE lobby_id = $1 AND user_id = $2
	`, lobbyID.String(), userID.String())
	return r.getOne(row, lobbyID, "get member by user")
}

// GetByEmail returns the member row keyed by email.
func (r *MemberRepository) GetByEmail(ctx context.Context, lobbyID ulid.ULID, email string) (*lobby.Member, error) {
	row := store.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+memberColumns+`
		FROM lobby_members
		WHERE lobby_id = $1 AND target_email = $2
	`, lobbyID.String(), email)
	return r.getOne(row, lobbyID, "get member by email")
}

func (r *MemberRepository) getOne(row pgx.Row, lobbyID ulid.ULID, operation string) (*lobby.Member, error) {
	m, err := scanMember(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("MEMBER_NOT_FOUND").With("lobby_id", lobbyID.String()).Wrap(errutil.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("MEMBER_GET_FAILED").
			With("operation", operation).
			With("lobby_id", lobbyID.String()).
			Wrap(err)
	}
	return m, nil
}

// UpsertInvited inserts m or resets the existing (lobby, email) row to a
// pending non-DM invitee. The stored row is returned; on reissue it keeps
// its original ID and creation time.
func (r *MemberRepository) UpsertInvited(ctx context.Context, m *lobby.Member) (*lobby.Member, error) {
	if m.TargetEmail == nil {
		return nil, oops.Code("MEMBER_INVALID_EMAIL").Wrapf(errutil.ErrValidation, "target email is required")
	}

	row := store.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO lobby_members (`+memberColumns+`)
		VALUES ($1, $2, NULL, $3, 'invited', FALSE, $4, $4)
		ON CONFLICT (lobby_id, target_email) DO UPDATE
		SET status = 'invited', user_id = NULL, is_dm = FALSE, updated_at = EXCLUDED.updated_at
		RETURNING `+memberColumns,
		m.ID.String(), m.LobbyID.String(), *m.TargetEmail, m.UpdatedAt)

	stored, err := scanMember(row)
	if err != nil {
		if conflict := asConflict(err); conflict != nil {
			return nil, conflict
		}
		return nil, oops.Code("MEMBER_UPSERT_FAILED").
			With("operation", "upsert invited member").
			With("lobby_id", m.LobbyID.String()).
			Wrap(err)
	}
	return stored, nil
}

// Activate links a pending row to userID. A row that is missing or no
// longer pending fails with MEMBER_NOT_PENDING; an account already holding
// a row in the lobby fails with MEMBER_DUPLICATE_USER.
func (r *MemberRepository) Activate(ctx context.Context, memberID, userID ulid.ULID, at time.Time) (*lobby.Member, error) {
	row := store.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE lobby_members
		SET status = 'active', user_id = $2, target_email = NULL, updated_at = $3
		WHERE id = $1 AND status = 'invited' AND user_id IS NULL
		RETURNING `+memberColumns,
		memberID.String(), userID.String(), at)

	m, err := scanMember(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("MEMBER_NOT_PENDING").
			With("member_id", memberID.String()).
			Wrapf(errutil.ErrGone, "membership is no longer pending")
	}
	if err != nil {
		if conflict := asConflict(err); conflict != nil {
			return nil, conflict
		}
		return nil, oops.Code("MEMBER_ACTIVATE_FAILED").
			With("operation", "activate member").
			With("member_id", memberID.String()).
			Wrap(err)
	}
	return m, nil
}

// scanMember returns pgx.ErrNoRows and unique violations unwrapped so
// callers can classify them.
func scanMember(row scanner) (*lobby.Member, error) {
	var (
		m       lobby.Member
		id      string
		lobbyID string
		userID  *string
		status  string
	)
	err := row.Scan(&id, &lobbyID, &userID, &m.TargetEmail, &status, &m.IsDM, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || store.IsUniqueViolation(err) {
			return nil, err
		}
		return nil, oops.Code("MEMBER_SCAN_FAILED").Wrap(err)
	}

	if m.ID, err = parseULID(id, "id"); err != nil {
		return nil, err
	}
	if m.LobbyID, err = parseULID(lobbyID, "lobby_id"); err != nil {
		return nil, err
	}
	if m.UserID, err = parseOptionalULID(userID, "user_id"); err != nil {
		return nil, err
	}
	m.Status = lobby.Status(status)
	return &m, nil
}
