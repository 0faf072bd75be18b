// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/opentablerpg/otrpg/internal/lobby"
	"github.com/opentablerpg/otrpg/internal/store"
	"github.com/opentablerpg/otrpg/pkg/errutil"
)

// LobbyRepository implements lobby.LobbyRepository using PostgreSQL.
type LobbyRepository struct {
	pool store.Pool
}

var _ lobby.LobbyRepository = (*LobbyRepository)(nil)

// NewLobbyRepository creates a new LobbyRepository.
func NewLobbyRepository(pool store.Pool) *LobbyRepository {
	return &LobbyRepository{pool: pool}
}

// Create stores a new lobby.
func (r *LobbyRepository) Create(ctx context.Context, l *lobby.Lobby) error {
	_, err := store.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO lobbies (id, name, created_by, created_at)
		VALUES ($1, $2, $3, $4)
	`, l.ID.String(), l.Name, l.CreatedBy.String(), l.CreatedAt)
	if err != nil {
		if conflict := asConflict(err); conflict != nil {
			return conflict
		}
		return oops.Code("LOBBY_CREATE_FAILED").
			With("operation", "insert lobby").
			With("lobby_id", l.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a lobby by ID.
func (r *LobbyRepository) GetByID(ctx context.Context, id ulid.ULID) (*lobby.Lobby, error) {
	row := store.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, name, created_by, created_at FROM lobbies WHERE id = $1
	`, id.String())

	l, err := scanLobby(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("LOBBY_NOT_FOUND").With("lobby_id", id.String()).Wrap(errutil.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("LOBBY_GET_FAILED").
			With("operation", "get lobby by id").
			With("lobby_id", id.String()).
			Wrap(err)
	}
	return l, nil
}

// ListByMember returns the lobbies in which userID holds a member row,
// newest first.
func (r *LobbyRepository) ListByMember(ctx context.Context, userID ulid.ULID) ([]*lobby.Lobby, error) {
	rows, err := store.Conn(ctx, r.pool).Query(ctx, `
		SELECT l.id, l.name, l.created_by, l.created_at
		FROM lobbies l
		JOIN lobby_members m ON m.lobby_id = l.id
		WHERE m.user_id = $1
		ORDER BY l.created_at DESC, l.id DESC
	`, userID.String())
	if err != nil {
		return nil, oops.Code("LOBBY_LIST_FAILED").
			With("operation", "list lobbies by member").
			With("user_id", userID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var lobbies []*lobby.Lobby
	for rows.Next() {
		l, err := scanLobby(rows)
		if err != nil {
			return nil, err
		}
		lobbies = append(lobbies, l)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("LOBBY_LIST_FAILED").
			With("operation", "iterate lobbies").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return lobbies, nil
}

func scanLobby(row scanner) (*lobby.Lobby, error) {
	var (
		l         lobby.Lobby
		id        string
		createdBy string
	)
	if err := row.Scan(&id, &l.Name, &createdBy, &l.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, oops.Code("LOBBY_SCAN_FAILED").Wrap(err)
	}

	var err error
	if l.ID, err = parseULID(id, "id"); err != nil {
		return nil, err
	}
	if l.CreatedBy, err = parseULID(createdBy, "created_by"); err != nil {
		return nil, err
	}
	return &l, nil
}
