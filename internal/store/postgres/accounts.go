// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/opentablerpg/otrpg/internal/auth"
	"github.com/opentablerpg/otrpg/internal/store"
	"github.com/opentablerpg/otrpg/pkg/errutil"
)

const accountColumns = `id, email, password_hash, display_name, role, created_at`

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool store.Pool
}

var _ auth.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool store.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Create stores a new account. A taken email fails with ACCOUNT_EMAIL_TAKEN.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	_, err := store.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		account.ID.String(),
		account.Email,
		account.PasswordHash,
		account.DisplayName,
		string(account.Role),
		account.CreatedAt,
	)
	if err != nil {
		if conflict := asConflict(err); conflict != nil {
			return conflict
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	row := store.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE id = $1
	`, id.String())

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("id", id.String()).Wrap(errutil.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by id").
			With("id", id.String()).
			Wrap(err)
	}
	return account, nil
}

// GetByEmail retrieves an account by normalized email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := store.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE email = $1
	`, email)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").Wrap(errutil.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by email").
			Wrap(err)
	}
	return account, nil
}

// scanAccount returns pgx.ErrNoRows unwrapped so callers can map it.
func scanAccount(row scanner) (*auth.Account, error) {
	var (
		a    auth.Account
		id   string
		role string
	)
	if err := row.Scan(&id, &a.Email, &a.PasswordHash, &a.DisplayName, &role, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, oops.Code("ACCOUNT_SCAN_FAILED").Wrap(err)
	}

	var err error
	if a.ID, err = parseULID(id, "id"); err != nil {
		return nil, err
	}
	a.Role = auth.Role(role)
	return &a, nil
}
