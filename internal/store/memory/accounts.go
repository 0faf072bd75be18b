// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

package memory

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/opentablerpg/otrpg/internal/auth"
	"github.com/opentablerpg/otrpg/pkg/errutil"
)

// AccountRepository implements auth.AccountRepository.
type AccountRepository struct {
	s *Store
}

var _ auth.AccountRepository = (*AccountRepository)(nil)

func cloneAccount(a *auth.Account) *auth.Account {
	c := *a
	return &c
}

// Create stores a new account.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	defer r.s.lock(ctx)()

	if _, exists := r.s.data.accounts[account.ID]; exists {
		return oops.Code("ACCOUNT_ID_TAKEN").With("id", account.ID.String()).Wrap(errutil.ErrConflict)
	}
	for _, existing := range r.s.data.accounts {
		if existing.Email == account.Email {
			return oops.Code("ACCOUNT_EMAIL_TAKEN").Wrapf(errutil.ErrConflict, "email already registered")
		}
	}
	r.s.data.accounts[account.ID] = cloneAccount(account)
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	defer r.s.lock(ctx)()

	a, ok := r.s.data.accounts[id]
	if !ok {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("id", id.String()).Wrap(errutil.ErrNotFound)
	}
	return cloneAccount(a), nil
}

// GetByEmail retrieves an account by normalized email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	defer r.s.lock(ctx)()

	for _, a := range r.s.data.accounts {
		if a.Email == email {
			return cloneAccount(a), nil
		}
	}
	return nil, oops.Code("ACCOUNT_NOT_FOUND").Wrap(errutil.ErrNotFound)
}
