// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

// Package postgres implements the account, session, lobby, member, and
// invite repositories on PostgreSQL. Every repository resolves its
// connection through store.Conn, so calls made inside
// store.Transactor.InTransaction share the transaction.
package postgres

import (
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/opentablerpg/otrpg/internal/store"
	"github.com/opentablerpg/otrpg/pkg/errutil"
)

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// conflictCodes maps unique constraints of the initial schema to the error
// codes the services and the HTTP layer see.
var conflictCodes = map[string]string{
	"accounts_pkey":                 "ACCOUNT_ID_TAKEN",
	"accounts_email_key":            "ACCOUNT_EMAIL_TAKEN",
	"sessions_pkey":                 "SESSION_ID_TAKEN",
	"sessions_token_hash_key":       "SESSION_TOKEN_TAKEN",
	"lobbies_pkey":                  "LOBBY_ID_TAKEN",
	"lobby_members_pkey":            "MEMBER_ID_TAKEN",
	"lobby_members_lobby_user_key":  "MEMBER_DUPLICATE_USER",
	"lobby_members_lobby_email_key": "MEMBER_DUPLICATE_EMAIL",
	"lobby_members_one_dm":          "MEMBER_DUPLICATE_DM",
	"invites_pkey":                  "INVITE_ID_TAKEN",
	"invites_token_hash_key":        "INVITE_TOKEN_TAKEN",
}

// asConflict converts a unique violation into an error wrapping
// errutil.ErrConflict. It returns nil for any other error.
func asConflict(err error) error {
	constraint, ok := store.UniqueViolation(err)
	if !ok {
		return nil
	}
	code, known := conflictCodes[constraint]
	if !known {
		code = "UNIQUE_VIOLATION"
	}
	return oops.Code(code).
		With("constraint", constraint).
		Wrapf(errutil.ErrConflict, "unique constraint %s violated", constraint)
}

func ulidToStringPtr(id *ulid.ULID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func parseULID(s, field string) (ulid.ULID, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return ulid.ULID{}, oops.Code("ROW_INVALID_ID").With("field", field).With("value", s).Wrap(err)
	}
	return id, nil
}

func parseOptionalULID(s *string, field string) (*ulid.ULID, error) {
	if s == nil {
		return nil, nil
	}
	id, err := parseULID(*s, field)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
