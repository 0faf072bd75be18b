// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

// Package errutil holds the error taxonomy shared by the services and the
// helpers used to log and assert on oops errors.
//
// Every error returned by a service operation wraps at most one of the
// sentinel kinds below, so callers classify failures with errors.Is and
// never by inspecting messages. Errors that wrap none of them are internal
// failures.
package errutil

import (
	"errors"

	"github.com/samber/oops"
)

// Error kinds.
var (
	// ErrUnauthenticated covers missing, expired, and revoked sessions as
	// well as bad credentials. The cases are indistinguishable to callers.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden is returned when a role or membership check fails.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a uniqueness constraint is violated.
	ErrConflict = errors.New("conflict")

	// ErrGone is returned for single-use artifacts that were already used,
	// superseded, or have expired.
	ErrGone = errors.New("gone")

	// ErrInvariantViolation signals a defect: an internal consistency check
	// failed. It is never caused by caller input.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")
)

// Kind identifies the taxonomy bucket of an error.
type Kind string

// Kind values. KindInternal is used for errors that wrap no sentinel.
const (
	KindUnauthenticated    Kind = "unauthenticated"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindGone               Kind = "gone"
	KindInvariantViolation Kind = "invariant_violation"
	KindValidation         Kind = "validation"
	KindInternal           Kind = "internal"
)

// Invariant violations are checked first so a defect is never reported as
// an ordinary user error.
var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvariantViolation, KindInvariantViolation},
	{ErrUnauthenticated, KindUnauthenticated},
	{ErrForbidden, KindForbidden},
	{ErrNotFound, KindNotFound},
	{ErrConflict, KindConflict},
	{ErrGone, KindGone},
	{ErrValidation, KindValidation},
}

// KindOf classifies err. A nil error returns "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// Code returns the oops code attached to err, or "" if there is none.
// When codes are nested the deepest one wins.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string)
	return code
}
