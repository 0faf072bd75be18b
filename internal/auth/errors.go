// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

package auth

import (
	"github.com/samber/oops"

	"github.com/opentablerpg/otrpg/pkg/errutil"
)

// Error codes returned to callers that are not authenticated.
const (
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeSessionInvalid     = "SESSION_INVALID"
)

func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Wrapf(errutil.ErrUnauthenticated, "invalid email or password")
}

// sessionInvalid is shared by the missing, expired, and revoked cases so
// that callers cannot tell them apart.
func sessionInvalid() error {
	return oops.Code(CodeSessionInvalid).Wrapf(errutil.ErrUnauthenticated, "invalid session")
}
