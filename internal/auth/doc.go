// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

// Package auth provides authentication primitives for Open Table RPG.
//
// # Domain Types
//
// Domain types (Account, Session) should be created using their
// constructors:
//   - NewAccount - normalizes the email and validates role and display name
//   - NewSession - validates the owning account and expiry
//
// Direct struct initialization bypasses validation and may create invalid state.
// Repository implementations receive pre-validated types from these constructors.
//
// # Services
//
// Service coordinates registration, login, and the session lifecycle.
// Sessions move from active to revoked or expired and never back; liveness
// is evaluated when a token is resolved, so no background reaper exists.
// Raw session tokens are bearer credentials: only their SHA-256 hashes are
// stored and they are never logged.
package auth
