// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentablerpg/otrpg/internal/auth"
	"github.com/opentablerpg/otrpg/pkg/errutil"
)

func TestHashPassword(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	t.Run("produces valid hash", func(t *testing.T) {
		hash, err := hasher.Hash("password123")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=1,p=4$"))
	})

	t.Run("same password produces different hashes (salt)", func(t *testing.T) {
		hash1, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		hash2, err := hasher.Hash("samepassword")
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("rejects empty password", func(t *testing.T) {
		_, err := hasher.Hash("")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_EMPTY_PASSWORD")
	})
}

func TestVerifyPassword(t *testing.T) {
	hasher := auth.NewArgon2idHasher()

	hash, err := hasher.Hash("Secret123!")
	require.NoError(t, err)

	t.Run("correct password verifies", func(t *testing.T) {
		assert.True(t, hasher.Verify("Secret123!", hash))
	})

	t.Run("incorrect password fails", func(t *testing.T) {
		assert.False(t, hasher.Verify("secret123!", hash))
		assert.False(t, hasher.Verify("", hash))
	})

	malformed := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"not a phc string", "not-a-valid-hash"},
		{"wrong algorithm", "$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA"},
		{"bcrypt hash", "$2a$10$N9qo8uLOickgx2ZMRZoMyeIvNq.Uf3hE9tQALNP1Qn9sNp5x5x5x5"},
		{"invalid version format", "$argon2id$vXX$m=65536,t=1,p=4$c2FsdA$aGFzaA"},
		{"unknown version", "$argon2id$v=16$m=65536,t=1,p=4$c2FsdA$aGFzaA"},
		{"invalid parameters format", "$argon2id$v=19$invalid$c2FsdA$aGFzaA"},
		{"zero memory", "$argon2id$v=19$m=0,t=1,p=4$c2FsdA$aGFzaA"},
		{"zero iterations", "$argon2id$v=19$m=65536,t=0,p=4$c2FsdA$aGFzaA"},
		{"threads overflow", "$argon2id$v=19$m=65536,t=1,p=256$c2FsdA$aGFzaA"},
		{"memory above ceiling", "$argon2id$v=19$m=4294967295,t=1,p=1$c2FsdA$aGFzaA"},
		{"memory just above ceiling", "$argon2id$v=19$m=1048577,t=1,p=1$c2FsdA$aGFzaA"},
		{"iterations above ceiling", "$argon2id$v=19$m=65536,t=4294967295,p=1$c2FsdA$aGFzaA"},
		{"invalid salt base64", "$argon2id$v=19$m=65536,t=1,p=4$!!!invalid!!!$aGFzaA"},
		{"invalid key base64", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$!!!invalid!!!"},
		{"empty key", "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$"},
	}

	for _, tt := range malformed {
		t.Run("malformed hash is a mismatch: "+tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.False(t, hasher.Verify("password", tt.hash))
			})
		})
	}
}

func TestArgon2idHasher_ImplementsPasswordHasher(_ *testing.T) {
	var _ auth.PasswordHasher = auth.NewArgon2idHasher()
}
