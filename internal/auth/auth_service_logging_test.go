// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

package auth_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentablerpg/otrpg/internal/auth"
	"github.com/opentablerpg/otrpg/internal/store/memory"
)

// logEntry represents a parsed JSON log entry.
type logEntry struct {
	Level     string `json:"level"`
	Msg       string `json:"msg"`
	AccountID string `json:"account_id"`
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
}

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }
func (plainHasher) Verify(password, hash string) bool    { return hash == "hashed:"+password }

func parseLogs(t *testing.T, buf *bytes.Buffer) []logEntry {
	t.Helper()
	var entries []logEntry
	sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for sc.Scan() {
		var e logEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e), "line: %s", sc.Text())
		entries = append(entries, e)
	}
	require.NoError(t, sc.Err())
	return entries
}

func newLoggingService(t *testing.T) (*auth.Service, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	s := memory.New()
	svc, err := auth.NewService(s.Accounts(), s.Sessions(), plainHasher{}, auth.WithLogger(logger))
	require.NoError(t, err)
	return svc, &buf
}

func TestService_LogsLifecycleWithoutSecrets(t *testing.T) {
	ctx := context.Background()
	svc, buf := newLoggingService(t)

	account, err := svc.Register(ctx, auth.RegisterInput{
		Email: "gm@test.com", Password: "Secret123!", DisplayName: "GM",
	}, auth.RoleGM)
	require.NoError(t, err)

	session, token, err := svc.CreateSession(ctx, account)
	require.NoError(t, err)
	require.NoError(t, svc.RevokeSession(ctx, token))

	entries := parseLogs(t, buf)
	require.Len(t, entries, 3)

	assert.Equal(t, "account registered", entries[0].Msg)
	assert.Equal(t, account.ID.String(), entries[0].AccountID)
	assert.Equal(t, "gm", entries[0].Role)

	assert.Equal(t, "session created", entries[1].Msg)
	assert.Equal(t, session.ID.String(), entries[1].SessionID)

	assert.Equal(t, "session revoked", entries[2].Msg)
	assert.Equal(t, session.ID.String(), entries[2].SessionID)

	raw := buf.String()
	for _, secret := range []string{"Secret123!", "gm@test.com", token, session.TokenHash} {
		assert.NotContains(t, raw, secret)
	}
}

func TestService_Login_LogsRejectionForKnownAccount(t *testing.T) {
	ctx := context.Background()
	svc, buf := newLoggingService(t)

	account, err := svc.Register(ctx, auth.RegisterInput{
		Email: "gm@test.com", Password: "Secret123!", DisplayName: "GM",
	}, auth.RoleGM)
	require.NoError(t, err)
	buf.Reset()

	_, _, _, err = svc.Login(ctx, "gm@test.com", "wrong-password")
	require.Error(t, err)
	_, _, _, err = svc.Login(ctx, "nobody@test.com", "wrong-password")
	require.Error(t, err)

	entries := parseLogs(t, buf)
	require.Len(t, entries, 1, "unknown emails are not logged")
	assert.Equal(t, "INFO", entries[0].Level)
	assert.Equal(t, "login rejected", entries[0].Msg)
	assert.Equal(t, account.ID.String(), entries[0].AccountID)
	assert.NotContains(t, buf.String(), "wrong-password")
}

func TestService_RevokeSession_NoLogWhenAlreadyRevoked(t *testing.T) {
	ctx := context.Background()
	svc, buf := newLoggingService(t)

	account, err := svc.Register(ctx, auth.RegisterInput{
		Email: "gm@test.com", Password: "Secret123!", DisplayName: "GM",
	}, auth.RoleGM)
	require.NoError(t, err)
	_, token, err := svc.CreateSession(ctx, account)
	require.NoError(t, err)
	require.NoError(t, svc.RevokeSession(ctx, token))
	buf.Reset()

	require.NoError(t, svc.RevokeSession(ctx, token))
	require.NoError(t, svc.RevokeSession(ctx, "unknown-token"))
	assert.Empty(t, buf.String())
}
