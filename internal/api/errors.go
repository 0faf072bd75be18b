// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/opentablerpg/otrpg/pkg/errutil"
)

type errorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

var internalErrorBody = errorBody{Error: "INTERNAL", Message: "internal server error"}

var kindStatus = map[errutil.Kind]int{
	errutil.KindUnauthenticated: http.StatusUnauthorized,
	errutil.KindForbidden:       http.StatusForbidden,
	errutil.KindNotFound:        http.StatusNotFound,
	errutil.KindConflict:        http.StatusConflict,
	errutil.KindGone:            http.StatusGone,
	errutil.KindValidation:      http.StatusBadRequest,
}

var kindMessages = map[errutil.Kind]string{
	errutil.KindUnauthenticated: "authentication required",
	errutil.KindForbidden:       "forbidden",
	errutil.KindNotFound:        "not found",
	errutil.KindConflict:        "conflict",
	errutil.KindGone:            "no longer available",
	errutil.KindValidation:      "invalid request",
}

// publicMessages are the client-facing texts for known codes.
var publicMessages = map[string]string{
	"AUTH_INVALID_CREDENTIALS":  "invalid credentials",
	"SESSION_INVALID":           "authentication required",
	"ACCOUNT_EMAIL_TAKEN":       "email already exists",
	"LOBBY_GM_REQUIRED":         "only GMs can create lobbies",
	"LOBBY_MEMBERSHIP_REQUIRED": "not a member of this lobby",
	"LOBBY_DM_REQUIRED":         "only the lobby DM can do this",
	"LOBBY_NOT_FOUND":           "lobby not found",
	"MEMBER_DUPLICATE_USER":     "already a member of this lobby",
	"INVITE_NOT_FOUND":          "invite not found",
	"INVITE_ALREADY_USED":       "invite has already been used",
	"INVITE_SUPERSEDED":         "invite was superseded by a newer invite",
	"INVITE_EXPIRED":            "invite has expired",
	"INVITE_MEMBERSHIP_GONE":    "invited membership no longer exists",
	"INVITE_EMAIL_MISMATCH":     "invite was issued to a different email",
	"INVITE_ACCOUNT_EXISTS":     "an account already uses this email",
}

// respondError writes the JSON error for err. Internal failures and
// invariant violations are logged and reported without detail.
func (h *Handler) respondError(c *gin.Context, err error) {
	kind := errutil.KindOf(err)
	status, known := kindStatus[kind]
	if !known {
		errutil.LogError(h.logger, "request failed", err)
		c.JSON(http.StatusInternalServerError, internalErrorBody)
		return
	}

	code := errutil.Code(err)
	switch {
	case kind == errutil.KindValidation:
		code = "VALIDATION"
	case code == "":
		code = strings.ToUpper(string(kind))
	}
	msg, ok := publicMessages[code]
	if !ok {
		msg = kindMessages[kind]
	}
	c.JSON(status, errorBody{Error: code, Message: msg})
}

func respondValidation(c *gin.Context, msg string, fields map[string]string) {
	c.JSON(http.StatusBadRequest, errorBody{Error: "VALIDATION", Message: msg, Fields: fields})
}
