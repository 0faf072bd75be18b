// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opentablerpg/otrpg/internal/auth"
	"github.com/opentablerpg/otrpg/pkg/errutil"
)

func (h *Handler) registerGM(c *gin.Context) {
	h.register(c, auth.RoleGM)
}

func (h *Handler) registerPlayer(c *gin.Context) {
	h.register(c, auth.RolePlayer)
}

func (h *Handler) register(c *gin.Context, role auth.Role) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, "malformed JSON body", nil)
		return
	}
	if err := req.Validate(); err != nil {
		respondValidation(c, err.Error(), fieldErrors(err))
		return
	}

	account, err := h.auth.Register(c.Request.Context(), auth.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	}, role)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toAccountResponse(account))
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, "malformed JSON body", nil)
		return
	}
	if err := req.Validate(); err != nil {
		respondValidation(c, err.Error(), fieldErrors(err))
		return
	}

	account, _, token, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		result := "error"
		if errors.Is(err, errutil.ErrUnauthenticated) {
			result = "invalid_credentials"
		}
		h.metrics.LoginsTotal.WithLabelValues(result).Inc()
		h.respondError(c, err)
		return
	}

	h.metrics.LoginsTotal.WithLabelValues("success").Inc()
	h.setSessionCookie(c, token)
	c.JSON(http.StatusOK, toAccountResponse(account))
}

// logout revokes the presented session, if any, and always succeeds.
func (h *Handler) logout(c *gin.Context) {
	if token, err := c.Cookie(h.cookieName); err == nil && token != "" {
		if err := h.auth.RevokeSession(c.Request.Context(), token); err != nil {
			errutil.LogError(h.logger, "logout revoke failed", err)
		}
	}
	h.clearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) whoami(c *gin.Context) {
	c.JSON(http.StatusOK, toAccountResponse(currentAccount(c)))
}
