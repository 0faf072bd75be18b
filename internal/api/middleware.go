// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opentablerpg/otrpg/internal/auth"
)

const accountKey = "account"

// observeRequests logs and counts every request. It records the route
// pattern rather than the raw path, and never logs headers or cookies.
func (h *Handler) observeRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		status := c.Writer.Status()
		h.metrics.ObserveRequest(route, status)
		h.logger.InfoContext(c.Request.Context(), "request",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds())
	}
}

func (h *Handler) recoverPanic(c *gin.Context, recovered any) {
	h.logger.ErrorContext(c.Request.Context(), "panic recovered",
		"panic", recovered,
		"route", c.FullPath())
	c.AbortWithStatusJSON(http.StatusInternalServerError, internalErrorBody)
}

// requireSession resolves the session cookie to an account and stores it
// in the gin context. Missing and invalid sessions both yield 401.
func (h *Handler) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(h.cookieName)
		if err != nil || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{
				Error:   auth.CodeSessionInvalid,
				Message: "authentication required",
			})
			return
		}

		account, err := h.auth.ResolveSession(c.Request.Context(), token)
		if err != nil {
			h.respondError(c, err)
			c.Abort()
			return
		}
		c.Set(accountKey, account)
		c.Next()
	}
}

// currentAccount returns the account stored by requireSession.
func currentAccount(c *gin.Context) *auth.Account {
	return c.MustGet(accountKey).(*auth.Account)
}

func (h *Handler) setSessionCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, token, int(h.auth.SessionTTL().Seconds()), "/", "", h.cookieSecure, true)
}

func (h *Handler) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, "", -1, "/", "", h.cookieSecure, true)
}
