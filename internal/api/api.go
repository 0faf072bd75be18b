// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

// Package api exposes the identity, lobby, and invite services as a JSON
// HTTP API built on gin. Sessions travel in an HttpOnly cookie.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"

	"github.com/opentablerpg/otrpg/internal/auth"
	"github.com/opentablerpg/otrpg/internal/invite"
	"github.com/opentablerpg/otrpg/internal/lobby"
	"github.com/opentablerpg/otrpg/internal/observability"
)

// Authenticator is the session surface used by the API. *auth.Service
// implements it.
type Authenticator interface {
	Register(ctx context.Context, in auth.RegisterInput, role auth.Role) (*auth.Account, error)
	Login(ctx context.Context, email, password string) (*auth.Account, *auth.Session, string, error)
	ResolveSession(ctx context.Context, token string) (*auth.Account, error)
	RevokeSession(ctx context.Context, token string) error
	SessionTTL() time.Duration
}

// LobbyService is implemented by *lobby.Service.
type LobbyService interface {
	CreateLobby(ctx context.Context, owner *auth.Account, name string) (*lobby.Detail, error)
	GetLobbyDetail(ctx context.Context, lobbyID ulid.ULID, caller *auth.Account) (*lobby.Detail, error)
	ListLobbies(ctx context.Context, caller *auth.Account) ([]*lobby.Lobby, error)
}

// InviteService is implemented by *invite.Service.
type InviteService interface {
	CreateEmailInvite(ctx context.Context, lobbyID ulid.ULID, issuer *auth.Account, targetEmail string) (*invite.Issued, error)
	RedeemInvite(ctx context.Context, token string, account *auth.Account) (*lobby.Member, error)
}

// Options configures a Handler.
type Options struct {
	CookieName   string
	CookieSecure bool
	CORSOrigins  []string
	Logger       *slog.Logger
	Metrics      *observability.Metrics
}

// Handler serves the HTTP API.
type Handler struct {
	auth    Authenticator
	lobbies LobbyService
	invites InviteService

	cookieName   string
	cookieSecure bool
	corsOrigins  []string
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// DefaultCookieName is used when Options.CookieName is empty.
const DefaultCookieName = "session_id"

// New creates a Handler. A nil Metrics records into a private registry.
func New(authSvc Authenticator, lobbies LobbyService, invites InviteService, opts Options) (*Handler, error) {
	switch {
	case authSvc == nil:
		return nil, oops.Code("API_INVALID_HANDLER").Errorf("authenticator is required")
	case lobbies == nil:
		return nil, oops.Code("API_INVALID_HANDLER").Errorf("lobby service is required")
	case invites == nil:
		return nil, oops.Code("API_INVALID_HANDLER").Errorf("invite service is required")
	}

	h := &Handler{
		auth:         authSvc,
		lobbies:      lobbies,
		invites:      invites,
		cookieName:   opts.CookieName,
		cookieSecure: opts.CookieSecure,
		corsOrigins:  opts.CORSOrigins,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
	}
	if h.cookieName == "" {
		h.cookieName = DefaultCookieName
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.metrics == nil {
		h.metrics = observability.NewMetrics(prometheus.NewRegistry())
	}
	return h, nil
}

// Router builds the gin engine with all routes and middleware.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.CustomRecovery(h.recoverPanic))
	r.Use(h.observeRequests())
	if len(h.corsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     h.corsOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	api := r.Group("/api")
	{
		api.POST("/gm/register", h.registerGM)
		api.POST("/register", h.registerPlayer)
		api.POST("/login", h.login)
		api.POST("/logout", h.logout)
	}

	authed := api.Group("")
	authed.Use(h.requireSession())
	{
		authed.GET("/whoami", h.whoami)
		authed.GET("/lobbies", h.listLobbies)
		authed.POST("/lobbies", h.createLobby)
		authed.GET("/lobbies/:id", h.getLobby)
		authed.POST("/lobbies/:id/invites/email", h.createEmailInvite)
		authed.POST("/invites/accept", h.acceptInvite)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorBody{Error: "NOT_FOUND", Message: "route not found"})
	})
	return r
}
