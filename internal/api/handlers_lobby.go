// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/opentablerpg/otrpg/pkg/errutil"
)

func (h *Handler) listLobbies(c *gin.Context) {
	lobbies, err := h.lobbies.ListLobbies(c.Request.Context(), currentAccount(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	out := make([]lobbySummaryResponse, 0, len(lobbies))
	for _, l := range lobbies {
		out = append(out, toLobbySummary(l))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) createLobby(c *gin.Context) {
	var req createLobbyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, "malformed JSON body", nil)
		return
	}
	if err := req.Validate(); err != nil {
		respondValidation(c, err.Error(), fieldErrors(err))
		return
	}

	detail, err := h.lobbies.CreateLobby(c.Request.Context(), currentAccount(c), req.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toLobbyDetail(detail))
}

func (h *Handler) getLobby(c *gin.Context) {
	lobbyID, ok := h.lobbyParam(c)
	if !ok {
		return
	}
	detail, err := h.lobbies.GetLobbyDetail(c.Request.Context(), lobbyID, currentAccount(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toLobbyDetail(detail))
}

func (h *Handler) createEmailInvite(c *gin.Context) {
	lobbyID, ok := h.lobbyParam(c)
	if !ok {
		return
	}
	var req emailInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, "malformed JSON body", nil)
		return
	}
	if err := req.Validate(); err != nil {
		respondValidation(c, err.Error(), fieldErrors(err))
		return
	}

	issued, err := h.invites.CreateEmailInvite(c.Request.Context(), lobbyID, currentAccount(c), req.TargetEmail)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.metrics.InvitesIssuedTotal.Inc()
	c.JSON(http.StatusCreated, inviteResponse{
		InviteURL:        issued.URL,
		ExpiresInSeconds: int64(issued.ExpiresIn.Seconds()),
	})
}

// acceptInvite redeems the token from the query string or a JSON body, then
// returns the joined lobby. Redemption is POST only so a cross-site link
// cannot spend an invite with the Lax session cookie.
func (h *Handler) acceptInvite(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		var req acceptInviteRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			token = strings.TrimSpace(req.Token)
		}
	}
	if token == "" {
		respondValidation(c, "token is required", map[string]string{"token": "cannot be blank"})
		return
	}

	ctx := c.Request.Context()
	account := currentAccount(c)
	member, err := h.invites.RedeemInvite(ctx, token, account)
	if err != nil {
		h.metrics.InvitesRedeemedTotal.WithLabelValues(string(errutil.KindOf(err))).Inc()
		h.respondError(c, err)
		return
	}
	h.metrics.InvitesRedeemedTotal.WithLabelValues("success").Inc()

	detail, err := h.lobbies.GetLobbyDetail(ctx, member.LobbyID, account)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toLobbyDetail(detail))
}

// lobbyParam parses the :id path parameter. A malformed ID cannot name a
// lobby, so it is reported as not found.
func (h *Handler) lobbyParam(c *gin.Context) (ulid.ULID, bool) {
	id, err := ulid.Parse(c.Param("id"))
	if err != nil {
		h.respondError(c, oops.Code("LOBBY_NOT_FOUND").With("lobby_id", c.Param("id")).Wrap(errutil.ErrNotFound))
		return ulid.ULID{}, false
	}
	return id, true
}
