// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

package api

import (
	"github.com/opentablerpg/otrpg/internal/auth"
	"github.com/opentablerpg/otrpg/internal/lobby"
)

type accountResponse struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	AccountType string `json:"account_type"`
}

func toAccountResponse(a *auth.Account) accountResponse {
	return accountResponse{
		UserID:      a.ID.String(),
		Email:       a.Email,
		DisplayName: a.DisplayName,
		AccountType: string(a.Role),
	}
}

type lobbySummaryResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	CreatedByUserID string `json:"created_by_user_id"`
}

type memberResponse struct {
	UserID      *string `json:"user_id"`
	TargetEmail *string `json:"target_email"`
	Status      string  `json:"status"`
	IsDM        bool    `json:"is_dm"`
}

type lobbyDetailResponse struct {
	lobbySummaryResponse
	Members []memberResponse `json:"members"`
}

type inviteResponse struct {
	InviteURL        string `json:"invite_url"`
	ExpiresInSeconds int64  `json:"expires_in_seconds"`
}

func toLobbySummary(l *lobby.Lobby) lobbySummaryResponse {
	return lobbySummaryResponse{
		ID:              l.ID.String(),
		Name:            l.Name,
		CreatedByUserID: l.CreatedBy.String(),
	}
}

func toLobbyDetail(d *lobby.Detail) lobbyDetailResponse {
	members := make([]memberResponse, 0, len(d.Members))
	for _, m := range d.Members {
		var userID *string
		if m.UserID != nil {
			id := m.UserID.String()
			userID = &id
		}
		members = append(members, memberResponse{
			UserID:      userID,
			TargetEmail: m.TargetEmail,
			Status:      string(m.Status),
			IsDM:        m.IsDM,
		})
	}
	return lobbyDetailResponse{lobbySummaryResponse: toLobbySummary(d.Lobby), Members: members}
}
