// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

package api

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/opentablerpg/otrpg/internal/auth"
	"github.com/opentablerpg/otrpg/internal/lobby"
)

// Field limits for request bodies.
const (
	minPasswordLength    = 8
	maxPasswordLength    = 256
	maxDisplayNameLength = 100
)

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

func (r *registerRequest) Validate() error {
	r.Email = auth.NormalizeEmail(r.Email)
	r.DisplayName = strings.TrimSpace(r.DisplayName)
	return validation.ValidateStruct(r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.RuneLength(minPasswordLength, maxPasswordLength)),
		validation.Field(&r.DisplayName, validation.Required, validation.RuneLength(1, maxDisplayNameLength)),
	)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *loginRequest) Validate() error {
	r.Email = auth.NormalizeEmail(r.Email)
	return validation.ValidateStruct(r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.RuneLength(1, maxPasswordLength)),
	)
}

type createLobbyRequest struct {
	Name string `json:"name"`
}

func (r *createLobbyRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Required, validation.RuneLength(1, lobby.MaxNameLength)),
	)
}

type emailInviteRequest struct {
	TargetEmail string `json:"target_email"`
}

func (r *emailInviteRequest) Validate() error {
	r.TargetEmail = auth.NormalizeEmail(r.TargetEmail)
	return validation.ValidateStruct(r,
		validation.Field(&r.TargetEmail, validation.Required, is.Email),
	)
}

type acceptInviteRequest struct {
	Token string `json:"token"`
}

// fieldErrors flattens ozzo validation errors into field -> message.
func fieldErrors(err error) map[string]string {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make(map[string]string, len(verrs))
	for name, ferr := range verrs {
		fields[name] = ferr.Error()
	}
	return fields
}
