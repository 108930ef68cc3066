package controllers

import (
	"net/http"
	"strings"

	"github.com/credenza-market/credenza-backend/api/responses"
	"github.com/credenza-market/credenza-backend/api/validators"
	usersvc "github.com/credenza-market/credenza-backend/internal/users"
	pkgerrors "github.com/credenza-market/credenza-backend/pkg/errors"
	"github.com/credenza-market/credenza-backend/pkg/logger"
)

type registerRequest struct {
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required,min=8"`
	Name         string `json:"name" validate:"required"`
	ReferralCode string `json:"referral_code,omitempty" validate:"omitempty,min=4"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token string           `json:"token"`
	User  *usersvc.UserDTO `json:"user"`
}

// Register creates an account in the pending state; an admin approves it
// into its real tier before the user can trade.
func Register(svc usersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "user service unavailable"))
			return
		}

		var payload registerRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		user, err := svc.Register(r.Context(), usersvc.RegisterInput{
			Email:        strings.ToLower(strings.TrimSpace(payload.Email)),
			Password:     payload.Password,
			Name:         strings.TrimSpace(payload.Name),
			ReferralCode: strings.TrimSpace(payload.ReferralCode),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, usersvc.FromModel(user))
	}
}

// Login authenticates credentials and mints an access token.
func Login(svc usersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "user service unavailable"))
			return
		}

		var payload loginRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		user, token, err := svc.Authenticate(r.Context(), strings.ToLower(strings.TrimSpace(payload.Email)), payload.Password)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, loginResponse{Token: token, User: usersvc.FromModel(user)})
	}
}
