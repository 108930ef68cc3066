package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/credenza-market/credenza-backend/api/responses"
	"github.com/credenza-market/credenza-backend/api/validators"
	premiumsvc "github.com/credenza-market/credenza-backend/internal/premium"
	usersvc "github.com/credenza-market/credenza-backend/internal/users"
	pkgerrors "github.com/credenza-market/credenza-backend/pkg/errors"
	"github.com/credenza-market/credenza-backend/pkg/logger"
)

type premiumUpgradeRequest struct {
	Amount string `json:"amount" validate:"required"`
	Months int    `json:"months" validate:"required,min=1,max=12"`
}

// UpgradePremium charges the caller's balance and extends their premium tier.
func UpgradePremium(svc premiumsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "premium service unavailable"))
			return
		}

		userID, err := currentUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload premiumUpgradeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		amount, err := decimal.NewFromString(payload.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount"))
			return
		}

		user, err := svc.Upgrade(r.Context(), premiumsvc.UpgradeInput{
			UserID: userID,
			Amount: amount,
			Months: payload.Months,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, usersvc.FromModel(user))
	}
}
