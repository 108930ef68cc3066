package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/credenza-market/credenza-backend/api/responses"
	"github.com/credenza-market/credenza-backend/api/validators"
	ledgersvc "github.com/credenza-market/credenza-backend/internal/ledger"
	purchasesvc "github.com/credenza-market/credenza-backend/internal/purchases"
	pkgerrors "github.com/credenza-market/credenza-backend/pkg/errors"
	"github.com/credenza-market/credenza-backend/pkg/logger"
	"github.com/credenza-market/credenza-backend/pkg/pagination"
)

type transactionListResponse struct {
	Transactions []ledgersvc.TransactionDTO `json:"transactions"`
	NextCursor   string                     `json:"nextCursor,omitempty"`
}

// ListMyTransactions returns the caller's ledger, newest first.
func ListMyTransactions(svc ledgersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		userID, err := currentUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 0, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, next, err := svc.ListByUser(r.Context(), userID, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, transactionListResponse{
			Transactions: ledgersvc.TransactionsFromModels(rows),
			NextCursor:   next,
		})
	}
}

// GetMyTransaction resolves one ledger row by row id, order code, or legacy
// numeric id.
func GetMyTransaction(svc ledgersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		userID, err := currentUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		identifier := strings.TrimSpace(chi.URLParam(r, "transactionId"))
		if identifier == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "transaction identifier required"))
			return
		}

		txn, err := svc.FindTransaction(r.Context(), userID, identifier)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, ledgersvc.TransactionFromModel(txn))
	}
}

type rechargeRequest struct {
	Amount string `json:"amount" validate:"required"`
	Method string `json:"method" validate:"required"`
}

// RequestRecharge opens a pending top-up that an admin later settles.
func RequestRecharge(svc purchasesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase service unavailable"))
			return
		}

		userID, err := currentUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload rechargeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		amount, err := decimal.NewFromString(payload.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount"))
			return
		}

		txn, err := svc.RequestRecharge(r.Context(), userID, amount, strings.TrimSpace(payload.Method))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, ledgersvc.TransactionFromModel(txn))
	}
}

// AdminApproveRecharge settles a pending top-up: balance credit plus any
// referral commission.
func AdminApproveRecharge(svc purchasesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return adminRechargeDecision(svc, logg, true)
}

// AdminRejectRecharge closes a pending top-up without moving money.
func AdminRejectRecharge(svc purchasesvc.Service, logg *logger.Logger) http.HandlerFunc {
	return adminRechargeDecision(svc, logg, false)
}

func adminRechargeDecision(svc purchasesvc.Service, logg *logger.Logger, approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchase service unavailable"))
			return
		}

		userID, err := pathUUID(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		identifier := strings.TrimSpace(chi.URLParam(r, "transactionId"))
		if identifier == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "transaction identifier required"))
			return
		}

		decide := svc.RejectRecharge
		if approve {
			decide = svc.ApproveRecharge
		}

		txn, err := decide(r.Context(), userID, identifier)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, ledgersvc.TransactionFromModel(txn))
	}
}
