package controllers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/credenza-market/credenza-backend/api/responses"
	"github.com/credenza-market/credenza-backend/api/validators"
	stocksvc "github.com/credenza-market/credenza-backend/internal/stock"
	"github.com/credenza-market/credenza-backend/pkg/enums"
	pkgerrors "github.com/credenza-market/credenza-backend/pkg/errors"
	"github.com/credenza-market/credenza-backend/pkg/logger"
)

type addStockRequest struct {
	ProductID     string          `json:"product_id" validate:"required,uuid4"`
	Payload       json.RawMessage `json:"payload" validate:"required"`
	Quantity      int             `json:"quantity" validate:"required,min=1"`
	PublishStatus string          `json:"publish_status,omitempty"`
}

// ProviderAddStock adds a credential batch to one of the caller's products.
func ProviderAddStock(inv stocksvc.Inventory, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if inv == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock inventory unavailable"))
			return
		}

		providerID, err := currentUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload addStockRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := stocksvc.AddStockInput{
			Payload:  payload.Payload,
			Quantity: payload.Quantity,
		}
		input.ProductID, err = parseUUIDField(payload.ProductID, "product_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.PublishStatus != "" {
			status, parseErr := enums.ParseStockPublishStatus(strings.TrimSpace(payload.PublishStatus))
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid publish status"))
				return
			}
			input.PublishStatus = status
		}

		record, err := inv.Add(r.Context(), providerID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, stocksvc.RecordFromModel(record))
	}
}

// ProviderRemoveStock deletes an unsold batch from the pool.
func ProviderRemoveStock(inv stocksvc.Inventory, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if inv == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock inventory unavailable"))
			return
		}

		providerID, err := currentUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		recordID, err := pathUUID(r, "recordId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := inv.Remove(r.Context(), providerID, recordID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "removed"})
	}
}

type publishStatusRequest struct {
	PublishStatus string `json:"publish_status" validate:"required"`
}

// ProviderSetStockStatus publishes or hides a batch.
func ProviderSetStockStatus(inv stocksvc.Inventory, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if inv == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock inventory unavailable"))
			return
		}

		providerID, err := currentUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		recordID, err := pathUUID(r, "recordId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload publishStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := enums.ParseStockPublishStatus(strings.TrimSpace(payload.PublishStatus))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid publish status"))
			return
		}

		if err := inv.SetPublishStatus(r.Context(), providerID, recordID, status); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": string(status)})
	}
}

// ProviderListStock lists the pool for one of the caller's products.
func ProviderListStock(inv stocksvc.Inventory, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if inv == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock inventory unavailable"))
			return
		}

		providerID, err := currentUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		productID, err := pathUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		records, err := inv.ListForProduct(r.Context(), providerID, productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, stocksvc.RecordsFromModels(records))
	}
}
