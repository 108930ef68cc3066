package purchases

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/credenza-market/credenza-backend/internal/ledger"
	"github.com/credenza-market/credenza-backend/pkg/db/models"
	"github.com/credenza-market/credenza-backend/pkg/enums"
)

// OrderDTO is the transport shape of a made-to-order fulfillment row.
type OrderDTO struct {
	ID            uuid.UUID         `json:"id"`
	TransactionID uuid.UUID         `json:"transaction_id"`
	BuyerID       uuid.UUID         `json:"buyer_id"`
	ProviderID    uuid.UUID         `json:"provider_id"`
	ProductID     uuid.UUID         `json:"product_id"`
	Quantity      int               `json:"quantity"`
	Status        enums.OrderStatus `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// DeliveredUnitDTO is one credential unit handed to the buyer at checkout.
type DeliveredUnitDTO struct {
	RecordID uuid.UUID       `json:"record_id"`
	Quantity int             `json:"quantity"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// PurchaseResultDTO is what the buyer receives back from a checkout.
type PurchaseResultDTO struct {
	Transaction *ledger.TransactionDTO `json:"transaction"`
	Units       []DeliveredUnitDTO     `json:"units,omitempty"`
	Order       *OrderDTO              `json:"order,omitempty"`
	Total       decimal.Decimal        `json:"total"`
}

func OrderFromModel(o *models.Order) *OrderDTO {
	if o == nil {
		return nil
	}
	return &OrderDTO{
		ID:            o.ID,
		TransactionID: o.TransactionID,
		BuyerID:       o.BuyerID,
		ProviderID:    o.ProviderID,
		ProductID:     o.ProductID,
		Quantity:      o.Quantity,
		Status:        o.Status,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func OrdersFromModels(rows []models.Order) []OrderDTO {
	out := make([]OrderDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *OrderFromModel(&rows[i]))
	}
	return out
}

func ResultFromModel(result *PurchaseResult) *PurchaseResultDTO {
	if result == nil {
		return nil
	}
	dto := &PurchaseResultDTO{
		Transaction: ledger.TransactionFromModel(result.Transaction),
		Order:       OrderFromModel(result.Order),
		Total:       result.Total,
	}
	for _, unit := range result.Units {
		dto.Units = append(dto.Units, DeliveredUnitDTO{
			RecordID: unit.RecordID,
			Quantity: unit.Quantity,
			Payload:  unit.Payload,
		})
	}
	return dto
}
