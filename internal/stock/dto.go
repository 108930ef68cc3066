package stock

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/credenza-market/credenza-backend/pkg/db/models"
	"github.com/credenza-market/credenza-backend/pkg/enums"
)

// RecordDTO is the provider-facing shape of a stock record. The payload is
// included: this view is only served to the owning provider.
type RecordDTO struct {
	ID            uuid.UUID                `json:"id"`
	ProductID     uuid.UUID                `json:"product_id"`
	Payload       json.RawMessage          `json:"payload,omitempty"`
	Quantity      int                      `json:"quantity"`
	PublishStatus enums.StockPublishStatus `json:"publish_status"`
	Sold          bool                     `json:"sold"`
	SoldPrice     *decimal.Decimal         `json:"sold_price,omitempty"`
	BuyerID       *uuid.UUID               `json:"buyer_id,omitempty"`
	SoldAt        *time.Time               `json:"sold_at,omitempty"`
	CreatedAt     time.Time                `json:"created_at"`
}

func RecordFromModel(r *models.StockRecord) *RecordDTO {
	if r == nil {
		return nil
	}
	return &RecordDTO{
		ID:            r.ID,
		ProductID:     r.ProductID,
		Payload:       r.Payload,
		Quantity:      r.Quantity,
		PublishStatus: r.PublishStatus,
		Sold:          r.Sold,
		SoldPrice:     r.SoldPrice,
		BuyerID:       r.BuyerID,
		SoldAt:        r.SoldAt,
		CreatedAt:     r.CreatedAt,
	}
}

func RecordsFromModels(records []models.StockRecord) []RecordDTO {
	out := make([]RecordDTO, 0, len(records))
	for i := range records {
		out = append(out, *RecordFromModel(&records[i]))
	}
	return out
}
