package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/credenza-market/credenza-backend/pkg/enums"
)

// StockRecord is a quantity-bearing batch of sellable credential data tied to
// one product and one provider. Unpublished units never count toward the
// product's visible stock.
type StockRecord struct {
	ID            uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID     uuid.UUID                `gorm:"column:product_id;type:uuid;not null;index"`
	ProviderID    uuid.UUID                `gorm:"column:provider_id;type:uuid;not null;index"`
	Payload       json.RawMessage          `gorm:"column:payload;type:jsonb"`
	Quantity      int                      `gorm:"column:quantity;not null;default:1"`
	PublishStatus enums.StockPublishStatus `gorm:"column:publish_status;type:stock_publish_status;not null;default:'published'"`
	Sold          bool                     `gorm:"column:sold;not null;default:false"`
	SoldPrice     *decimal.Decimal         `gorm:"column:sold_price;type:numeric(12,2)"`
	BuyerID       *uuid.UUID               `gorm:"column:buyer_id;type:uuid"`
	SoldAt        *time.Time               `gorm:"column:sold_at"`
	CreatedAt     time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// Sellable reports whether the record's units count toward available stock.
func (s StockRecord) Sellable() bool {
	return !s.Sold && s.PublishStatus == enums.StockPublishStatusPublished && s.Quantity > 0
}
