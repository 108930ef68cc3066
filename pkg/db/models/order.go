package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/credenza-market/credenza-backend/pkg/enums"
)

// Order tracks fulfillment for made-to-order products, where no stock record
// is consumed at purchase time.
type Order struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TransactionID uuid.UUID         `gorm:"column:transaction_id;type:uuid;not null;index"`
	BuyerID       uuid.UUID         `gorm:"column:buyer_id;type:uuid;not null;index"`
	ProviderID    uuid.UUID         `gorm:"column:provider_id;type:uuid;not null;index"`
	ProductID     uuid.UUID         `gorm:"column:product_id;type:uuid;not null"`
	Quantity      int               `gorm:"column:quantity;not null;default:1"`
	Status        enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'pending'"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
