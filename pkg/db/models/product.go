package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/credenza-market/credenza-backend/pkg/enums"
)

// Product is a provider listing for a subscription credential.
// CachedStock is a derived sum over unsold, published stock records and is
// recomputed after every stock mutation, never trusted incrementally.
type Product struct {
	ID                  uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProviderID          uuid.UUID          `gorm:"column:provider_id;type:uuid;not null;index"`
	Name                string             `gorm:"column:name;not null"`
	Category            string             `gorm:"column:category;not null"`
	DurationLabel       string             `gorm:"column:duration_label;not null"`
	Price               decimal.Decimal    `gorm:"column:price;type:numeric(12,2);not null"`
	PremiumPrice        decimal.Decimal    `gorm:"column:premium_price;type:numeric(12,2);not null"`
	RenewalPrice        decimal.Decimal    `gorm:"column:renewal_price;type:numeric(12,2);not null"`
	PremiumRenewalPrice decimal.Decimal    `gorm:"column:premium_renewal_price;type:numeric(12,2);not null"`
	DeliveryMode        enums.DeliveryMode `gorm:"column:delivery_mode;type:delivery_mode;not null;default:'stock'"`
	PublishedUntil      *time.Time         `gorm:"column:published_until"`
	CachedStock         int                `gorm:"column:cached_stock;not null;default:0"`
	StockRecords        []StockRecord      `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt           time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// IsListed reports whether the product is inside its publication window.
func (p Product) IsListed(now time.Time) bool {
	return p.PublishedUntil != nil && p.PublishedUntil.After(now)
}
