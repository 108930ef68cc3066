package products

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/credenza-market/credenza-backend/pkg/db/models"
	"github.com/credenza-market/credenza-backend/pkg/enums"
)

// ProductDTO is the transport shape of a listing.
type ProductDTO struct {
	ID                  uuid.UUID          `json:"id"`
	ProviderID          uuid.UUID          `json:"provider_id"`
	Name                string             `json:"name"`
	Category            string             `json:"category"`
	DurationLabel       string             `json:"duration_label"`
	Price               decimal.Decimal    `json:"price"`
	PremiumPrice        decimal.Decimal    `json:"premium_price"`
	RenewalPrice        decimal.Decimal    `json:"renewal_price"`
	PremiumRenewalPrice decimal.Decimal    `json:"premium_renewal_price"`
	DeliveryMode        enums.DeliveryMode `json:"delivery_mode"`
	PublishedUntil      *time.Time         `json:"published_until,omitempty"`
	CachedStock         int                `json:"cached_stock"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

func FromModel(p *models.Product) *ProductDTO {
	if p == nil {
		return nil
	}
	return &ProductDTO{
		ID:                  p.ID,
		ProviderID:          p.ProviderID,
		Name:                p.Name,
		Category:            p.Category,
		DurationLabel:       p.DurationLabel,
		Price:               p.Price,
		PremiumPrice:        p.PremiumPrice,
		RenewalPrice:        p.RenewalPrice,
		PremiumRenewalPrice: p.PremiumRenewalPrice,
		DeliveryMode:        p.DeliveryMode,
		PublishedUntil:      p.PublishedUntil,
		CachedStock:         p.CachedStock,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}

// CategoryDTO is the transport shape of a product category.
type CategoryDTO struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func CategoriesFromModels(categories []models.Category) []CategoryDTO {
	out := make([]CategoryDTO, 0, len(categories))
	for _, c := range categories {
		out = append(out, CategoryDTO{ID: c.ID, Name: c.Name, CreatedAt: c.CreatedAt})
	}
	return out
}

func FromModels(listings []models.Product) []ProductDTO {
	out := make([]ProductDTO, 0, len(listings))
	for i := range listings {
		out = append(out, *FromModel(&listings[i]))
	}
	return out
}
