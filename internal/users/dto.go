package users

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/credenza-market/credenza-backend/pkg/db/models"
	"github.com/credenza-market/credenza-backend/pkg/enums"
)

// UserDTO is the transport shape that omits the credential hash.
type UserDTO struct {
	ID               uuid.UUID       `json:"id"`
	Email            string          `json:"email"`
	Name             string          `json:"name"`
	Balance          decimal.Decimal `json:"balance"`
	Role             enums.UserRole  `json:"role"`
	DiscountPercent  decimal.Decimal `json:"discount_percent"`
	ReferralCode     *string         `json:"referral_code,omitempty"`
	ReferredBy       *uuid.UUID      `json:"referred_by,omitempty"`
	PremiumExpiresAt *time.Time      `json:"premium_expires_at,omitempty"`
	Banned           bool            `json:"banned"`
	Approved         bool            `json:"approved"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:               u.ID,
		Email:            u.Email,
		Name:             u.Name,
		Balance:          u.Balance,
		Role:             u.Role,
		DiscountPercent:  u.DiscountPercent,
		ReferralCode:     u.ReferralCode,
		ReferredBy:       u.ReferredBy,
		PremiumExpiresAt: u.PremiumExpiresAt,
		Banned:           u.Banned,
		Approved:         u.Approved,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
}

func FromModels(users []models.User) []UserDTO {
	out := make([]UserDTO, 0, len(users))
	for i := range users {
		out = append(out, *FromModel(&users[i]))
	}
	return out
}
