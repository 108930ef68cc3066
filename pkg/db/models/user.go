package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/credenza-market/credenza-backend/pkg/enums"
)

// User is a marketplace account: buyer, distributor, provider, or admin.
// Balance moves only in lockstep with transaction rows.
type User struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email            string          `gorm:"column:email;not null;uniqueIndex"`
	PasswordHash     string          `gorm:"column:password_hash;not null"`
	Name             string          `gorm:"column:name;not null"`
	Balance          decimal.Decimal `gorm:"column:balance;type:numeric(12,2);not null;default:0"`
	Role             enums.UserRole  `gorm:"column:role;type:user_role;not null;default:'standard'"`
	DiscountPercent  decimal.Decimal `gorm:"column:discount_percent;type:numeric(5,2);not null;default:0"`
	ReferralCode     *string         `gorm:"column:referral_code;uniqueIndex"`
	ReferredBy       *uuid.UUID      `gorm:"column:referred_by;type:uuid"`
	PremiumExpiresAt *time.Time      `gorm:"column:premium_expires_at"`
	Banned           bool            `gorm:"column:banned;not null;default:false"`
	Approved         bool            `gorm:"column:approved;not null;default:false"`
	Transactions     []Transaction   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	StockRecords     []StockRecord   `gorm:"foreignKey:ProviderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
