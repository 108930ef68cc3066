package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/credenza-market/credenza-backend/pkg/enums"
)

// WithdrawalRequest holds a provider's gross payout request. The gross amount
// is debited from the balance the moment the request is created; the hold is
// implicit in the row's pending status.
type WithdrawalRequest struct {
	ID        uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index"`
	Amount    decimal.Decimal        `gorm:"column:amount;type:numeric(12,2);not null"`
	Fee       decimal.Decimal        `gorm:"column:fee;type:numeric(12,3);not null"`
	NetAmount decimal.Decimal        `gorm:"column:net_amount;type:numeric(12,2);not null"`
	Method    string                 `gorm:"column:method;not null;default:'yape'"`
	Status    enums.WithdrawalStatus `gorm:"column:status;type:withdrawal_status;not null;default:'pending'"`
	CreatedAt time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
