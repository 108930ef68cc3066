package withdrawals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/credenza-market/credenza-backend/pkg/db/models"
	"github.com/credenza-market/credenza-backend/pkg/enums"
)

// RequestDTO is the transport shape of a withdrawal request.
type RequestDTO struct {
	ID        uuid.UUID              `json:"id"`
	UserID    uuid.UUID              `json:"user_id"`
	Amount    decimal.Decimal        `json:"amount"`
	Fee       decimal.Decimal        `json:"fee"`
	NetAmount decimal.Decimal        `json:"net_amount"`
	Method    string                 `json:"method"`
	Status    enums.WithdrawalStatus `json:"status"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

func FromModel(r *models.WithdrawalRequest) *RequestDTO {
	if r == nil {
		return nil
	}
	return &RequestDTO{
		ID:        r.ID,
		UserID:    r.UserID,
		Amount:    r.Amount,
		Fee:       r.Fee,
		NetAmount: r.NetAmount,
		Method:    r.Method,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func FromModels(rows []models.WithdrawalRequest) []RequestDTO {
	out := make([]RequestDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out
}
