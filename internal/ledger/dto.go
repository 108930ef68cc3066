package ledger

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/credenza-market/credenza-backend/pkg/db/models"
	"github.com/credenza-market/credenza-backend/pkg/enums"
)

// TransactionDTO is the transport shape of one ledger row.
type TransactionDTO struct {
	ID                        uuid.UUID                  `json:"id"`
	OrderCode                 string                     `json:"order_code"`
	UserID                    uuid.UUID                  `json:"user_id"`
	Direction                 enums.TransactionDirection `json:"direction"`
	Kind                      enums.TransactionKind      `json:"kind"`
	Status                    enums.TransactionStatus    `json:"status"`
	Amount                    decimal.Decimal            `json:"amount"`
	Details                   json.RawMessage            `json:"details,omitempty"`
	ProviderID                *uuid.UUID                 `json:"provider_id,omitempty"`
	ProductID                 *uuid.UUID                 `json:"product_id,omitempty"`
	StockRecordIDs            []string                   `json:"stock_record_ids,omitempty"`
	CounterpartyTransactionID *uuid.UUID                 `json:"counterparty_transaction_id,omitempty"`
	CreatedAt                 time.Time                  `json:"created_at"`
	UpdatedAt                 time.Time                  `json:"updated_at"`
}

func TransactionFromModel(t *models.Transaction) *TransactionDTO {
	if t == nil {
		return nil
	}
	dto := &TransactionDTO{
		ID:                        t.ID,
		OrderCode:                 t.OrderCode,
		UserID:                    t.UserID,
		Direction:                 t.Direction,
		Kind:                      t.Kind,
		Status:                    t.Status,
		Amount:                    t.Amount,
		Details:                   t.Details,
		StockRecordIDs:            append([]string(nil), t.StockRecordIDs...),
		CounterpartyTransactionID: t.CounterpartyTransactionID,
		CreatedAt:                 t.CreatedAt,
		UpdatedAt:                 t.UpdatedAt,
	}
	if t.ProviderID != uuid.Nil {
		providerID := t.ProviderID
		dto.ProviderID = &providerID
	}
	if t.ProductID != uuid.Nil {
		productID := t.ProductID
		dto.ProductID = &productID
	}
	return dto
}

func TransactionsFromModels(rows []models.Transaction) []TransactionDTO {
	out := make([]TransactionDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *TransactionFromModel(&rows[i]))
	}
	return out
}
