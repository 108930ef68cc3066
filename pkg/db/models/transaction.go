package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/lib/pq"

	"github.com/credenza-market/credenza-backend/pkg/enums"
)

// Transaction is one row of a user's ledger. Rows are append-only except for
// status/details edits inside the support workflow. The order code is
// synthesized once at creation; LegacyID preserves the numeric timestamp
// identity of imported entries so lookups can match either form as a string.
type Transaction struct {
	ID        uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID                  `gorm:"column:user_id;type:uuid;not null;index:idx_transactions_user_created"`
	OrderCode string                     `gorm:"column:order_code;not null;index"`
	LegacyID  *int64                     `gorm:"column:legacy_id"`
	Direction enums.TransactionDirection `gorm:"column:direction;type:transaction_direction;not null"`
	Kind      enums.TransactionKind      `gorm:"column:kind;type:transaction_kind;not null"`
	Status    enums.TransactionStatus    `gorm:"column:status;type:transaction_status;not null;default:'pending'"`
	Amount    decimal.Decimal            `gorm:"column:amount;type:numeric(12,2);not null"`
	Details   json.RawMessage            `gorm:"column:details;type:jsonb"`

	// Referential links recorded at creation time so sales can be traced to
	// their provider and stock without post-hoc inference.
	ProviderID                uuid.UUID      `gorm:"column:provider_id;type:uuid;index"`
	ProductID                 uuid.UUID      `gorm:"column:product_id;type:uuid"`
	StockRecordIDs            pq.StringArray `gorm:"column:stock_record_ids;type:text[]"`
	CounterpartyTransactionID *uuid.UUID     `gorm:"column:counterparty_transaction_id;type:uuid"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index:idx_transactions_user_created,sort:desc"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// MatchesID reports whether the given identifier, compared as a string,
// addresses this transaction by row id, order code, or legacy numeric id.
func (t Transaction) MatchesID(id string) bool {
	if id == "" {
		return false
	}
	if t.ID.String() == id || t.OrderCode == id {
		return true
	}
	if t.LegacyID != nil && formatLegacyID(*t.LegacyID) == id {
		return true
	}
	return false
}
