package support

import (
	"github.com/shopspring/decimal"

	"github.com/credenza-market/credenza-backend/internal/ledger"
)

// RefundResultDTO describes a settled refund: the closed ticket and the
// buyer's credit entry.
type RefundResultDTO struct {
	Transaction *ledger.TransactionDTO `json:"transaction"`
	CreditEntry *ledger.TransactionDTO `json:"credit_entry"`
	Amount      decimal.Decimal        `json:"amount"`
}

func ResultFromModel(result *RefundResult) *RefundResultDTO {
	if result == nil {
		return nil
	}
	return &RefundResultDTO{
		Transaction: ledger.TransactionFromModel(result.Transaction),
		CreditEntry: ledger.TransactionFromModel(result.CreditEntry),
		Amount:      result.Amount,
	}
}
