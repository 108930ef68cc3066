package enums

import "fmt"

// TransactionKind classifies what a ledger entry records.
type TransactionKind string

const (
	TransactionKindPurchase          TransactionKind = "purchase"
	TransactionKindRenewal           TransactionKind = "renewal"
	TransactionKindRecharge          TransactionKind = "recharge"
	TransactionKindSale              TransactionKind = "sale"
	TransactionKindCommission        TransactionKind = "commission"
	TransactionKindRefund            TransactionKind = "refund"
	TransactionKindWithdrawal        TransactionKind = "withdrawal"
	TransactionKindPremiumUpgrade    TransactionKind = "premium_upgrade"
	TransactionKindSupportCorrection TransactionKind = "support_correction"
)

var validTransactionKinds = []TransactionKind{
	TransactionKindPurchase,
	TransactionKindRenewal,
	TransactionKindRecharge,
	TransactionKindSale,
	TransactionKindCommission,
	TransactionKindRefund,
	TransactionKindWithdrawal,
	TransactionKindPremiumUpgrade,
	TransactionKindSupportCorrection,
}

// IsValid reports whether the value is a known TransactionKind.
func (k TransactionKind) IsValid() bool {
	for _, candidate := range validTransactionKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseTransactionKind converts raw input into a TransactionKind.
func ParseTransactionKind(value string) (TransactionKind, error) {
	for _, candidate := range validTransactionKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction kind %q", value)
}
