package enums

import "fmt"

// TransactionStatus maps to the transaction_status enum in Postgres.
type TransactionStatus string

const (
	TransactionStatusPending          TransactionStatus = "pending"
	TransactionStatusCompleted        TransactionStatus = "completed"
	TransactionStatusRejected         TransactionStatus = "rejected"
	TransactionStatusCancelled        TransactionStatus = "cancelled"
	TransactionStatusSupport          TransactionStatus = "support"
	TransactionStatusAwaitingApproval TransactionStatus = "awaiting_approval"
	TransactionStatusRefunded         TransactionStatus = "refunded"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusPending,
	TransactionStatusCompleted,
	TransactionStatusRejected,
	TransactionStatusCancelled,
	TransactionStatusSupport,
	TransactionStatusAwaitingApproval,
	TransactionStatusRefunded,
}

// IsValid reports whether the value matches the canonical transaction status enum.
func (s TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed outside the
// support loop.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusRejected || s == TransactionStatusCancelled || s == TransactionStatusRefunded
}

// ParseTransactionStatus converts raw input into a TransactionStatus.
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	for _, candidate := range validTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction status %q", value)
}
