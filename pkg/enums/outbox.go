package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateUser        OutboxAggregateType = "user"
	AggregateProduct     OutboxAggregateType = "product"
	AggregateStockRecord OutboxAggregateType = "stock_record"
	AggregateTransaction OutboxAggregateType = "transaction"
	AggregateWithdrawal  OutboxAggregateType = "withdrawal"
	AggregateOrder       OutboxAggregateType = "order"
	AggregateSetting     OutboxAggregateType = "setting"
	AggregateCategory    OutboxAggregateType = "category"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateUser,
	AggregateProduct,
	AggregateStockRecord,
	AggregateTransaction,
	AggregateWithdrawal,
	AggregateOrder,
	AggregateSetting,
	AggregateCategory,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres. Names match the
// channel names presentation clients subscribe to.
type OutboxEventType string

const (
	EventProductsUpdated      OutboxEventType = "productsUpdated"
	EventUsersUpdated         OutboxEventType = "usersUpdated"
	EventTransactionsUpdated  OutboxEventType = "transactionsUpdated"
	EventWithdrawalsUpdated   OutboxEventType = "withdrawalsUpdated"
	EventPendingUsersUpdated  OutboxEventType = "pendingUsersUpdated"
	EventSettingsUpdated      OutboxEventType = "settingsUpdated"
	EventCategoriesUpdated    OutboxEventType = "categoriesUpdated"
	EventOrdersUpdated        OutboxEventType = "ordersUpdated"
	EventTransactionApproved  OutboxEventType = "transactionApproved"
	EventApplicationResult    OutboxEventType = "applicationResult"
	EventUserBanStatusUpdated OutboxEventType = "userBanStatusUpdate"
)

var validOutboxEventTypes = []OutboxEventType{
	EventProductsUpdated,
	EventUsersUpdated,
	EventTransactionsUpdated,
	EventWithdrawalsUpdated,
	EventPendingUsersUpdated,
	EventSettingsUpdated,
	EventCategoriesUpdated,
	EventOrdersUpdated,
	EventTransactionApproved,
	EventApplicationResult,
	EventUserBanStatusUpdated,
}

// IsTargeted reports whether the event is addressed to a single user rather
// than broadcast.
func (e OutboxEventType) IsTargeted() bool {
	switch e {
	case EventTransactionApproved, EventApplicationResult, EventUserBanStatusUpdated:
		return true
	default:
		return false
	}
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
