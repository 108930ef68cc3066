package referrals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/credenza-market/credenza-backend/internal/ledger"
	"github.com/credenza-market/credenza-backend/pkg/db/models"
	"github.com/credenza-market/credenza-backend/pkg/enums"
	pkgerrors "github.com/credenza-market/credenza-backend/pkg/errors"
	"github.com/credenza-market/credenza-backend/pkg/money"
	"github.com/credenza-market/credenza-backend/pkg/outbox"
)

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the commission engine. It watches recharge completions and pays
// the referrer exactly once: on the referred user's first completed credit.
type Service interface {
	OnCreditCompleted(ctx context.Context, tx *gorm.DB, credited *models.Transaction) (*models.Transaction, error)
}

type service struct {
	ledgerRepo ledger.Repository
	ledgerSvc  ledger.Service
	outbox     outboxEmitter
}

// NewService wires the commission engine.
func NewService(ledgerRepo ledger.Repository, ledgerSvc ledger.Service, ob outboxEmitter) (Service, error) {
	if ledgerRepo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{ledgerRepo: ledgerRepo, ledgerSvc: ledgerSvc, outbox: ob}, nil
}

// CommissionRate returns the referrer's cut of a referred user's first
// completed recharge.
func CommissionRate(role enums.UserRole) decimal.Decimal {
	switch role {
	case enums.UserRoleDistributorPremium:
		return decimal.RequireFromString("0.15")
	case enums.UserRoleDistributor, enums.UserRoleProvider:
		return decimal.RequireFromString("0.10")
	default:
		return decimal.Zero
	}
}

// OnCreditCompleted runs inside the transaction that flipped the credited row
// to completed. Returns the commission row when one was paid, nil otherwise.
func (s *service) OnCreditCompleted(ctx context.Context, tx *gorm.DB, credited *models.Transaction) (*models.Transaction, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if credited == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "credited transaction is required")
	}
	if credited.Direction != enums.TransactionDirectionCredit ||
		credited.Status != enums.TransactionStatusCompleted {
		return nil, nil
	}

	repo := s.ledgerRepo.WithTx(tx)

	// Any earlier completed credit means this is not the first recharge.
	prior, err := repo.HasCompletedCredit(ctx, credited.UserID, credited.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to scan for prior credits")
	}
	if prior {
		return nil, nil
	}

	buyer, err := repo.GetUser(ctx, credited.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load referred user")
	}
	if buyer == nil || buyer.ReferredBy == nil {
		return nil, nil
	}

	referrer, err := repo.GetUser(ctx, *buyer.ReferredBy)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load referrer")
	}
	if referrer == nil {
		return nil, nil
	}

	rate := CommissionRate(referrer.Role)
	commission := money.Round(credited.Amount.Mul(rate))
	if !commission.IsPositive() {
		return nil, nil
	}

	details, err := json.Marshal(map[string]any{
		"referredUserId":      buyer.ID,
		"sourceTransactionId": credited.ID,
		"rate":                rate,
	})
	if err != nil {
		return nil, err
	}

	row, err := s.ledgerSvc.Credit(ctx, tx, ledger.EntryInput{
		UserID:                    referrer.ID,
		Kind:                      enums.TransactionKindCommission,
		Amount:                    commission,
		Details:                   details,
		CounterpartyTransactionID: &credited.ID,
	})
	if err != nil {
		return nil, err
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventTransactionsUpdated,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   row.ID,
	}); err != nil {
		return nil, err
	}
	return row, nil
}
