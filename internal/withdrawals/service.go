package withdrawals

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/credenza-market/credenza-backend/internal/ledger"
	"github.com/credenza-market/credenza-backend/pkg/db/models"
	"github.com/credenza-market/credenza-backend/pkg/enums"
	pkgerrors "github.com/credenza-market/credenza-backend/pkg/errors"
	"github.com/credenza-market/credenza-backend/pkg/money"
	"github.com/credenza-market/credenza-backend/pkg/outbox"
)

// Payout methods accepted by the platform.
const (
	MethodYape    = "yape"
	MethodBinance = "binance"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// platformSettings is the slice of the settings service the payout flow needs.
type platformSettings interface {
	WithdrawalFeeRate(ctx context.Context) decimal.Decimal
	YapeMinWithdrawal(ctx context.Context) decimal.Decimal
	BinanceMinWithdrawal(ctx context.Context) decimal.Decimal
}

// Service runs the withdrawal workflow. The gross amount is held (debited from
// the balance) when the request is created; the ledger entry appears only once
// the request is approved or rejected.
type Service interface {
	Request(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, method string) (*models.WithdrawalRequest, error)
	Approve(ctx context.Context, requestID uuid.UUID) (*models.WithdrawalRequest, error)
	Reject(ctx context.Context, requestID uuid.UUID) (*models.WithdrawalRequest, error)
	Cancel(ctx context.Context, userID, requestID uuid.UUID) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.WithdrawalRequest, error)
	ListPending(ctx context.Context) ([]models.WithdrawalRequest, error)
}

type service struct {
	tx        txRunner
	repo      Repository
	ledgerSvc ledger.Service
	settings  platformSettings
	outbox    outboxEmitter
}

// NewService wires the withdrawal workflow.
func NewService(tx txRunner, repo Repository, ledgerSvc ledger.Service, settings platformSettings, ob outboxEmitter) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("withdrawal repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if settings == nil {
		return nil, fmt.Errorf("settings service required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{tx: tx, repo: repo, ledgerSvc: ledgerSvc, settings: settings, outbox: ob}, nil
}

func (s *service) Request(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, method string) (*models.WithdrawalRequest, error) {
	if !money.IsPositive(amount) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	amount = money.Round(amount)

	minimum, err := s.methodMinimum(ctx, method)
	if err != nil {
		return nil, err
	}
	if amount.LessThan(minimum) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount is below the method minimum").
			WithDetails(map[string]any{"method": method, "minimum": minimum.String()})
	}

	fee := money.RoundFee(amount.Mul(s.settings.WithdrawalFeeRate(ctx)))
	net := money.Round(amount.Sub(fee))

	var request *models.WithdrawalRequest
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		pending, err := repo.HasPending(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to check pending withdrawals")
		}
		if pending {
			return pkgerrors.New(pkgerrors.CodeDuplicateRequest, "a pending withdrawal already exists")
		}

		// Hold the gross amount. No ledger entry yet: the row only appears
		// when the request is resolved.
		if _, err := s.ledgerSvc.ApplyBalanceChange(ctx, tx, userID, amount.Neg()); err != nil {
			return err
		}

		request = &models.WithdrawalRequest{
			ID:        uuid.New(),
			UserID:    userID,
			Amount:    amount,
			Fee:       fee,
			NetAmount: net,
			Method:    method,
			Status:    enums.WithdrawalStatusPending,
		}
		if err := repo.Create(ctx, request); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to create withdrawal request")
		}
		return s.emitUpdated(ctx, tx, request.ID)
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// Approve writes the net debit entry. The gross hold is kept as-is, so the
// fee is absorbed without a ledger row of its own.
func (s *service) Approve(ctx context.Context, requestID uuid.UUID) (*models.WithdrawalRequest, error) {
	var request *models.WithdrawalRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		loaded, err := s.resolvePending(ctx, tx, requestID)
		if err != nil {
			return err
		}

		details, err := json.Marshal(map[string]any{
			"requestId": loaded.ID,
			"method":    loaded.Method,
			"gross":     loaded.Amount,
			"fee":       loaded.Fee,
		})
		if err != nil {
			return err
		}
		if _, err := s.ledgerSvc.Append(ctx, tx, ledger.EntryInput{
			UserID:    loaded.UserID,
			Direction: enums.TransactionDirectionDebit,
			Kind:      enums.TransactionKindWithdrawal,
			Status:    enums.TransactionStatusCompleted,
			Amount:    loaded.NetAmount,
			Details:   details,
		}); err != nil {
			return err
		}

		loaded.Status = enums.WithdrawalStatusApproved
		if err := s.repo.WithTx(tx).Save(ctx, loaded); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to update withdrawal request")
		}
		request = loaded
		return s.emitUpdated(ctx, tx, loaded.ID)
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// Reject releases the hold: the gross amount goes back to the balance and a
// credit entry records the reversal.
func (s *service) Reject(ctx context.Context, requestID uuid.UUID) (*models.WithdrawalRequest, error) {
	var request *models.WithdrawalRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		loaded, err := s.resolvePending(ctx, tx, requestID)
		if err != nil {
			return err
		}

		details, err := json.Marshal(map[string]any{
			"requestId": loaded.ID,
			"method":    loaded.Method,
			"reversal":  true,
		})
		if err != nil {
			return err
		}
		if _, err := s.ledgerSvc.Credit(ctx, tx, ledger.EntryInput{
			UserID:  loaded.UserID,
			Kind:    enums.TransactionKindWithdrawal,
			Status:  enums.TransactionStatusCompleted,
			Amount:  loaded.Amount,
			Details: details,
		}); err != nil {
			return err
		}

		loaded.Status = enums.WithdrawalStatusRejected
		if err := s.repo.WithTx(tx).Save(ctx, loaded); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to update withdrawal request")
		}
		request = loaded
		return s.emitUpdated(ctx, tx, loaded.ID)
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// Cancel lets the owner withdraw a still-pending request. The hold goes back
// and the request row is removed; no ledger entry is written.
func (s *service) Cancel(ctx context.Context, userID, requestID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		loaded, err := s.resolvePending(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if loaded.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "withdrawal belongs to another user")
		}

		if _, err := s.ledgerSvc.ApplyBalanceChange(ctx, tx, loaded.UserID, loaded.Amount); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).Delete(ctx, loaded.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to delete withdrawal request")
		}
		return s.emitUpdated(ctx, tx, loaded.ID)
	})
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.WithdrawalRequest, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *service) ListPending(ctx context.Context) ([]models.WithdrawalRequest, error) {
	return s.repo.ListPending(ctx)
}

func (s *service) methodMinimum(ctx context.Context, method string) (decimal.Decimal, error) {
	switch method {
	case MethodYape:
		return s.settings.YapeMinWithdrawal(ctx), nil
	case MethodBinance:
		return s.settings.BinanceMinWithdrawal(ctx), nil
	default:
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "unknown withdrawal method").
			WithDetails(map[string]any{"method": method})
	}
}

func (s *service) resolvePending(ctx context.Context, tx *gorm.DB, requestID uuid.UUID) (*models.WithdrawalRequest, error) {
	loaded, err := s.repo.WithTx(tx).GetByID(ctx, requestID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load withdrawal request")
	}
	if loaded == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal request not found")
	}
	if loaded.Status != enums.WithdrawalStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "withdrawal request already processed")
	}
	return loaded, nil
}

func (s *service) emitUpdated(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventWithdrawalsUpdated,
		AggregateType: enums.AggregateWithdrawal,
		AggregateID:   id,
	})
}
