package ledger

import (
	"context"
	"encoding/base32"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/credenza-market/credenza-backend/pkg/db/models"
	"github.com/credenza-market/credenza-backend/pkg/enums"
	pkgerrors "github.com/credenza-market/credenza-backend/pkg/errors"
	"github.com/credenza-market/credenza-backend/pkg/money"
	"github.com/credenza-market/credenza-backend/pkg/pagination"
)

// orderCodeEncoding renders uuids as compact upper-case codes without padding.
var orderCodeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// EntryInput captures the immutable data a ledger row requires. Amount is
// always positive; Direction says which way the money moved.
type EntryInput struct {
	UserID                    uuid.UUID
	Direction                 enums.TransactionDirection
	Kind                      enums.TransactionKind
	Status                    enums.TransactionStatus
	Amount                    decimal.Decimal
	Details                   json.RawMessage
	ProviderID                uuid.UUID
	ProductID                 uuid.UUID
	StockRecordIDs            []string
	CounterpartyTransactionID *uuid.UUID
	LegacyID                  *int64
}

// Service is the ledger and balance engine. Every balance change flows
// through Credit or Debit so the user's balance column and the transaction
// row are persisted inside the same database transaction; Append alone is for
// rows that do not move money yet (pending recharges) or whose balance effect
// already happened (withdrawal holds).
type Service interface {
	Append(ctx context.Context, tx *gorm.DB, input EntryInput) (*models.Transaction, error)
	Credit(ctx context.Context, tx *gorm.DB, input EntryInput) (*models.Transaction, error)
	Debit(ctx context.Context, tx *gorm.DB, input EntryInput) (*models.Transaction, error)
	ApplyBalanceChange(ctx context.Context, tx *gorm.DB, userID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error)
	FindTransaction(ctx context.Context, userID uuid.UUID, identifier string) (*models.Transaction, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Transaction, string, error)
	UpdateEntry(ctx context.Context, tx *gorm.DB, txn *models.Transaction) error
}

type service struct {
	repo Repository
}

// NewService wires the ledger engine with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

// NewOrderCode generates the opaque order code stamped on every row at
// creation time.
func NewOrderCode() string {
	id := uuid.New()
	return "ORD-" + orderCodeEncoding.EncodeToString(id[:])
}

// SynthesizeOrderCode derives an order code for a legacy row. Deterministic
// when the numeric timestamp id survives; random otherwise.
func SynthesizeOrderCode(legacyID *int64) string {
	if legacyID != nil {
		return fmt.Sprintf("ORD-%d", *legacyID)
	}
	return NewOrderCode()
}

func (s *service) Append(ctx context.Context, tx *gorm.DB, input EntryInput) (*models.Transaction, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	txn, err := buildEntry(input)
	if err != nil {
		return nil, err
	}
	if err := s.repo.WithTx(tx).Create(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to append ledger entry")
	}
	return txn, nil
}

func (s *service) Credit(ctx context.Context, tx *gorm.DB, input EntryInput) (*models.Transaction, error) {
	if input.Direction == "" {
		input.Direction = enums.TransactionDirectionCredit
	}
	if input.Direction != enums.TransactionDirectionCredit {
		return nil, fmt.Errorf("credit entry cannot carry direction %q", input.Direction)
	}
	return s.move(ctx, tx, input, money.Round(input.Amount))
}

func (s *service) Debit(ctx context.Context, tx *gorm.DB, input EntryInput) (*models.Transaction, error) {
	if input.Direction == "" {
		input.Direction = enums.TransactionDirectionDebit
	}
	if input.Direction != enums.TransactionDirectionDebit {
		return nil, fmt.Errorf("debit entry cannot carry direction %q", input.Direction)
	}
	return s.move(ctx, tx, input, money.Round(input.Amount).Neg())
}

// move applies the balance delta and appends the row inside tx. Both writes
// land together or the surrounding transaction rolls back.
func (s *service) move(ctx context.Context, tx *gorm.DB, input EntryInput, delta decimal.Decimal) (*models.Transaction, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if !money.IsPositive(input.Amount) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if _, err := s.ApplyBalanceChange(ctx, tx, input.UserID, delta); err != nil {
		return nil, err
	}
	return s.Append(ctx, tx, input)
}

// ApplyBalanceChange applies the delta at 2-decimal precision via a guarded
// conditional UPDATE; a change that would leave the balance negative is
// rejected with the numeric shortfall.
func (s *service) ApplyBalanceChange(ctx context.Context, tx *gorm.DB, userID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	repo := s.repo.WithTx(tx)
	delta = money.Round(delta)

	applied, err := repo.AdjustBalance(ctx, userID, delta)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to apply balance change")
	}
	if applied {
		user, err := repo.GetUser(ctx, userID)
		if err != nil {
			return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to reload balance")
		}
		if user == nil {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return money.Round(user.Balance), nil
	}

	// The guard rejected the update: either the user is missing or the
	// debit exceeds the available balance.
	user, err := repo.GetUser(ctx, userID)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load user for balance change")
	}
	if user == nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	required := delta.Neg()
	return decimal.Zero, pkgerrors.New(pkgerrors.CodeInsufficientBalance, "insufficient balance").
		WithDetails(map[string]string{
			"required":  money.Round(required).String(),
			"available": money.Round(user.Balance).String(),
			"shortfall": money.Shortfall(required, user.Balance).String(),
		})
}

func (s *service) FindTransaction(ctx context.Context, userID uuid.UUID, identifier string) (*models.Transaction, error) {
	if identifier == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	txn, err := s.repo.FindByUserAndIdentifier(ctx, userID, identifier)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to look up transaction")
	}
	if txn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	return txn, nil
}

// ListByUser pages the ledger newest first and returns the cursor for the
// next page, or "" when the ledger is exhausted.
func (s *service) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Transaction, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListByUser(ctx, userID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, "", err
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, next, nil
}

func (s *service) UpdateEntry(ctx context.Context, tx *gorm.DB, txn *models.Transaction) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	return s.repo.WithTx(tx).Save(ctx, txn)
}

func buildEntry(input EntryInput) (*models.Transaction, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !input.Direction.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid direction %q", input.Direction))
	}
	if !input.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction kind %q", input.Kind))
	}
	status := input.Status
	if status == "" {
		status = enums.TransactionStatusCompleted
	}
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid status %q", status))
	}
	if !money.IsPositive(input.Amount) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	return &models.Transaction{
		ID:                        uuid.New(),
		UserID:                    input.UserID,
		OrderCode:                 NewOrderCode(),
		LegacyID:                  input.LegacyID,
		Direction:                 input.Direction,
		Kind:                      input.Kind,
		Status:                    status,
		Amount:                    money.Round(input.Amount),
		Details:                   input.Details,
		ProviderID:                input.ProviderID,
		ProductID:                 input.ProductID,
		StockRecordIDs:            input.StockRecordIDs,
		CounterpartyTransactionID: input.CounterpartyTransactionID,
	}, nil
}
