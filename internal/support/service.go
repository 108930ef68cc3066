package support

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/credenza-market/credenza-backend/internal/ledger"
	"github.com/credenza-market/credenza-backend/internal/products"
	"github.com/credenza-market/credenza-backend/internal/stock"
	"github.com/credenza-market/credenza-backend/pkg/db/models"
	"github.com/credenza-market/credenza-backend/pkg/enums"
	pkgerrors "github.com/credenza-market/credenza-backend/pkg/errors"
	"github.com/credenza-market/credenza-backend/pkg/money"
	"github.com/credenza-market/credenza-backend/pkg/outbox"
)

// Detail keys written into the transaction's details document as a ticket
// moves through the workflow.
const (
	detailReason      = "supportReason"
	detailProposed    = "proposedPayload"
	detailReplacedAt  = "replacementAppliedAt"
	detailRefundDays  = "daysRemaining"
	detailRefundTotal = "totalDays"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// RefundResult reports a processed refund: the purchase row it settled and
// the credit entry written for the buyer.
type RefundResult struct {
	Transaction *models.Transaction
	CreditEntry *models.Transaction
	Amount      decimal.Decimal
}

// Service runs the support workflow over purchase transactions. A completed
// purchase can enter support and leave it resolved, replaced, or refunded;
// refunds are proportional to the unused days of the subscription.
type Service interface {
	OpenTicket(ctx context.Context, buyerID uuid.UUID, identifier, reason string) (*models.Transaction, error)
	Resolve(ctx context.Context, providerID uuid.UUID, identifier string) (*models.Transaction, error)
	ProposeReplacement(ctx context.Context, providerID uuid.UUID, identifier string, payload json.RawMessage) (*models.Transaction, error)
	AcceptReplacement(ctx context.Context, buyerID uuid.UUID, identifier string) (*models.Transaction, error)
	Refund(ctx context.Context, buyerID uuid.UUID, identifier string) (*RefundResult, error)
	ProviderRefund(ctx context.Context, providerID uuid.UUID, identifier string) (*RefundResult, error)
	ListOpenByProvider(ctx context.Context, providerID uuid.UUID) ([]models.Transaction, error)
}

type service struct {
	tx          txRunner
	repo        Repository
	ledgerRepo  ledger.Repository
	ledgerSvc   ledger.Service
	productRepo products.Repository
	stockRepo   stock.Repository
	stockSvc    stock.Service
	outbox      outboxEmitter
	now         func() time.Time
}

// NewService wires the support workflow.
func NewService(
	tx txRunner,
	repo Repository,
	ledgerRepo ledger.Repository,
	ledgerSvc ledger.Service,
	productRepo products.Repository,
	stockRepo stock.Repository,
	stockSvc stock.Service,
	ob outboxEmitter,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("support repository required")
	}
	if ledgerRepo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if productRepo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if stockRepo == nil {
		return nil, fmt.Errorf("stock repository required")
	}
	if stockSvc == nil {
		return nil, fmt.Errorf("stock service required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		tx:          tx,
		repo:        repo,
		ledgerRepo:  ledgerRepo,
		ledgerSvc:   ledgerSvc,
		productRepo: productRepo,
		stockRepo:   stockRepo,
		stockSvc:    stockSvc,
		outbox:      ob,
		now:         time.Now,
	}, nil
}

func (s *service) OpenTicket(ctx context.Context, buyerID uuid.UUID, identifier, reason string) (*models.Transaction, error) {
	var row *models.Transaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.buyerPurchase(ctx, tx, buyerID, identifier)
		if err != nil {
			return err
		}
		if err := requireStatus(txn, enums.TransactionStatusCompleted); err != nil {
			return err
		}

		txn.Status = enums.TransactionStatusSupport
		if err := setDetail(txn, detailReason, reason); err != nil {
			return err
		}
		if err := s.ledgerSvc.UpdateEntry(ctx, tx, txn); err != nil {
			return err
		}
		row = txn
		return s.emitUpdated(ctx, tx, txn.ID)
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// Resolve closes a ticket with no compensation: the purchase goes back to
// completed.
func (s *service) Resolve(ctx context.Context, providerID uuid.UUID, identifier string) (*models.Transaction, error) {
	var row *models.Transaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.providerPurchase(ctx, tx, providerID, identifier)
		if err != nil {
			return err
		}
		if err := requireStatus(txn, enums.TransactionStatusSupport); err != nil {
			return err
		}

		txn.Status = enums.TransactionStatusCompleted
		if err := s.ledgerSvc.UpdateEntry(ctx, tx, txn); err != nil {
			return err
		}
		row = txn
		return s.emitUpdated(ctx, tx, txn.ID)
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// ProposeReplacement stores a replacement credential payload on the ticket
// and parks it until the buyer accepts.
func (s *service) ProposeReplacement(ctx context.Context, providerID uuid.UUID, identifier string, payload json.RawMessage) (*models.Transaction, error) {
	if len(payload) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "replacement payload is required")
	}
	if !json.Valid(payload) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "replacement payload must be valid JSON")
	}

	var row *models.Transaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.providerPurchase(ctx, tx, providerID, identifier)
		if err != nil {
			return err
		}
		if err := requireStatus(txn, enums.TransactionStatusSupport); err != nil {
			return err
		}

		txn.Status = enums.TransactionStatusAwaitingApproval
		if err := setDetail(txn, detailProposed, json.RawMessage(payload)); err != nil {
			return err
		}
		if err := s.ledgerSvc.UpdateEntry(ctx, tx, txn); err != nil {
			return err
		}
		row = txn
		return s.emitUpdated(ctx, tx, txn.ID)
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// AcceptReplacement applies the proposed payload to the purchased credential
// units and completes the ticket.
func (s *service) AcceptReplacement(ctx context.Context, buyerID uuid.UUID, identifier string) (*models.Transaction, error) {
	var row *models.Transaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.buyerPurchase(ctx, tx, buyerID, identifier)
		if err != nil {
			return err
		}
		if err := requireStatus(txn, enums.TransactionStatusAwaitingApproval); err != nil {
			return err
		}

		proposed, err := getDetail(txn, detailProposed)
		if err != nil {
			return err
		}
		if len(proposed) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "ticket has no proposed replacement")
		}

		stockRepo := s.stockRepo.WithTx(tx)
		recordIDs, err := parseRecordIDs(txn.StockRecordIDs)
		if err != nil {
			return err
		}
		records, err := stockRepo.ListByIDs(ctx, recordIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load credential units")
		}
		for i := range records {
			records[i].Payload = proposed
			if err := stockRepo.Save(ctx, &records[i]); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to apply replacement payload")
			}
		}

		txn.Status = enums.TransactionStatusCompleted
		if err := setDetail(txn, detailReplacedAt, s.now().UTC()); err != nil {
			return err
		}
		if err := s.ledgerSvc.UpdateEntry(ctx, tx, txn); err != nil {
			return err
		}
		row = txn
		return s.emitUpdated(ctx, tx, txn.ID)
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// Refund settles a ticket by crediting the buyer the unused share of the
// purchase. The provider keeps the sale proceeds on this path.
func (s *service) Refund(ctx context.Context, buyerID uuid.UUID, identifier string) (*RefundResult, error) {
	var result *RefundResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.buyerPurchase(ctx, tx, buyerID, identifier)
		if err != nil {
			return err
		}
		result, err = s.refund(ctx, tx, txn, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ProviderRefund is the symmetric variant: the provider funds the refund, so
// their balance is debited by the same amount the buyer receives.
func (s *service) ProviderRefund(ctx context.Context, providerID uuid.UUID, identifier string) (*RefundResult, error) {
	var result *RefundResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.providerPurchase(ctx, tx, providerID, identifier)
		if err != nil {
			return err
		}
		result, err = s.refund(ctx, tx, txn, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) ListOpenByProvider(ctx context.Context, providerID uuid.UUID) ([]models.Transaction, error) {
	return s.repo.ListByProvider(ctx, providerID, enums.TransactionStatusSupport)
}

func (s *service) refund(ctx context.Context, tx *gorm.DB, txn *models.Transaction, debitProvider bool) (*RefundResult, error) {
	if err := requireStatus(txn, enums.TransactionStatusSupport); err != nil {
		return nil, err
	}

	product, err := s.productRepo.WithTx(tx).GetByID(ctx, txn.ProductID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load product")
	}
	if product == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product no longer exists")
	}

	totalDays, err := products.DurationDays(product.DurationLabel)
	if err != nil {
		return nil, err
	}
	daysRemaining := remainingDays(totalDays, txn.CreatedAt, s.now())
	amount := money.Round(txn.Amount.
		Mul(decimal.NewFromInt(int64(daysRemaining))).
		Div(decimal.NewFromInt(int64(totalDays))))
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nothing to refund").
			WithDetails(map[string]any{detailRefundTotal: totalDays, detailRefundDays: daysRemaining})
	}

	details, err := json.Marshal(map[string]any{
		"sourceTransactionId": txn.ID,
		detailRefundTotal:     totalDays,
		detailRefundDays:      daysRemaining,
	})
	if err != nil {
		return nil, err
	}
	credit, err := s.ledgerSvc.Credit(ctx, tx, ledger.EntryInput{
		UserID:                    txn.UserID,
		Kind:                      enums.TransactionKindRefund,
		Status:                    enums.TransactionStatusCompleted,
		Amount:                    amount,
		Details:                   details,
		ProviderID:                txn.ProviderID,
		ProductID:                 txn.ProductID,
		CounterpartyTransactionID: &txn.ID,
	})
	if err != nil {
		return nil, err
	}

	if debitProvider {
		if _, err := s.ledgerSvc.Debit(ctx, tx, ledger.EntryInput{
			UserID:                    txn.ProviderID,
			Kind:                      enums.TransactionKindRefund,
			Status:                    enums.TransactionStatusCompleted,
			Amount:                    amount,
			Details:                   details,
			ProviderID:                txn.ProviderID,
			ProductID:                 txn.ProductID,
			CounterpartyTransactionID: &txn.ID,
		}); err != nil {
			return nil, err
		}
	}

	recordIDs, err := parseRecordIDs(txn.StockRecordIDs)
	if err != nil {
		return nil, err
	}
	if len(recordIDs) > 0 {
		if err := s.stockSvc.Restore(ctx, tx, recordIDs); err != nil {
			return nil, err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventProductsUpdated,
			AggregateType: enums.AggregateProduct,
			AggregateID:   txn.ProductID,
		}); err != nil {
			return nil, err
		}
	}

	txn.Status = enums.TransactionStatusRefunded
	if err := s.ledgerSvc.UpdateEntry(ctx, tx, txn); err != nil {
		return nil, err
	}
	if err := s.emitUpdated(ctx, tx, txn.ID); err != nil {
		return nil, err
	}
	return &RefundResult{Transaction: txn, CreditEntry: credit, Amount: amount}, nil
}

func (s *service) emitUpdated(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventTransactionsUpdated,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   id,
	})
}

func (s *service) buyerPurchase(ctx context.Context, tx *gorm.DB, buyerID uuid.UUID, identifier string) (*models.Transaction, error) {
	txn, err := s.ledgerRepo.WithTx(tx).FindByUserAndIdentifier(ctx, buyerID, identifier)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to look up purchase")
	}
	return checkPurchase(txn)
}

func (s *service) providerPurchase(ctx context.Context, tx *gorm.DB, providerID uuid.UUID, identifier string) (*models.Transaction, error) {
	txn, err := s.repo.WithTx(tx).FindPurchaseByProvider(ctx, providerID, identifier)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to look up purchase")
	}
	return checkPurchase(txn)
}

func checkPurchase(txn *models.Transaction) (*models.Transaction, error) {
	if txn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "purchase not found")
	}
	if txn.Direction != enums.TransactionDirectionDebit ||
		(txn.Kind != enums.TransactionKindPurchase && txn.Kind != enums.TransactionKindRenewal) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction is not a purchase")
	}
	return txn, nil
}

func requireStatus(txn *models.Transaction, want enums.TransactionStatus) error {
	if txn.Status == want {
		return nil
	}
	if txn.Status == enums.TransactionStatusRefunded {
		return pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "purchase already refunded")
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "purchase is not in the required state").
		WithDetails(map[string]any{"status": txn.Status})
}

// remainingDays floors the elapsed time to whole days and clamps at zero.
func remainingDays(totalDays int, purchasedAt, now time.Time) int {
	used := int(now.Sub(purchasedAt).Hours() / 24)
	if used < 0 {
		used = 0
	}
	remaining := totalDays - used
	if remaining < 0 {
		return 0
	}
	return remaining
}

func parseRecordIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, value := range raw {
		id, err := uuid.Parse(value)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "corrupt stock record reference")
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// setDetail merges one key into the transaction's details document.
func setDetail(txn *models.Transaction, key string, value any) error {
	doc := map[string]json.RawMessage{}
	if len(txn.Details) > 0 {
		if err := json.Unmarshal(txn.Details, &doc); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "corrupt transaction details")
		}
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	doc[key] = encoded
	merged, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	txn.Details = merged
	return nil
}

func getDetail(txn *models.Transaction, key string) (json.RawMessage, error) {
	if len(txn.Details) == 0 {
		return nil, nil
	}
	doc := map[string]json.RawMessage{}
	if err := json.Unmarshal(txn.Details, &doc); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "corrupt transaction details")
	}
	return doc[key], nil
}
