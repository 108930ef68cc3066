package purchases

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
	"github.com/credenza-market/credenza-backend/internal/referrals"
	"github.com/credenza-market/credenza-backend/internal/stock"
	"github.com/credenza-market/credenza-backend/pkg/db/models"
	"github.com/credenza-market/credenza-backend/pkg/enums"
	pkgerrors "github.com/credenza-market/credenza-backend/pkg/errors"
	"github.com/credenza-market/credenza-backend/pkg/money"
	"github.com/credenza-market/credenza-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// PurchaseInput describes a buy request.
type PurchaseInput struct {
	BuyerID   uuid.UUID
	ProductID uuid.UUID
	Quantity  int
	Renewal   bool
}

// PurchaseResult carries what the buyer receives: their debit entry and the
// allocated credential units (empty for made-to-order products).
type PurchaseResult struct {
	Transaction *models.Transaction
	Units       []stock.AllocatedUnit
	Order       *models.Order
	Total       decimal.Decimal
}

// Service orchestrates purchases, renewals, and the recharge workflow. Both
// sides of every money movement run inside a single database transaction.
type Service interface {
	Purchase(ctx context.Context, input PurchaseInput) (*PurchaseResult, error)
	RequestRecharge(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, method string) (*models.Transaction, error)
	ApproveRecharge(ctx context.Context, userID uuid.UUID, transactionID string) (*models.Transaction, error)
	RejectRecharge(ctx context.Context, userID uuid.UUID, transactionID string) (*models.Transaction, error)
	ListOrdersByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Order, error)
	ListOrdersByProvider(ctx context.Context, providerID uuid.UUID) ([]models.Order, error)
	MarkOrderDelivered(ctx context.Context, providerID, orderID uuid.UUID) (*models.Order, error)
	CancelOrder(ctx context.Context, providerID, orderID uuid.UUID) (*models.Order, error)
}

type service struct {
	tx          txRunner
	productRepo products.Repository
	stockSvc    stock.Service
	ledgerRepo  ledger.Repository
	ledgerSvc   ledger.Service
	commissions referrals.Service
	ordersRepo  OrdersRepository
	outbox      outboxEmitter
}

// NewService wires the purchase orchestrator.
func NewService(
	tx txRunner,
	productRepo products.Repository,
	stockSvc stock.Service,
	ledgerRepo ledger.Repository,
	ledgerSvc ledger.Service,
	commissions referrals.Service,
	ordersRepo OrdersRepository,
	ob outboxEmitter,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if productRepo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if stockSvc == nil {
		return nil, fmt.Errorf("stock service required")
	}
	if ledgerRepo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if commissions == nil {
		return nil, fmt.Errorf("commission service required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		tx:          tx,
		productRepo: productRepo,
		stockSvc:    stockSvc,
		ledgerRepo:  ledgerRepo,
		ledgerSvc:   ledgerSvc,
		commissions: commissions,
		ordersRepo:  ordersRepo,
		outbox:      ob,
	}, nil
}

func (s *service) Purchase(ctx context.Context, input PurchaseInput) (*PurchaseResult, error) {
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	var result *PurchaseResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ledgerRepo := s.ledgerRepo.WithTx(tx)

		buyer, err := ledgerRepo.GetUser(ctx, input.BuyerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load buyer")
		}
		if buyer == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "buyer not found")
		}
		if buyer.Banned {
			return pkgerrors.New(pkgerrors.CodeForbidden, "account is banned")
		}
		if !buyer.Approved {
			return pkgerrors.New(pkgerrors.CodeForbidden, "account is pending approval")
		}

		product, err := s.productRepo.WithTx(tx).GetByID(ctx, input.ProductID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load product")
		}
		if product == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		if !product.IsListed(time.Now()) {
			return pkgerrors.New(pkgerrors.CodeValidation, "product is not published")
		}
		if product.ProviderID == buyer.ID {
			return pkgerrors.New(pkgerrors.CodeValidation, "providers cannot buy their own products")
		}

		unitPrice := products.UnitPrice(product, buyer, input.Renewal)
		total := money.Round(unitPrice.Mul(decimal.NewFromInt(int64(input.Quantity))))

		var units []stock.AllocatedUnit
		var recordIDs []string
		if product.DeliveryMode == enums.DeliveryModeStock {
			units, err = s.stockSvc.Allocate(ctx, tx, stock.AllocateInput{
				ProductID: product.ID,
				BuyerID:   buyer.ID,
				Quantity:  input.Quantity,
				UnitPrice: unitPrice,
			})
			if err != nil {
				return err
			}
			for _, unit := range units {
				recordIDs = append(recordIDs, unit.RecordID.String())
			}
		}

		kind := enums.TransactionKindPurchase
		if input.Renewal {
			kind = enums.TransactionKindRenewal
		}

		buyerDetails, err := json.Marshal(map[string]any{
			"productName": product.Name,
			"quantity":    input.Quantity,
			"unitPrice":   unitPrice,
			"renewal":     input.Renewal,
		})
		if err != nil {
			return err
		}

		debit, err := s.ledgerSvc.Debit(ctx, tx, ledger.EntryInput{
			UserID:         buyer.ID,
			Kind:           kind,
			Amount:         total,
			Details:        buyerDetails,
			ProviderID:     product.ProviderID,
			ProductID:      product.ID,
			StockRecordIDs: recordIDs,
		})
		if err != nil {
			return err
		}

		providerDetails, err := json.Marshal(map[string]any{
			"productName": product.Name,
			"quantity":    input.Quantity,
			"buyerId":     buyer.ID,
		})
		if err != nil {
			return err
		}

		credit, err := s.ledgerSvc.Credit(ctx, tx, ledger.EntryInput{
			UserID:                    product.ProviderID,
			Kind:                      enums.TransactionKindSale,
			Amount:                    total,
			Details:                   providerDetails,
			ProviderID:                product.ProviderID,
			ProductID:                 product.ID,
			StockRecordIDs:            recordIDs,
			CounterpartyTransactionID: &debit.ID,
		})
		if err != nil {
			return err
		}

		// Close the pair: the buyer row points back at the sale row.
		debit.CounterpartyTransactionID = &credit.ID
		if err := s.ledgerSvc.UpdateEntry(ctx, tx, debit); err != nil {
			return err
		}

		var order *models.Order
		if product.DeliveryMode == enums.DeliveryModeOnRequest {
			order = &models.Order{
				ID:            uuid.New(),
				TransactionID: debit.ID,
				BuyerID:       buyer.ID,
				ProviderID:    product.ProviderID,
				ProductID:     product.ID,
				Quantity:      input.Quantity,
				Status:        enums.OrderStatusPending,
			}
			if err := s.ordersRepo.WithTx(tx).Create(ctx, order); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to create order")
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrdersUpdated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
			}); err != nil {
				return err
			}
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventProductsUpdated,
			AggregateType: enums.AggregateProduct,
			AggregateID:   product.ID,
		}); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTransactionsUpdated,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   debit.ID,
		}); err != nil {
			return err
		}

		result = &PurchaseResult{Transaction: debit, Units: units, Order: order, Total: total}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RequestRecharge records a pending credit. No balance moves until an admin
// approves it.
func (s *service) RequestRecharge(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, method string) (*models.Transaction, error) {
	if !money.IsPositive(amount) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	details, err := json.Marshal(map[string]string{"method": method})
	if err != nil {
		return nil, err
	}

	var row *models.Transaction
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		row, err = s.ledgerSvc.Append(ctx, tx, ledger.EntryInput{
			UserID:    userID,
			Direction: enums.TransactionDirectionCredit,
			Kind:      enums.TransactionKindRecharge,
			Status:    enums.TransactionStatusPending,
			Amount:    amount,
			Details:   details,
		})
		if err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTransactionsUpdated,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   row.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// ApproveRecharge flips a pending credit to completed, applies the balance,
// and lets the commission engine inspect the buyer's referrer.
func (s *service) ApproveRecharge(ctx context.Context, userID uuid.UUID, transactionID string) (*models.Transaction, error) {
	var row *models.Transaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.resolvePendingCredit(ctx, tx, userID, transactionID)
		if err != nil {
			return err
		}

		if _, err := s.ledgerSvc.ApplyBalanceChange(ctx, tx, txn.UserID, txn.Amount); err != nil {
			return err
		}
		txn.Status = enums.TransactionStatusCompleted
		if err := s.ledgerSvc.UpdateEntry(ctx, tx, txn); err != nil {
			return err
		}
		row = txn

		if _, err := s.commissions.OnCreditCompleted(ctx, tx, txn); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTransactionsUpdated,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   txn.ID,
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTransactionApproved,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   txn.ID,
			TargetUserID:  &txn.UserID,
			Data:          map[string]any{"amount": txn.Amount},
		})
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (s *service) RejectRecharge(ctx context.Context, userID uuid.UUID, transactionID string) (*models.Transaction, error) {
	var row *models.Transaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.resolvePendingCredit(ctx, tx, userID, transactionID)
		if err != nil {
			return err
		}
		txn.Status = enums.TransactionStatusRejected
		if err := s.ledgerSvc.UpdateEntry(ctx, tx, txn); err != nil {
			return err
		}
		row = txn
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTransactionsUpdated,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   txn.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (s *service) resolvePendingCredit(ctx context.Context, tx *gorm.DB, userID uuid.UUID, transactionID string) (*models.Transaction, error) {
	txn, err := s.ledgerRepo.WithTx(tx).FindByUserAndIdentifier(ctx, userID, transactionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to look up transaction")
	}
	if txn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	if txn.Direction != enums.TransactionDirectionCredit {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction is not a credit")
	}
	if txn.Status != enums.TransactionStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "transaction already processed")
	}
	return txn, nil
}

func (s *service) ListOrdersByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Order, error) {
	return s.ordersRepo.ListByBuyer(ctx, buyerID)
}

func (s *service) ListOrdersByProvider(ctx context.Context, providerID uuid.UUID) ([]models.Order, error) {
	return s.ordersRepo.ListByProvider(ctx, providerID)
}

func (s *service) MarkOrderDelivered(ctx context.Context, providerID, orderID uuid.UUID) (*models.Order, error) {
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.ordersRepo.WithTx(tx)
		loaded, err := repo.GetByID(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load order")
		}
		if loaded == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if loaded.ProviderID != providerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another provider")
		}
		if loaded.Status != enums.OrderStatusPending {
			return pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "order already processed")
		}
		loaded.Status = enums.OrderStatusDelivered
		if err := repo.Save(ctx, loaded); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to update order")
		}
		order = loaded
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrdersUpdated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// CancelOrder backs out an undeliverable made-to-order purchase: the order
// flips to cancelled and the buyer gets the full purchase amount back from
// the provider as a linked refund pair.
func (s *service) CancelOrder(ctx context.Context, providerID, orderID uuid.UUID) (*models.Order, error) {
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.ordersRepo.WithTx(tx)
		loaded, err := repo.GetByID(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load order")
		}
		if loaded == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if loaded.ProviderID != providerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another provider")
		}
		if loaded.Status != enums.OrderStatusPending {
			return pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "order already processed")
		}

		purchase, err := s.ledgerRepo.WithTx(tx).GetByID(ctx, loaded.TransactionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load purchase transaction")
		}
		if purchase == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "purchase transaction not found")
		}

		details, err := json.Marshal(map[string]any{
			"orderId": loaded.ID,
			"reason":  "order cancelled",
		})
		if err != nil {
			return err
		}

		credit, err := s.ledgerSvc.Credit(ctx, tx, ledger.EntryInput{
			UserID:     loaded.BuyerID,
			Kind:       enums.TransactionKindRefund,
			Amount:     purchase.Amount,
			Details:    details,
			ProviderID: loaded.ProviderID,
			ProductID:  loaded.ProductID,
		})
		if err != nil {
			return err
		}
		debit, err := s.ledgerSvc.Debit(ctx, tx, ledger.EntryInput{
			UserID:                    loaded.ProviderID,
			Kind:                      enums.TransactionKindRefund,
			Amount:                    purchase.Amount,
			Details:                   details,
			ProviderID:                loaded.ProviderID,
			ProductID:                 loaded.ProductID,
			CounterpartyTransactionID: &credit.ID,
		})
		if err != nil {
			return err
		}
		credit.CounterpartyTransactionID = &debit.ID
		if err := s.ledgerSvc.UpdateEntry(ctx, tx, credit); err != nil {
			return err
		}

		purchase.Status = enums.TransactionStatusRefunded
		if err := s.ledgerSvc.UpdateEntry(ctx, tx, purchase); err != nil {
			return err
		}

		loaded.Status = enums.OrderStatusCancelled
		if err := repo.Save(ctx, loaded); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to update order")
		}
		order = loaded

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTransactionsUpdated,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   credit.ID,
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrdersUpdated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}
