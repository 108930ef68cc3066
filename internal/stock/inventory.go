package stock

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/credenza-market/credenza-backend/internal/products"
	"github.com/credenza-market/credenza-backend/pkg/db/models"
	"github.com/credenza-market/credenza-backend/pkg/enums"
	pkgerrors "github.com/credenza-market/credenza-backend/pkg/errors"
	"github.com/credenza-market/credenza-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// AddStockInput describes a new batch entering a provider's pool.
type AddStockInput struct {
	ProductID     uuid.UUID
	Payload       json.RawMessage
	Quantity      int
	PublishStatus enums.StockPublishStatus
}

// Inventory is the provider-facing surface over the allocator: every
// mutation is ownership-checked, wrapped in a transaction, and announced
// through the outbox.
type Inventory interface {
	Add(ctx context.Context, providerID uuid.UUID, input AddStockInput) (*models.StockRecord, error)
	Remove(ctx context.Context, providerID, recordID uuid.UUID) error
	SetPublishStatus(ctx context.Context, providerID, recordID uuid.UUID, status enums.StockPublishStatus) error
	ListForProduct(ctx context.Context, providerID, productID uuid.UUID) ([]models.StockRecord, error)
}

type inventory struct {
	tx          txRunner
	svc         Service
	repo        Repository
	productRepo products.Repository
	outbox      outboxEmitter
}

// NewInventory wires the provider-facing stock surface.
func NewInventory(tx txRunner, svc Service, repo Repository, productRepo products.Repository, ob outboxEmitter) (Inventory, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if svc == nil {
		return nil, fmt.Errorf("stock service required")
	}
	if repo == nil {
		return nil, fmt.Errorf("stock repository required")
	}
	if productRepo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &inventory{tx: tx, svc: svc, repo: repo, productRepo: productRepo, outbox: ob}, nil
}

func (i *inventory) Add(ctx context.Context, providerID uuid.UUID, input AddStockInput) (*models.StockRecord, error) {
	product, err := i.ownedProduct(ctx, providerID, input.ProductID)
	if err != nil {
		return nil, err
	}

	record := &models.StockRecord{
		ID:            uuid.New(),
		ProductID:     product.ID,
		ProviderID:    providerID,
		Payload:       input.Payload,
		Quantity:      input.Quantity,
		PublishStatus: input.PublishStatus,
	}
	err = i.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := i.svc.AddRecord(ctx, tx, record); err != nil {
			return err
		}
		return i.emitProductsUpdated(ctx, tx, product.ID)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (i *inventory) Remove(ctx context.Context, providerID, recordID uuid.UUID) error {
	record, err := i.ownedRecord(ctx, providerID, recordID)
	if err != nil {
		return err
	}
	if record.Sold {
		return pkgerrors.New(pkgerrors.CodeValidation, "cannot remove a sold record")
	}
	return i.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := i.svc.RemoveRecord(ctx, tx, recordID); err != nil {
			return err
		}
		return i.emitProductsUpdated(ctx, tx, record.ProductID)
	})
}

func (i *inventory) SetPublishStatus(ctx context.Context, providerID, recordID uuid.UUID, status enums.StockPublishStatus) error {
	record, err := i.ownedRecord(ctx, providerID, recordID)
	if err != nil {
		return err
	}
	return i.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := i.svc.SetPublishStatus(ctx, tx, recordID, status); err != nil {
			return err
		}
		return i.emitProductsUpdated(ctx, tx, record.ProductID)
	})
}

func (i *inventory) ListForProduct(ctx context.Context, providerID, productID uuid.UUID) ([]models.StockRecord, error) {
	if _, err := i.ownedProduct(ctx, providerID, productID); err != nil {
		return nil, err
	}
	return i.svc.ListByProduct(ctx, productID)
}

func (i *inventory) ownedProduct(ctx context.Context, providerID, productID uuid.UUID) (*models.Product, error) {
	product, err := i.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load product")
	}
	if product == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if product.ProviderID != providerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "product belongs to another provider")
	}
	return product, nil
}

func (i *inventory) ownedRecord(ctx context.Context, providerID, recordID uuid.UUID) (*models.StockRecord, error) {
	record, err := i.repo.GetByID(ctx, recordID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load stock record")
	}
	if record == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "stock record not found")
	}
	if record.ProviderID != providerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "stock record belongs to another provider")
	}
	return record, nil
}

func (i *inventory) emitProductsUpdated(ctx context.Context, tx *gorm.DB, productID uuid.UUID) error {
	return i.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventProductsUpdated,
		AggregateType: enums.AggregateProduct,
		AggregateID:   productID,
	})
}
