package stock

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/credenza-market/credenza-backend/pkg/db/models"
	"github.com/credenza-market/credenza-backend/pkg/enums"
	pkgerrors "github.com/credenza-market/credenza-backend/pkg/errors"
	"github.com/credenza-market/credenza-backend/pkg/money"
)

// AllocateInput describes a carve-out request against a product's pool.
type AllocateInput struct {
	ProductID uuid.UUID
	BuyerID   uuid.UUID
	Quantity  int
	UnitPrice decimal.Decimal
}

// AllocatedUnit is one sold record produced by an allocation. Quantity is 1
// for split-off units; a fully consumed batch keeps its original count.
type AllocatedUnit struct {
	RecordID uuid.UUID
	Quantity int
	Payload  json.RawMessage
}

// Service is the stock allocator: it carves units out of the pool, restores
// them on refunds, and keeps the product's cached stock counter in sync with
// the pool after every mutation.
type Service interface {
	Allocate(ctx context.Context, tx *gorm.DB, input AllocateInput) ([]AllocatedUnit, error)
	Restore(ctx context.Context, tx *gorm.DB, recordIDs []uuid.UUID) error
	RecomputeCachedStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (int, error)
	AddRecord(ctx context.Context, tx *gorm.DB, record *models.StockRecord) error
	RemoveRecord(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	SetPublishStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status enums.StockPublishStatus) error
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.StockRecord, error)
}

type service struct {
	repo Repository
}

// NewService wires the allocator with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("stock repository required")
	}
	return &service{repo: repo}, nil
}

// Allocate walks the sellable records in stable order and carves out exactly
// input.Quantity units. The pre-scan over total capacity happens inside the
// same transaction as the writes, so an insufficient pool aborts before any
// mutation and concurrent buyers cannot oversell a committed view.
func (s *service) Allocate(ctx context.Context, tx *gorm.DB, input AllocateInput) ([]AllocatedUnit, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	repo := s.repo.WithTx(tx)

	records, err := repo.ListSellableByProduct(ctx, input.ProductID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to scan stock pool")
	}

	available := 0
	for _, record := range records {
		available += record.Quantity
	}
	if available < input.Quantity {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
			WithDetails(map[string]string{
				"requested": strconv.Itoa(input.Quantity),
				"available": strconv.Itoa(available),
				"shortfall": strconv.Itoa(input.Quantity - available),
			})
	}

	now := time.Now()
	price := money.Round(input.UnitPrice)
	remaining := input.Quantity
	var allocated []AllocatedUnit

	for i := range records {
		if remaining == 0 {
			break
		}
		record := records[i]

		if record.Quantity > remaining {
			// Split: shrink the source batch and mint `remaining`
			// single-unit sold records copying its payload.
			record.Quantity -= remaining
			if err := repo.Save(ctx, &record); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to shrink stock batch")
			}
			for j := 0; j < remaining; j++ {
				unit := &models.StockRecord{
					ID:            uuid.New(),
					ProductID:     record.ProductID,
					ProviderID:    record.ProviderID,
					Payload:       record.Payload,
					Quantity:      1,
					PublishStatus: record.PublishStatus,
					Sold:          true,
					SoldPrice:     &price,
					BuyerID:       &input.BuyerID,
					SoldAt:        &now,
				}
				if err := repo.Create(ctx, unit); err != nil {
					return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to mint sold unit")
				}
				allocated = append(allocated, AllocatedUnit{RecordID: unit.ID, Quantity: 1, Payload: unit.Payload})
			}
			remaining = 0
			break
		}

		// Whole batch consumed.
		record.Sold = true
		record.SoldPrice = &price
		record.BuyerID = &input.BuyerID
		record.SoldAt = &now
		if err := repo.Save(ctx, &record); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to mark stock sold")
		}
		allocated = append(allocated, AllocatedUnit{RecordID: record.ID, Quantity: record.Quantity, Payload: record.Payload})
		remaining -= record.Quantity
	}

	if _, err := s.recompute(ctx, repo, input.ProductID); err != nil {
		return nil, err
	}
	return allocated, nil
}

// Restore flips sold records back into the pool (refund path) and recomputes
// the cached counter of every touched product.
func (s *service) Restore(ctx context.Context, tx *gorm.DB, recordIDs []uuid.UUID) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	if len(recordIDs) == 0 {
		return nil
	}
	repo := s.repo.WithTx(tx)

	records, err := repo.ListByIDs(ctx, recordIDs)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load stock records")
	}

	touched := map[uuid.UUID]struct{}{}
	for i := range records {
		record := records[i]
		if !record.Sold {
			continue
		}
		record.Sold = false
		record.SoldPrice = nil
		record.BuyerID = nil
		record.SoldAt = nil
		if err := repo.Save(ctx, &record); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to restore stock record")
		}
		touched[record.ProductID] = struct{}{}
	}

	for productID := range touched {
		if _, err := s.recompute(ctx, repo, productID); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) RecomputeCachedStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (int, error) {
	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}
	return s.recompute(ctx, repo, productID)
}

// recompute derives the cached counter from the pool; it is never trusted
// incrementally.
func (s *service) recompute(ctx context.Context, repo Repository, productID uuid.UUID) (int, error) {
	total, err := repo.SumSellableQuantity(ctx, productID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to sum stock pool")
	}
	if err := repo.UpdateProductCachedStock(ctx, productID, total); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to update cached stock")
	}
	return total, nil
}

func (s *service) AddRecord(ctx context.Context, tx *gorm.DB, record *models.StockRecord) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	if record == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stock record is required")
	}
	if record.Quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if record.PublishStatus == "" {
		record.PublishStatus = enums.StockPublishStatusPublished
	}
	if !record.PublishStatus.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid publish status %q", record.PublishStatus))
	}
	repo := s.repo.WithTx(tx)
	if err := repo.Create(ctx, record); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to add stock record")
	}
	_, err := s.recompute(ctx, repo, record.ProductID)
	return err
}

func (s *service) RemoveRecord(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	repo := s.repo.WithTx(tx)
	record, err := repo.GetByID(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load stock record")
	}
	if record == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "stock record not found")
	}
	if err := repo.Delete(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to delete stock record")
	}
	_, err = s.recompute(ctx, repo, record.ProductID)
	return err
}

func (s *service) SetPublishStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status enums.StockPublishStatus) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	if !status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid publish status %q", status))
	}
	repo := s.repo.WithTx(tx)
	record, err := repo.GetByID(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load stock record")
	}
	if record == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "stock record not found")
	}
	record.PublishStatus = status
	if err := repo.Save(ctx, record); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to update publish status")
	}
	_, err = s.recompute(ctx, repo, record.ProductID)
	return err
}

func (s *service) ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.StockRecord, error) {
	return s.repo.ListByProduct(ctx, productID)
}
