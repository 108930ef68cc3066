package stock

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/credenza-market/credenza-backend/pkg/db/models"
	"github.com/credenza-market/credenza-backend/pkg/enums"
)

// Repository manages persistence for the stock pool and the derived cached
// stock counter on products.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, record *models.StockRecord) error
	Save(ctx context.Context, record *models.StockRecord) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.StockRecord, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.StockRecord, error)
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.StockRecord, error)
	ListSellableByProduct(ctx context.Context, productID uuid.UUID) ([]models.StockRecord, error)
	SumSellableQuantity(ctx context.Context, productID uuid.UUID) (int, error)
	UpdateProductCachedStock(ctx context.Context, productID uuid.UUID, value int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a stock repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, record *models.StockRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) Save(ctx context.Context, record *models.StockRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.StockRecord{}, "id = ?", id).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.StockRecord, error) {
	var record models.StockRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.StockRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var records []models.StockRecord
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repository) ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.StockRecord, error) {
	var records []models.StockRecord
	if err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at ASC, id ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// ListSellableByProduct returns unsold, published records with units left, in
// the stable allocation order. The rows are locked so two concurrent
// allocations against the same product serialize instead of both claiming
// the same records.
func (r *repository) ListSellableByProduct(ctx context.Context, productID uuid.UUID) ([]models.StockRecord, error) {
	query := r.db.WithContext(ctx).
		Where("product_id = ? AND sold = ? AND publish_status = ? AND quantity > 0",
			productID, false, enums.StockPublishStatusPublished).
		Order("created_at ASC, id ASC")
	// sqlite has no FOR UPDATE.
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var records []models.StockRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repository) SumSellableQuantity(ctx context.Context, productID uuid.UUID) (int, error) {
	var total *int
	err := r.db.WithContext(ctx).Model(&models.StockRecord{}).
		Select("SUM(quantity)").
		Where("product_id = ? AND sold = ? AND publish_status = ?",
			productID, false, enums.StockPublishStatusPublished).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

func (r *repository) UpdateProductCachedStock(ctx context.Context, productID uuid.UUID, value int) error {
	return r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", productID).
		Update("cached_stock", value).Error
}
