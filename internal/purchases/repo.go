package purchases

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/credenza-market/credenza-backend/pkg/db/models"
)

// OrdersRepository manages persistence for made-to-order fulfillment rows.
type OrdersRepository interface {
	WithTx(tx *gorm.DB) OrdersRepository
	Create(ctx context.Context, order *models.Order) error
	Save(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Order, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID) ([]models.Order, error)
}

type ordersRepository struct {
	db *gorm.DB
}

// NewOrdersRepository returns an orders repository bound to the database.
func NewOrdersRepository(db *gorm.DB) OrdersRepository {
	return &ordersRepository{db: db}
}

func (r *ordersRepository) WithTx(tx *gorm.DB) OrdersRepository {
	if tx == nil {
		return r
	}
	return &ordersRepository{db: tx}
}

func (r *ordersRepository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *ordersRepository) Save(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Save(order).Error
}

func (r *ordersRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *ordersRepository) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Order, error) {
	return r.listWhere(ctx, "buyer_id = ?", buyerID)
}

func (r *ordersRepository) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]models.Order, error) {
	return r.listWhere(ctx, "provider_id = ?", providerID)
}

func (r *ordersRepository) listWhere(ctx context.Context, query string, arg any) ([]models.Order, error) {
	var orders []models.Order
	if err := r.db.WithContext(ctx).
		Where(query, arg).
		Order("created_at DESC").
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
