package support

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/credenza-market/credenza-backend/pkg/db/models"
	"github.com/credenza-market/credenza-backend/pkg/enums"
)

// Repository resolves purchase rows from the provider's side. Buyer-side
// lookups go through the ledger repository; the provider_id column recorded at
// sale time makes this cross-reference a direct query.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindPurchaseByProvider(ctx context.Context, providerID uuid.UUID, identifier string) (*models.Transaction, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID, status enums.TransactionStatus) ([]models.Transaction, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindPurchaseByProvider accepts the same heterogeneous identifiers the
// ledger does: row uuid, order code, or legacy numeric id.
func (r *repository) FindPurchaseByProvider(ctx context.Context, providerID uuid.UUID, identifier string) (*models.Transaction, error) {
	if identifier == "" {
		return nil, nil
	}
	query := r.db.WithContext(ctx).
		Where("provider_id = ? AND direction = ?", providerID, enums.TransactionDirectionDebit)
	if id, err := uuid.Parse(identifier); err == nil {
		query = query.Where("id = ?", id)
	} else if legacy, err := strconv.ParseInt(identifier, 10, 64); err == nil {
		query = query.Where("order_code = ? OR legacy_id = ?", identifier, legacy)
	} else {
		query = query.Where("order_code = ?", identifier)
	}

	var txn models.Transaction
	err := query.First(&txn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) ListByProvider(ctx context.Context, providerID uuid.UUID, status enums.TransactionStatus) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := r.db.WithContext(ctx).
		Where("provider_id = ? AND direction = ? AND status = ?",
			providerID, enums.TransactionDirectionDebit, status).
		Order("created_at DESC").
		Find(&txns).Error
	return txns, err
}
