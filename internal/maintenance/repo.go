package maintenance

import (
	"context"

	"gorm.io/gorm"

	"github.com/credenza-market/credenza-backend/pkg/db/models"
	"github.com/credenza-market/credenza-backend/pkg/enums"
)

// Repository surfaces ledger rows that imported data left incomplete.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListMissingOrderCodes(ctx context.Context, limit int) ([]models.Transaction, error)
	ListMissingProviderLinks(ctx context.Context, limit int) ([]models.Transaction, error)
	Save(ctx context.Context, txn *models.Transaction) error
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

func (r *repository) ListMissingOrderCodes(ctx context.Context, limit int) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := r.db.WithContext(ctx).
		Where("order_code = ''").
		Order("created_at ASC").
		Limit(limit).
		Find(&txns).Error
	return txns, err
}

// ListMissingProviderLinks returns purchase rows whose provider reference was
// never recorded but that carry stock record references to recover it from.
func (r *repository) ListMissingProviderLinks(ctx context.Context, limit int) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := r.db.WithContext(ctx).
		Where("direction = ? AND kind IN ?",
			enums.TransactionDirectionDebit,
			[]enums.TransactionKind{enums.TransactionKindPurchase, enums.TransactionKindRenewal}).
		Where("(provider_id IS NULL OR provider_id = ?)", "00000000-0000-0000-0000-000000000000").
		Where("stock_record_ids IS NOT NULL AND stock_record_ids <> '{}'").
		Order("created_at ASC").
		Limit(limit).
		Find(&txns).Error
	return txns, err
}

func (r *repository) Save(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Save(txn).Error
}
