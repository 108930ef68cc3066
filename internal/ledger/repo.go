package ledger

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/credenza-market/credenza-backend/pkg/db/models"
	"github.com/credenza-market/credenza-backend/pkg/enums"
	"github.com/credenza-market/credenza-backend/pkg/pagination"
)

// Repository manages persistence for ledger rows and the balance column they
// move in lockstep with.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.Transaction) error
	Save(ctx context.Context, txn *models.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	ListByUser(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Transaction, error)
	FindByUserAndIdentifier(ctx context.Context, userID uuid.UUID, identifier string) (*models.Transaction, error)
	HasCompletedCredit(ctx context.Context, userID uuid.UUID, excludeID uuid.UUID) (bool, error)
	GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
	AdjustBalance(ctx context.Context, userID uuid.UUID, delta decimal.Decimal) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) Save(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Save(txn).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&txn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// ListByUser pages the user's ledger newest first with a keyset cursor on
// (created_at, id).
func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Transaction, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var txns []models.Transaction
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// FindByUserAndIdentifier resolves a heterogeneous identifier: a row uuid, an
// order code, or a legacy numeric timestamp id, all compared as strings.
func (r *repository) FindByUserAndIdentifier(ctx context.Context, userID uuid.UUID, identifier string) (*models.Transaction, error) {
	if identifier == "" {
		return nil, nil
	}
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
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

// HasCompletedCredit reports whether the user already has a completed credit
// row other than excludeID. Drives the first-recharge commission rule.
func (r *repository) HasCompletedCredit(ctx context.Context, userID uuid.UUID, excludeID uuid.UUID) (bool, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("user_id = ? AND direction = ? AND status = ?",
			userID, enums.TransactionDirectionCredit, enums.TransactionStatusCompleted)
	if excludeID != uuid.Nil {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// AdjustBalance applies the delta with a non-negativity guard in a single
// conditional UPDATE, so concurrent movements against one user cannot drive
// the balance below zero. Returns false when the guard rejected the change
// (or the user does not exist).
func (r *repository) AdjustBalance(ctx context.Context, userID uuid.UUID, delta decimal.Decimal) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND balance + ? >= 0", userID, delta).
		Update("balance", gorm.Expr("balance + ?", delta))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
