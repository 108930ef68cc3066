package premium

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/credenza-market/credenza-backend/pkg/db/models"
)

// Repository exposes the user fields the premium engine owns: role and
// premium expiry.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateRoleAndExpiry(ctx context.Context, userID uuid.UUID, role string, expiresAt *time.Time) error
	ListExpired(ctx context.Context, now time.Time) ([]models.User, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a premium repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) UpdateRoleAndExpiry(ctx context.Context, userID uuid.UUID, role string, expiresAt *time.Time) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"role": role, "premium_expires_at": expiresAt}).Error
}

func (r *repository) ListExpired(ctx context.Context, now time.Time) ([]models.User, error) {
	var users []models.User
	if err := r.db.WithContext(ctx).
		Where("premium_expires_at IS NOT NULL AND premium_expires_at < ?", now).
		Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
