package products

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

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

// Service manages product listings.
type Service interface {
	Create(ctx context.Context, providerID uuid.UUID, product *models.Product) (*models.Product, error)
	Update(ctx context.Context, providerID uuid.UUID, product *models.Product) (*models.Product, error)
	Delete(ctx context.Context, providerID uuid.UUID, productID uuid.UUID, isAdmin bool) error
	GetByID(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	ListPublished(ctx context.Context) ([]models.Product, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID) ([]models.Product, error)
	CreateCategory(ctx context.Context, name string) (*models.Category, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
}

type service struct {
	tx     txRunner
	repo   Repository
	outbox outboxEmitter
}

// NewService wires a product service.
func NewService(tx txRunner, repo Repository, ob outboxEmitter) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{tx: tx, repo: repo, outbox: ob}, nil
}

func (s *service) Create(ctx context.Context, providerID uuid.UUID, product *models.Product) (*models.Product, error) {
	if err := validateListing(product); err != nil {
		return nil, err
	}
	product.ID = uuid.New()
	product.ProviderID = providerID
	product.CachedStock = 0

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, product); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to create product")
		}
		return s.emitProductsUpdated(ctx, tx, product.ID)
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

func (s *service) Update(ctx context.Context, providerID uuid.UUID, product *models.Product) (*models.Product, error) {
	if err := validateListing(product); err != nil {
		return nil, err
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.GetByID(ctx, product.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load product")
		}
		if existing == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		if existing.ProviderID != providerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "product belongs to another provider")
		}

		// The cached counter and ownership are never client-writable.
		product.ProviderID = existing.ProviderID
		product.CachedStock = existing.CachedStock
		product.CreatedAt = existing.CreatedAt
		if err := repo.Save(ctx, product); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to update product")
		}
		return s.emitProductsUpdated(ctx, tx, product.ID)
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

func (s *service) Delete(ctx context.Context, providerID uuid.UUID, productID uuid.UUID, isAdmin bool) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.GetByID(ctx, productID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load product")
		}
		if existing == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		if !isAdmin && existing.ProviderID != providerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "product belongs to another provider")
		}
		if err := repo.Delete(ctx, productID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to delete product")
		}
		return s.emitProductsUpdated(ctx, tx, productID)
	})
}

func (s *service) GetByID(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	product, err := s.repo.GetByID(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load product")
	}
	if product == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return product, nil
}

func (s *service) ListPublished(ctx context.Context) ([]models.Product, error) {
	return s.repo.ListPublished(ctx, time.Now())
}

func (s *service) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]models.Product, error) {
	return s.repo.ListByProvider(ctx, providerID)
}

func (s *service) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "category name is required")
	}

	category := &models.Category{ID: uuid.New(), Name: name}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.GetCategoryByName(ctx, name)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to look up category")
		}
		if existing != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "category already exists")
		}
		if err := repo.CreateCategory(ctx, category); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to create category")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCategoriesUpdated,
			AggregateType: enums.AggregateCategory,
			AggregateID:   category.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	return category, nil
}

func (s *service) ListCategories(ctx context.Context) ([]models.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *service) emitProductsUpdated(ctx context.Context, tx *gorm.DB, productID uuid.UUID) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventProductsUpdated,
		AggregateType: enums.AggregateProduct,
		AggregateID:   productID,
	})
}

func validateListing(product *models.Product) error {
	if product == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product is required")
	}
	if product.Name == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product name is required")
	}
	if product.Price.IsNegative() || product.PremiumPrice.IsNegative() ||
		product.RenewalPrice.IsNegative() || product.PremiumRenewalPrice.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "prices cannot be negative")
	}
	if product.DeliveryMode == "" {
		product.DeliveryMode = enums.DeliveryModeStock
	}
	if !product.DeliveryMode.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid delivery mode %q", product.DeliveryMode))
	}
	if _, err := DurationDays(product.DurationLabel); err != nil {
		return err
	}
	return nil
}
