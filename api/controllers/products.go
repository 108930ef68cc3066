package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/credenza-market/credenza-backend/api/middleware"
	"github.com/credenza-market/credenza-backend/api/responses"
	"github.com/credenza-market/credenza-backend/api/validators"
	productsvc "github.com/credenza-market/credenza-backend/internal/products"
	"github.com/credenza-market/credenza-backend/pkg/db/models"
	"github.com/credenza-market/credenza-backend/pkg/enums"
	pkgerrors "github.com/credenza-market/credenza-backend/pkg/errors"
	"github.com/credenza-market/credenza-backend/pkg/logger"
)

// ListPublishedProducts is the public catalog: listings inside their
// publication window.
func ListPublishedProducts(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		listings, err := svc.ListPublished(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, productsvc.FromModels(listings))
	}
}

// GetProduct returns one listing by id.
func GetProduct(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		productID, err := pathUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := svc.GetByID(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, productsvc.FromModel(product))
	}
}

// ProviderListProducts returns the caller's own listings, published or not.
func ProviderListProducts(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		providerID, err := currentUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		listings, err := svc.ListByProvider(r.Context(), providerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, productsvc.FromModels(listings))
	}
}

// ListCategories returns the category catalog.
func ListCategories(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		categories, err := svc.ListCategories(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, productsvc.CategoriesFromModels(categories))
	}
}

type categoryRequest struct {
	Name string `json:"name" validate:"required"`
}

// AdminCreateCategory adds a category to the catalog.
func AdminCreateCategory(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		var payload categoryRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		category, err := svc.CreateCategory(r.Context(), payload.Name)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, productsvc.CategoryDTO{
			ID:        category.ID,
			Name:      category.Name,
			CreatedAt: category.CreatedAt,
		})
	}
}

type productRequest struct {
	Name                string     `json:"name" validate:"required"`
	Category            string     `json:"category" validate:"required"`
	DurationLabel       string     `json:"duration_label" validate:"required"`
	Price               string     `json:"price" validate:"required"`
	PremiumPrice        string     `json:"premium_price,omitempty"`
	RenewalPrice        string     `json:"renewal_price,omitempty"`
	PremiumRenewalPrice string     `json:"premium_renewal_price,omitempty"`
	DeliveryMode        string     `json:"delivery_mode,omitempty"`
	PublishedUntil      *time.Time `json:"published_until,omitempty"`
}

func (p productRequest) toModel() (*models.Product, error) {
	price, err := decimal.NewFromString(p.Price)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid price")
	}

	product := &models.Product{
		Name:           strings.TrimSpace(p.Name),
		Category:       strings.TrimSpace(p.Category),
		DurationLabel:  strings.TrimSpace(p.DurationLabel),
		Price:          price,
		PublishedUntil: p.PublishedUntil,
	}

	// Premium and renewal prices fall back to the base price when omitted.
	product.PremiumPrice, err = optionalPrice(p.PremiumPrice, price)
	if err != nil {
		return nil, err
	}
	product.RenewalPrice, err = optionalPrice(p.RenewalPrice, price)
	if err != nil {
		return nil, err
	}
	product.PremiumRenewalPrice, err = optionalPrice(p.PremiumRenewalPrice, product.RenewalPrice)
	if err != nil {
		return nil, err
	}

	if p.DeliveryMode != "" {
		mode, parseErr := enums.ParseDeliveryMode(strings.TrimSpace(p.DeliveryMode))
		if parseErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid delivery mode")
		}
		product.DeliveryMode = mode
	}
	return product, nil
}

func optionalPrice(raw string, fallback decimal.Decimal) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid price")
	}
	return value, nil
}

// ProviderCreateProduct creates a listing owned by the caller.
func ProviderCreateProduct(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		providerID, err := currentUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload productRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := payload.toModel()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		created, err := svc.Create(r.Context(), providerID, product)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, productsvc.FromModel(created))
	}
}

// ProviderUpdateProduct replaces a listing's attributes.
func ProviderUpdateProduct(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		providerID, err := currentUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		productID, err := pathUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload productRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := payload.toModel()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product.ID = productID

		updated, err := svc.Update(r.Context(), providerID, product)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, productsvc.FromModel(updated))
	}
}

// ProviderDeleteProduct removes a listing. Admins may delete any listing.
func ProviderDeleteProduct(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		providerID, err := currentUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		productID, err := pathUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		isAdmin := enums.UserRole(middleware.RoleFromContext(r.Context())) == enums.UserRoleAdmin
		if err := svc.Delete(r.Context(), providerID, productID, isAdmin); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}
