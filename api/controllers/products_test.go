package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/credenza-market/credenza-backend/api/middleware"
	"github.com/credenza-market/credenza-backend/pkg/db/models"
	"github.com/credenza-market/credenza-backend/pkg/enums"
	pkgerrors "github.com/credenza-market/credenza-backend/pkg/errors"
	"github.com/credenza-market/credenza-backend/pkg/logger"
)

type stubProductService struct {
	published  []models.Product
	product    *models.Product
	categories []models.Category
	deleted    []uuid.UUID
	deletedBy  []uuid.UUID
	asAdmin    []bool
	err        error
}

func (s *stubProductService) Create(ctx context.Context, providerID uuid.UUID, product *models.Product) (*models.Product, error) {
	return product, s.err
}

func (s *stubProductService) Update(ctx context.Context, providerID uuid.UUID, product *models.Product) (*models.Product, error) {
	return product, s.err
}

func (s *stubProductService) Delete(ctx context.Context, providerID uuid.UUID, productID uuid.UUID, isAdmin bool) error {
	s.deleted = append(s.deleted, productID)
	s.deletedBy = append(s.deletedBy, providerID)
	s.asAdmin = append(s.asAdmin, isAdmin)
	return s.err
}

func (s *stubProductService) GetByID(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	if s.product == nil && s.err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return s.product, s.err
}

func (s *stubProductService) ListPublished(ctx context.Context) ([]models.Product, error) {
	return s.published, s.err
}

func (s *stubProductService) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]models.Product, error) {
	return s.published, s.err
}

func (s *stubProductService) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	return &models.Category{ID: uuid.New(), Name: name}, s.err
}

func (s *stubProductService) ListCategories(ctx context.Context) ([]models.Category, error) {
	return s.categories, s.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})
}

func withURLParam(ctx context.Context, key, value string) context.Context {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return context.WithValue(ctx, chi.RouteCtxKey, routeCtx)
}

func TestListPublishedProducts(t *testing.T) {
	logg := testLogger()
	stub := &stubProductService{
		published: []models.Product{
			{
				ID:            uuid.New(),
				ProviderID:    uuid.New(),
				Name:          "Streaming Plus",
				DurationLabel: "1 month",
				Price:         decimal.NewFromInt(10),
				DeliveryMode:  enums.DeliveryModeStock,
			},
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()
	ListPublishedProducts(stub, logg).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Data []struct {
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Data) != 1 || payload.Data[0].Name != "Streaming Plus" {
		t.Fatalf("unexpected payload: %s", rec.Body.String())
	}
}

func TestGetProductInvalidID(t *testing.T) {
	logg := testLogger()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/not-a-uuid", nil)
	req = req.WithContext(withURLParam(req.Context(), "productId", "not-a-uuid"))
	rec := httptest.NewRecorder()
	GetProduct(&stubProductService{}, logg).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid id, got %d", rec.Code)
	}
}

func TestProviderDeleteProduct(t *testing.T) {
	logg := testLogger()
	providerID := uuid.New()
	productID := uuid.New()

	t.Run("missing user", func(t *testing.T) {
		ctx := withURLParam(context.Background(), "productId", productID.String())
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/provider/products/"+productID.String(), nil).WithContext(ctx)
		rec := httptest.NewRecorder()
		ProviderDeleteProduct(&stubProductService{}, logg).ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 when user missing, got %d", rec.Code)
		}
	})

	t.Run("success as provider", func(t *testing.T) {
		ctx := middleware.WithUserID(context.Background(), providerID.String())
		ctx = middleware.WithRole(ctx, string(enums.UserRoleProvider))
		ctx = withURLParam(ctx, "productId", productID.String())
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/provider/products/"+productID.String(), nil).WithContext(ctx)

		stub := &stubProductService{}
		rec := httptest.NewRecorder()
		ProviderDeleteProduct(stub, logg).ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 on success, got %d", rec.Code)
		}
		if len(stub.deleted) != 1 || stub.deleted[0] != productID {
			t.Fatalf("service not invoked with product id")
		}
		if stub.asAdmin[0] {
			t.Fatalf("provider delete must not carry admin override")
		}
	})

	t.Run("admin override flag", func(t *testing.T) {
		ctx := middleware.WithUserID(context.Background(), providerID.String())
		ctx = middleware.WithRole(ctx, string(enums.UserRoleAdmin))
		ctx = withURLParam(ctx, "productId", productID.String())
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/provider/products/"+productID.String(), nil).WithContext(ctx)

		stub := &stubProductService{}
		rec := httptest.NewRecorder()
		ProviderDeleteProduct(stub, logg).ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 on success, got %d", rec.Code)
		}
		if !stub.asAdmin[0] {
			t.Fatalf("admin delete must carry admin override")
		}
	})

	t.Run("not found bubbles up", func(t *testing.T) {
		ctx := middleware.WithUserID(context.Background(), providerID.String())
		ctx = withURLParam(ctx, "productId", productID.String())
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/provider/products/"+productID.String(), nil).WithContext(ctx)

		stub := &stubProductService{err: pkgerrors.New(pkgerrors.CodeNotFound, "product not found")}
		rec := httptest.NewRecorder()
		ProviderDeleteProduct(stub, logg).ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}
