package stock

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/credenza-market/credenza-backend/pkg/db/models"
	"github.com/credenza-market/credenza-backend/pkg/enums"
	pkgerrors "github.com/credenza-market/credenza-backend/pkg/errors"
)

const productsSchema = `
CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  provider_id TEXT NOT NULL,
  name TEXT NOT NULL DEFAULT '',
  category TEXT NOT NULL DEFAULT '',
  duration_label TEXT NOT NULL DEFAULT '',
  price NUMERIC NOT NULL DEFAULT 0,
  premium_price NUMERIC NOT NULL DEFAULT 0,
  renewal_price NUMERIC NOT NULL DEFAULT 0,
  premium_renewal_price NUMERIC NOT NULL DEFAULT 0,
  delivery_mode TEXT NOT NULL DEFAULT 'stock',
  published_until DATETIME,
  cached_stock INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`

const stockRecordsSchema = `
CREATE TABLE IF NOT EXISTS stock_records (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL,
  provider_id TEXT NOT NULL,
  payload TEXT,
  quantity INTEGER NOT NULL DEFAULT 1,
  publish_status TEXT NOT NULL DEFAULT 'published',
  sold INTEGER NOT NULL DEFAULT 0,
  sold_price NUMERIC,
  buyer_id TEXT,
  sold_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`

func setupStockTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:stock_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(productsSchema).Error)
	require.NoError(t, db.Exec(stockRecordsSchema).Error)
	return db
}

func seedProduct(t *testing.T, db *gorm.DB) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:         uuid.New(),
		ProviderID: uuid.New(),
		Name:       "Streaming Plan",
		Category:   "streaming",
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

func seedRecord(t *testing.T, db *gorm.DB, product *models.Product, quantity int, createdAt time.Time) *models.StockRecord {
	t.Helper()
	record := &models.StockRecord{
		ID:            uuid.New(),
		ProductID:     product.ID,
		ProviderID:    product.ProviderID,
		Payload:       json.RawMessage(`{"user":"acct@example.com","pass":"secret"}`),
		Quantity:      quantity,
		PublishStatus: enums.StockPublishStatusPublished,
		CreatedAt:     createdAt,
	}
	require.NoError(t, db.Create(record).Error)
	return record
}

func poolSum(t *testing.T, db *gorm.DB, productID uuid.UUID) int {
	t.Helper()
	total, err := NewRepository(db).SumSellableQuantity(context.Background(), productID)
	require.NoError(t, err)
	return total
}

func cachedStock(t *testing.T, db *gorm.DB, productID uuid.UUID) int {
	t.Helper()
	var product models.Product
	require.NoError(t, db.First(&product, "id = ?", productID).Error)
	return product.CachedStock
}

func newService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)
	return svc
}

func TestAllocate_SplitsQuantityRecord(t *testing.T) {
	db := setupStockTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()
	product := seedProduct(t, db)
	source := seedRecord(t, db, product, 5, time.Now().Add(-time.Hour))
	buyer := uuid.New()

	var units []AllocatedUnit
	err := db.Transaction(func(tx *gorm.DB) error {
		var terr error
		units, terr = svc.Allocate(ctx, tx, AllocateInput{
			ProductID: product.ID,
			BuyerID:   buyer,
			Quantity:  2,
			UnitPrice: decimal.RequireFromString("9.99"),
		})
		return terr
	})
	require.NoError(t, err)
	require.Len(t, units, 2)
	for _, unit := range units {
		assert.Equal(t, 1, unit.Quantity)
		assert.JSONEq(t, `{"user":"acct@example.com","pass":"secret"}`, string(unit.Payload))
	}

	var reloaded models.StockRecord
	require.NoError(t, db.First(&reloaded, "id = ?", source.ID).Error)
	assert.Equal(t, 3, reloaded.Quantity, "source batch shrinks in place")
	assert.False(t, reloaded.Sold)

	var soldCount int64
	require.NoError(t, db.Model(&models.StockRecord{}).
		Where("product_id = ? AND sold = ?", product.ID, true).Count(&soldCount).Error)
	assert.EqualValues(t, 2, soldCount)

	assert.Equal(t, 3, cachedStock(t, db, product.ID))
	assert.Equal(t, poolSum(t, db, product.ID), cachedStock(t, db, product.ID))
}

func TestAllocate_TwoPlusOneScenario(t *testing.T) {
	db := setupStockTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()
	product := seedProduct(t, db)
	seedRecord(t, db, product, 2, time.Now().Add(-2*time.Hour))
	seedRecord(t, db, product, 1, time.Now().Add(-time.Hour))
	buyer := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		units, terr := svc.Allocate(ctx, tx, AllocateInput{
			ProductID: product.ID,
			BuyerID:   buyer,
			Quantity:  2,
			UnitPrice: decimal.RequireFromString("15.00"),
		})
		if terr != nil {
			return terr
		}
		total := 0
		for _, unit := range units {
			total += unit.Quantity
		}
		assert.Equal(t, 2, total, "exactly two units sold")
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 1, poolSum(t, db, product.ID), "one unit remains in the pool")
	assert.Equal(t, 1, cachedStock(t, db, product.ID))
}

func TestAllocate_InsufficientStockMutatesNothing(t *testing.T) {
	db := setupStockTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()
	product := seedProduct(t, db)
	seedRecord(t, db, product, 2, time.Now().Add(-time.Hour))
	require.NoError(t, db.Model(&models.Product{}).Where("id = ?", product.ID).
		Update("cached_stock", 2).Error)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, terr := svc.Allocate(ctx, tx, AllocateInput{
			ProductID: product.ID,
			BuyerID:   uuid.New(),
			Quantity:  3,
			UnitPrice: decimal.NewFromInt(10),
		})
		return terr
	})
	coded := pkgerrors.As(err)
	require.NotNil(t, coded)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, coded.Code())

	details, ok := coded.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "3", details["requested"])
	assert.Equal(t, "2", details["available"])
	assert.Equal(t, "1", details["shortfall"])

	assert.Equal(t, 2, poolSum(t, db, product.ID), "pool untouched after abort")
	assert.Equal(t, 2, cachedStock(t, db, product.ID))
}

func TestAllocate_SkipsUnpublishedUnits(t *testing.T) {
	db := setupStockTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()
	product := seedProduct(t, db)
	hidden := seedRecord(t, db, product, 4, time.Now().Add(-time.Hour))
	require.NoError(t, db.Model(&models.StockRecord{}).Where("id = ?", hidden.ID).
		Update("publish_status", enums.StockPublishStatusUnpublished).Error)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, terr := svc.Allocate(ctx, tx, AllocateInput{
			ProductID: product.ID,
			BuyerID:   uuid.New(),
			Quantity:  1,
			UnitPrice: decimal.NewFromInt(5),
		})
		return terr
	})
	coded := pkgerrors.As(err)
	require.NotNil(t, coded)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, coded.Code())
}

func TestRestore_ReturnsUnitsToPool(t *testing.T) {
	db := setupStockTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()
	product := seedProduct(t, db)
	seedRecord(t, db, product, 3, time.Now().Add(-time.Hour))
	buyer := uuid.New()

	var units []AllocatedUnit
	err := db.Transaction(func(tx *gorm.DB) error {
		var terr error
		units, terr = svc.Allocate(ctx, tx, AllocateInput{
			ProductID: product.ID,
			BuyerID:   buyer,
			Quantity:  2,
			UnitPrice: decimal.NewFromInt(10),
		})
		return terr
	})
	require.NoError(t, err)
	require.Len(t, units, 2)

	ids := []uuid.UUID{units[0].RecordID, units[1].RecordID}
	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.Restore(ctx, tx, ids)
	})
	require.NoError(t, err)

	assert.Equal(t, 3, poolSum(t, db, product.ID))
	assert.Equal(t, 3, cachedStock(t, db, product.ID))

	var restored models.StockRecord
	require.NoError(t, db.First(&restored, "id = ?", ids[0]).Error)
	assert.False(t, restored.Sold)
	assert.Nil(t, restored.BuyerID)
	assert.Nil(t, restored.SoldAt)
	assert.Nil(t, restored.SoldPrice)
}

func TestAddAndRemoveRecordKeepCounterInSync(t *testing.T) {
	db := setupStockTestDB(t)
	svc := newService(t, db)
	ctx := context.Background()
	product := seedProduct(t, db)

	record := &models.StockRecord{
		ID:         uuid.New(),
		ProductID:  product.ID,
		ProviderID: product.ProviderID,
		Payload:    json.RawMessage(`{"user":"a"}`),
		Quantity:   4,
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.AddRecord(ctx, tx, record)
	})
	require.NoError(t, err)
	assert.Equal(t, 4, cachedStock(t, db, product.ID))

	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.SetPublishStatus(ctx, tx, record.ID, enums.StockPublishStatusUnpublished)
	})
	require.NoError(t, err)
	assert.Equal(t, 0, cachedStock(t, db, product.ID), "unpublished units never count")

	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.RemoveRecord(ctx, tx, record.ID)
	})
	require.NoError(t, err)
	assert.Equal(t, 0, cachedStock(t, db, product.ID))
}
