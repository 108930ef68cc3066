package stock

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/credenza-market/credenza-backend/internal/products"
	"github.com/credenza-market/credenza-backend/pkg/db/models"
	"github.com/credenza-market/credenza-backend/pkg/enums"
	pkgerrors "github.com/credenza-market/credenza-backend/pkg/errors"
	"github.com/credenza-market/credenza-backend/pkg/outbox"
)

type dbTxRunner struct {
	db *gorm.DB
}

func (r dbTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type stubOutbox struct {
	events []outbox.DomainEvent
}

func (o *stubOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	o.events = append(o.events, event)
	return nil
}

func (o *stubOutbox) count(eventType enums.OutboxEventType) int {
	total := 0
	for _, event := range o.events {
		if event.EventType == eventType {
			total++
		}
	}
	return total
}

func newInventory(t *testing.T, db *gorm.DB) (Inventory, *stubOutbox) {
	t.Helper()
	ob := &stubOutbox{}
	inv, err := NewInventory(dbTxRunner{db: db}, newService(t, db), NewRepository(db), products.NewRepository(db), ob)
	require.NoError(t, err)
	return inv, ob
}

func TestInventoryAdd_OwnershipAndCounter(t *testing.T) {
	db := setupStockTestDB(t)
	inv, ob := newInventory(t, db)
	ctx := context.Background()
	product := seedProduct(t, db)

	record, err := inv.Add(ctx, product.ProviderID, AddStockInput{
		ProductID: product.ID,
		Payload:   json.RawMessage(`{"user":"fresh@example.com"}`),
		Quantity:  3,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.StockPublishStatusPublished, record.PublishStatus)
	assert.Equal(t, 3, cachedStock(t, db, product.ID))
	assert.Equal(t, 1, ob.count(enums.EventProductsUpdated))

	_, err = inv.Add(ctx, uuid.New(), AddStockInput{ProductID: product.ID, Quantity: 1})
	coded := pkgerrors.As(err)
	require.NotNil(t, coded)
	assert.Equal(t, pkgerrors.CodeForbidden, coded.Code())
}

func TestInventoryRemove_RejectsSoldRecords(t *testing.T) {
	db := setupStockTestDB(t)
	inv, _ := newInventory(t, db)
	ctx := context.Background()
	product := seedProduct(t, db)
	record := seedRecord(t, db, product, 2, time.Now().Add(-time.Hour))
	require.NoError(t, db.Model(&models.StockRecord{}).Where("id = ?", record.ID).
		Update("sold", true).Error)

	err := inv.Remove(ctx, product.ProviderID, record.ID)
	coded := pkgerrors.As(err)
	require.NotNil(t, coded)
	assert.Equal(t, pkgerrors.CodeValidation, coded.Code())
}

func TestInventorySetPublishStatus_HidesUnits(t *testing.T) {
	db := setupStockTestDB(t)
	inv, ob := newInventory(t, db)
	ctx := context.Background()
	product := seedProduct(t, db)
	record := seedRecord(t, db, product, 4, time.Now().Add(-time.Hour))

	require.NoError(t, inv.SetPublishStatus(ctx, product.ProviderID, record.ID, enums.StockPublishStatusUnpublished))
	assert.Equal(t, 0, cachedStock(t, db, product.ID))
	assert.Equal(t, 1, ob.count(enums.EventProductsUpdated))

	err := inv.SetPublishStatus(ctx, uuid.New(), record.ID, enums.StockPublishStatusPublished)
	coded := pkgerrors.As(err)
	require.NotNil(t, coded)
	assert.Equal(t, pkgerrors.CodeForbidden, coded.Code())
}

func TestInventoryListForProduct(t *testing.T) {
	db := setupStockTestDB(t)
	inv, _ := newInventory(t, db)
	ctx := context.Background()
	product := seedProduct(t, db)
	seedRecord(t, db, product, 1, time.Now().Add(-2*time.Hour))
	seedRecord(t, db, product, 2, time.Now().Add(-time.Hour))

	records, err := inv.ListForProduct(ctx, product.ProviderID, product.ID)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	_, err = inv.ListForProduct(ctx, uuid.New(), product.ID)
	coded := pkgerrors.As(err)
	require.NotNil(t, coded)
	assert.Equal(t, pkgerrors.CodeForbidden, coded.Code())
}
