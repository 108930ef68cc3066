package purchases

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

	"github.com/credenza-market/credenza-backend/internal/ledger"
	"github.com/credenza-market/credenza-backend/internal/products"
	"github.com/credenza-market/credenza-backend/internal/referrals"
	"github.com/credenza-market/credenza-backend/internal/stock"
	"github.com/credenza-market/credenza-backend/pkg/db/models"
	"github.com/credenza-market/credenza-backend/pkg/enums"
	pkgerrors "github.com/credenza-market/credenza-backend/pkg/errors"
	"github.com/credenza-market/credenza-backend/pkg/outbox"
)

var testSchemas = []string{`
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL,
  password_hash TEXT NOT NULL DEFAULT '',
  name TEXT NOT NULL DEFAULT '',
  balance NUMERIC NOT NULL DEFAULT 0,
  role TEXT NOT NULL DEFAULT 'standard',
  discount_percent NUMERIC NOT NULL DEFAULT 0,
  referral_code TEXT,
  referred_by TEXT,
  premium_expires_at DATETIME,
  banned INTEGER NOT NULL DEFAULT 0,
  approved INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS transactions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  order_code TEXT NOT NULL,
  legacy_id INTEGER,
  direction TEXT NOT NULL,
  kind TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  amount NUMERIC NOT NULL,
  details TEXT,
  provider_id TEXT,
  product_id TEXT,
  stock_record_ids TEXT,
  counterparty_transaction_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`, `
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
);`, `
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
);`, `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  transaction_id TEXT NOT NULL,
  buyer_id TEXT NOT NULL,
  provider_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  quantity INTEGER NOT NULL DEFAULT 1,
  status TEXT NOT NULL DEFAULT 'pending',
  created_at DATETIME,
  updated_at DATETIME
);`}

type dbTxRunner struct {
	db *gorm.DB
}

func (r dbTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

type fakeOutbox struct {
	events []outbox.DomainEvent
}

func (f *fakeOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeOutbox) has(eventType enums.OutboxEventType) bool {
	for _, event := range f.events {
		if event.EventType == eventType {
			return true
		}
	}
	return false
}

func setupPurchaseTest(t *testing.T) (Service, *gorm.DB, *fakeOutbox) {
	t.Helper()
	dsn := "file:purchases_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	for _, schema := range testSchemas {
		require.NoError(t, db.Exec(schema).Error)
	}

	ob := &fakeOutbox{}
	ledgerRepo := ledger.NewRepository(db)
	ledgerSvc, err := ledger.NewService(ledgerRepo)
	require.NoError(t, err)
	stockSvc, err := stock.NewService(stock.NewRepository(db))
	require.NoError(t, err)
	commissionSvc, err := referrals.NewService(ledgerRepo, ledgerSvc, ob)
	require.NoError(t, err)

	svc, err := NewService(dbTxRunner{db: db}, products.NewRepository(db), stockSvc,
		ledgerRepo, ledgerSvc, commissionSvc, NewOrdersRepository(db), ob)
	require.NoError(t, err)
	return svc, db, ob
}

func seedAccount(t *testing.T, db *gorm.DB, role enums.UserRole, balance string) *models.User {
	t.Helper()
	user := &models.User{
		ID:       uuid.New(),
		Email:    uuid.NewString() + "@example.com",
		Balance:  decimal.RequireFromString(balance),
		Role:     role,
		Approved: true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedListing(t *testing.T, db *gorm.DB, provider *models.User, price string, mode enums.DeliveryMode) *models.Product {
	t.Helper()
	until := time.Now().Add(30 * 24 * time.Hour)
	product := &models.Product{
		ID:                  uuid.New(),
		ProviderID:          provider.ID,
		Name:                "Streaming Plan",
		Category:            "streaming",
		DurationLabel:       "30 días",
		Price:               decimal.RequireFromString(price),
		PremiumPrice:        decimal.RequireFromString(price),
		RenewalPrice:        decimal.RequireFromString(price),
		PremiumRenewalPrice: decimal.RequireFromString(price),
		DeliveryMode:        mode,
		PublishedUntil:      &until,
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

func seedUnits(t *testing.T, db *gorm.DB, product *models.Product, quantity int) *models.StockRecord {
	t.Helper()
	record := &models.StockRecord{
		ID:            uuid.New(),
		ProductID:     product.ID,
		ProviderID:    product.ProviderID,
		Payload:       json.RawMessage(`{"user":"acct","pass":"pw"}`),
		Quantity:      quantity,
		PublishStatus: enums.StockPublishStatusPublished,
	}
	require.NoError(t, db.Create(record).Error)
	return record
}

func balanceOf(t *testing.T, db *gorm.DB, id uuid.UUID) decimal.Decimal {
	t.Helper()
	var user models.User
	require.NoError(t, db.First(&user, "id = ?", id).Error)
	return user.Balance
}

func TestPurchase_MovesMoneyBothWays(t *testing.T) {
	svc, db, ob := setupPurchaseTest(t)
	ctx := context.Background()
	provider := seedAccount(t, db, enums.UserRoleProvider, "0")
	buyer := seedAccount(t, db, enums.UserRoleStandard, "100.00")
	product := seedListing(t, db, provider, "30.00", enums.DeliveryModeStock)
	seedUnits(t, db, product, 3)

	result, err := svc.Purchase(ctx, PurchaseInput{
		BuyerID:   buyer.ID,
		ProductID: product.ID,
		Quantity:  2,
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Total.Equal(decimal.RequireFromString("60.00")))
	assert.Len(t, result.Units, 2)

	assert.True(t, balanceOf(t, db, buyer.ID).Equal(decimal.RequireFromString("40.00")))
	assert.True(t, balanceOf(t, db, provider.ID).Equal(decimal.RequireFromString("60.00")))

	// Paired rows reference each other.
	var sale models.Transaction
	require.NoError(t, db.First(&sale, "user_id = ? AND kind = ?", provider.ID, enums.TransactionKindSale).Error)
	require.NotNil(t, sale.CounterpartyTransactionID)
	assert.Equal(t, result.Transaction.ID, *sale.CounterpartyTransactionID)

	var debit models.Transaction
	require.NoError(t, db.First(&debit, "id = ?", result.Transaction.ID).Error)
	require.NotNil(t, debit.CounterpartyTransactionID)
	assert.Equal(t, sale.ID, *debit.CounterpartyTransactionID)
	assert.Len(t, debit.StockRecordIDs, 2)
	assert.Equal(t, provider.ID, debit.ProviderID)

	assert.True(t, ob.has(enums.EventProductsUpdated))
	assert.True(t, ob.has(enums.EventTransactionsUpdated))
}

func TestPurchase_InsufficientBalanceRollsBackStock(t *testing.T) {
	svc, db, _ := setupPurchaseTest(t)
	ctx := context.Background()
	provider := seedAccount(t, db, enums.UserRoleProvider, "0")
	buyer := seedAccount(t, db, enums.UserRoleStandard, "10.00")
	product := seedListing(t, db, provider, "30.00", enums.DeliveryModeStock)
	seedUnits(t, db, product, 3)

	_, err := svc.Purchase(ctx, PurchaseInput{BuyerID: buyer.ID, ProductID: product.ID, Quantity: 1})
	coded := pkgerrors.As(err)
	require.NotNil(t, coded)
	assert.Equal(t, pkgerrors.CodeInsufficientBalance, coded.Code())

	// The allocator writes happened inside the same tx and must be gone.
	total, serr := stock.NewRepository(db).SumSellableQuantity(ctx, product.ID)
	require.NoError(t, serr)
	assert.Equal(t, 3, total)
	var soldCount int64
	require.NoError(t, db.Model(&models.StockRecord{}).
		Where("product_id = ? AND sold = ?", product.ID, true).Count(&soldCount).Error)
	assert.Zero(t, soldCount)
}

func TestPurchase_InsufficientStock(t *testing.T) {
	svc, db, _ := setupPurchaseTest(t)
	ctx := context.Background()
	provider := seedAccount(t, db, enums.UserRoleProvider, "0")
	buyer := seedAccount(t, db, enums.UserRoleStandard, "100.00")
	product := seedListing(t, db, provider, "10.00", enums.DeliveryModeStock)
	seedUnits(t, db, product, 1)

	_, err := svc.Purchase(ctx, PurchaseInput{BuyerID: buyer.ID, ProductID: product.ID, Quantity: 2})
	coded := pkgerrors.As(err)
	require.NotNil(t, coded)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, coded.Code())

	assert.True(t, balanceOf(t, db, buyer.ID).Equal(decimal.RequireFromString("100.00")))
}

func TestPurchase_OnRequestCreatesOrder(t *testing.T) {
	svc, db, ob := setupPurchaseTest(t)
	ctx := context.Background()
	provider := seedAccount(t, db, enums.UserRoleProvider, "0")
	buyer := seedAccount(t, db, enums.UserRoleStandard, "50.00")
	product := seedListing(t, db, provider, "20.00", enums.DeliveryModeOnRequest)

	result, err := svc.Purchase(ctx, PurchaseInput{BuyerID: buyer.ID, ProductID: product.ID, Quantity: 1})
	require.NoError(t, err)
	require.NotNil(t, result.Order)
	assert.Empty(t, result.Units)
	assert.Equal(t, enums.OrderStatusPending, result.Order.Status)
	assert.Equal(t, result.Transaction.ID, result.Order.TransactionID)
	assert.True(t, ob.has(enums.EventOrdersUpdated))

	delivered, err := svc.MarkOrderDelivered(ctx, provider.ID, result.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, delivered.Status)

	_, err = svc.MarkOrderDelivered(ctx, provider.ID, result.Order.ID)
	coded := pkgerrors.As(err)
	require.NotNil(t, coded)
	assert.Equal(t, pkgerrors.CodeAlreadyProcessed, coded.Code())
}

func TestCancelOrder_RefundsBuyerThroughLinkedPair(t *testing.T) {
	svc, db, ob := setupPurchaseTest(t)
	ctx := context.Background()
	provider := seedAccount(t, db, enums.UserRoleProvider, "0")
	buyer := seedAccount(t, db, enums.UserRoleStandard, "50.00")
	product := seedListing(t, db, provider, "20.00", enums.DeliveryModeOnRequest)

	result, err := svc.Purchase(ctx, PurchaseInput{BuyerID: buyer.ID, ProductID: product.ID, Quantity: 1})
	require.NoError(t, err)
	require.NotNil(t, result.Order)

	_, err = svc.CancelOrder(ctx, uuid.New(), result.Order.ID)
	coded := pkgerrors.As(err)
	require.NotNil(t, coded)
	assert.Equal(t, pkgerrors.CodeForbidden, coded.Code())

	cancelled, err := svc.CancelOrder(ctx, provider.ID, result.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)

	// The full purchase amount travels back from provider to buyer.
	assert.True(t, balanceOf(t, db, buyer.ID).Equal(decimal.RequireFromString("50.00")))
	assert.True(t, balanceOf(t, db, provider.ID).Equal(decimal.RequireFromString("0")))

	var refundCredit models.Transaction
	require.NoError(t, db.First(&refundCredit, "user_id = ? AND kind = ?", buyer.ID, enums.TransactionKindRefund).Error)
	require.NotNil(t, refundCredit.CounterpartyTransactionID)
	var refundDebit models.Transaction
	require.NoError(t, db.First(&refundDebit, "id = ?", *refundCredit.CounterpartyTransactionID).Error)
	assert.Equal(t, provider.ID, refundDebit.UserID)
	require.NotNil(t, refundDebit.CounterpartyTransactionID)
	assert.Equal(t, refundCredit.ID, *refundDebit.CounterpartyTransactionID)

	var purchase models.Transaction
	require.NoError(t, db.First(&purchase, "id = ?", result.Transaction.ID).Error)
	assert.Equal(t, enums.TransactionStatusRefunded, purchase.Status)
	assert.True(t, ob.has(enums.EventOrdersUpdated))

	_, err = svc.CancelOrder(ctx, provider.ID, result.Order.ID)
	coded = pkgerrors.As(err)
	require.NotNil(t, coded)
	assert.Equal(t, pkgerrors.CodeAlreadyProcessed, coded.Code())

	_, err = svc.MarkOrderDelivered(ctx, provider.ID, result.Order.ID)
	coded = pkgerrors.As(err)
	require.NotNil(t, coded)
	assert.Equal(t, pkgerrors.CodeAlreadyProcessed, coded.Code())
}

func TestPurchase_UnapprovedBuyerRejected(t *testing.T) {
	svc, db, _ := setupPurchaseTest(t)
	ctx := context.Background()
	provider := seedAccount(t, db, enums.UserRoleProvider, "0")
	buyer := seedAccount(t, db, enums.UserRoleStandard, "100.00")
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", buyer.ID).
		Update("approved", false).Error)
	product := seedListing(t, db, provider, "30.00", enums.DeliveryModeStock)
	seedUnits(t, db, product, 3)

	_, err := svc.Purchase(ctx, PurchaseInput{BuyerID: buyer.ID, ProductID: product.ID, Quantity: 1})
	coded := pkgerrors.As(err)
	require.NotNil(t, coded)
	assert.Equal(t, pkgerrors.CodeForbidden, coded.Code())
	assert.True(t, balanceOf(t, db, buyer.ID).Equal(decimal.RequireFromString("100.00")))
}

func TestRechargeApprovalPaysReferralCommission(t *testing.T) {
	svc, db, ob := setupPurchaseTest(t)
	ctx := context.Background()

	code := "DIST1234"
	distributor := seedAccount(t, db, enums.UserRoleDistributor, "0")
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", distributor.ID).
		Update("referral_code", code).Error)
	buyer := seedAccount(t, db, enums.UserRoleStandard, "0")
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", buyer.ID).
		Update("referred_by", distributor.ID).Error)

	pending, err := svc.RequestRecharge(ctx, buyer.ID, decimal.RequireFromString("50.00"), "yape")
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusPending, pending.Status)
	assert.True(t, balanceOf(t, db, buyer.ID).IsZero(), "pending recharge must not move balance")

	approved, err := svc.ApproveRecharge(ctx, buyer.ID, pending.OrderCode)
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusCompleted, approved.Status)

	assert.True(t, balanceOf(t, db, buyer.ID).Equal(decimal.RequireFromString("50.00")))
	assert.True(t, balanceOf(t, db, distributor.ID).Equal(decimal.RequireFromString("5.00")),
		"distributor takes 10%% of the first recharge")

	var commission models.Transaction
	require.NoError(t, db.First(&commission, "user_id = ? AND kind = ?",
		distributor.ID, enums.TransactionKindCommission).Error)
	require.NotNil(t, commission.CounterpartyTransactionID)
	assert.Equal(t, approved.ID, *commission.CounterpartyTransactionID)

	assert.True(t, ob.has(enums.EventTransactionApproved))

	// Re-approval is a state machine re-entry.
	_, err = svc.ApproveRecharge(ctx, buyer.ID, pending.OrderCode)
	coded := pkgerrors.As(err)
	require.NotNil(t, coded)
	assert.Equal(t, pkgerrors.CodeAlreadyProcessed, coded.Code())
}

func TestRejectRechargeLeavesBalance(t *testing.T) {
	svc, db, _ := setupPurchaseTest(t)
	ctx := context.Background()
	buyer := seedAccount(t, db, enums.UserRoleStandard, "0")

	pending, err := svc.RequestRecharge(ctx, buyer.ID, decimal.RequireFromString("25.00"), "binance")
	require.NoError(t, err)

	rejected, err := svc.RejectRecharge(ctx, buyer.ID, pending.ID.String())
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusRejected, rejected.Status)
	assert.True(t, balanceOf(t, db, buyer.ID).IsZero())
}
