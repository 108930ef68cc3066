package referrals

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/credenza-market/credenza-backend/internal/ledger"
	"github.com/credenza-market/credenza-backend/pkg/db/models"
	"github.com/credenza-market/credenza-backend/pkg/enums"
	"github.com/credenza-market/credenza-backend/pkg/outbox"
)

const usersSchema = `
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
);`

const transactionsSchema = `
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
);`

type fakeOutbox struct {
	events []outbox.DomainEvent
}

func (f *fakeOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	f.events = append(f.events, event)
	return nil
}

func setupReferralTest(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	dsn := "file:referrals_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(usersSchema).Error)
	require.NoError(t, db.Exec(transactionsSchema).Error)

	ledgerRepo := ledger.NewRepository(db)
	ledgerSvc, err := ledger.NewService(ledgerRepo)
	require.NoError(t, err)

	svc, err := NewService(ledgerRepo, ledgerSvc, &fakeOutbox{})
	require.NoError(t, err)
	return svc, db
}

func seedReferralPair(t *testing.T, db *gorm.DB, referrerRole enums.UserRole) (buyer, referrer *models.User) {
	t.Helper()
	code := "REF-" + uuid.NewString()[:8]
	referrer = &models.User{
		ID:           uuid.New(),
		Email:        uuid.NewString() + "@example.com",
		Role:         referrerRole,
		ReferralCode: &code,
	}
	require.NoError(t, db.Create(referrer).Error)

	buyer = &models.User{
		ID:         uuid.New(),
		Email:      uuid.NewString() + "@example.com",
		Role:       enums.UserRoleStandard,
		ReferredBy: &referrer.ID,
	}
	require.NoError(t, db.Create(buyer).Error)
	return buyer, referrer
}

func completedRecharge(user *models.User, amount string) *models.Transaction {
	return &models.Transaction{
		ID:        uuid.New(),
		UserID:    user.ID,
		OrderCode: ledger.NewOrderCode(),
		Direction: enums.TransactionDirectionCredit,
		Kind:      enums.TransactionKindRecharge,
		Status:    enums.TransactionStatusCompleted,
		Amount:    decimal.RequireFromString(amount),
	}
}

func TestCommissionRateTable(t *testing.T) {
	cases := []struct {
		role enums.UserRole
		want string
	}{
		{enums.UserRoleDistributorPremium, "0.15"},
		{enums.UserRoleDistributor, "0.10"},
		{enums.UserRoleProvider, "0.10"},
		{enums.UserRoleProviderPremium, "0"},
		{enums.UserRoleStandard, "0"},
		{enums.UserRoleAdmin, "0"},
	}
	for _, tc := range cases {
		t.Run(string(tc.role), func(t *testing.T) {
			assert.True(t, CommissionRate(tc.role).Equal(decimal.RequireFromString(tc.want)),
				"rate for %s", tc.role)
		})
	}
}

func TestFirstRechargePaysDistributorTenPercent(t *testing.T) {
	svc, db := setupReferralTest(t)
	ctx := context.Background()
	buyer, referrer := seedReferralPair(t, db, enums.UserRoleDistributor)

	recharge := completedRecharge(buyer, "50.00")
	require.NoError(t, db.Create(recharge).Error)

	var commission *models.Transaction
	err := db.Transaction(func(tx *gorm.DB) error {
		var terr error
		commission, terr = svc.OnCreditCompleted(ctx, tx, recharge)
		return terr
	})
	require.NoError(t, err)
	require.NotNil(t, commission)
	assert.True(t, commission.Amount.Equal(decimal.RequireFromString("5.00")),
		"commission = %s, want 5.00", commission.Amount)
	assert.Equal(t, enums.TransactionKindCommission, commission.Kind)
	assert.Equal(t, referrer.ID, commission.UserID)
	require.NotNil(t, commission.CounterpartyTransactionID)
	assert.Equal(t, recharge.ID, *commission.CounterpartyTransactionID)

	var reloaded models.User
	require.NoError(t, db.First(&reloaded, "id = ?", referrer.ID).Error)
	assert.True(t, reloaded.Balance.Equal(decimal.RequireFromString("5.00")))
}

func TestPremiumDistributorGetsFifteenPercent(t *testing.T) {
	svc, db := setupReferralTest(t)
	ctx := context.Background()
	buyer, _ := seedReferralPair(t, db, enums.UserRoleDistributorPremium)

	recharge := completedRecharge(buyer, "100.00")
	require.NoError(t, db.Create(recharge).Error)

	var commission *models.Transaction
	err := db.Transaction(func(tx *gorm.DB) error {
		var terr error
		commission, terr = svc.OnCreditCompleted(ctx, tx, recharge)
		return terr
	})
	require.NoError(t, err)
	require.NotNil(t, commission)
	assert.True(t, commission.Amount.Equal(decimal.RequireFromString("15.00")))
}

func TestSecondRechargeNeverPays(t *testing.T) {
	svc, db := setupReferralTest(t)
	ctx := context.Background()
	buyer, _ := seedReferralPair(t, db, enums.UserRoleDistributor)

	first := completedRecharge(buyer, "50.00")
	require.NoError(t, db.Create(first).Error)
	second := completedRecharge(buyer, "80.00")
	require.NoError(t, db.Create(second).Error)

	var commission *models.Transaction
	err := db.Transaction(func(tx *gorm.DB) error {
		var terr error
		commission, terr = svc.OnCreditCompleted(ctx, tx, second)
		return terr
	})
	require.NoError(t, err)
	assert.Nil(t, commission, "second recharge must not pay commission")
}

func TestNoReferrerNoCommission(t *testing.T) {
	svc, db := setupReferralTest(t)
	ctx := context.Background()
	buyer := &models.User{ID: uuid.New(), Email: "solo@example.com", Role: enums.UserRoleStandard}
	require.NoError(t, db.Create(buyer).Error)

	recharge := completedRecharge(buyer, "50.00")
	require.NoError(t, db.Create(recharge).Error)

	var commission *models.Transaction
	err := db.Transaction(func(tx *gorm.DB) error {
		var terr error
		commission, terr = svc.OnCreditCompleted(ctx, tx, recharge)
		return terr
	})
	require.NoError(t, err)
	assert.Nil(t, commission)
}

func TestZeroRateRoleNoEntry(t *testing.T) {
	svc, db := setupReferralTest(t)
	ctx := context.Background()
	buyer, referrer := seedReferralPair(t, db, enums.UserRoleStandard)

	recharge := completedRecharge(buyer, "50.00")
	require.NoError(t, db.Create(recharge).Error)

	err := db.Transaction(func(tx *gorm.DB) error {
		commission, terr := svc.OnCreditCompleted(ctx, tx, recharge)
		assert.Nil(t, commission)
		return terr
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Transaction{}).
		Where("user_id = ?", referrer.ID).Count(&count).Error)
	assert.Zero(t, count, "zero-rate referrer must not receive an entry")
}

func TestPendingCreditDoesNotFire(t *testing.T) {
	svc, db := setupReferralTest(t)
	ctx := context.Background()
	buyer, _ := seedReferralPair(t, db, enums.UserRoleDistributor)

	pending := completedRecharge(buyer, "50.00")
	pending.Status = enums.TransactionStatusPending
	require.NoError(t, db.Create(pending).Error)

	err := db.Transaction(func(tx *gorm.DB) error {
		commission, terr := svc.OnCreditCompleted(ctx, tx, pending)
		assert.Nil(t, commission)
		return terr
	})
	require.NoError(t, err)
}
