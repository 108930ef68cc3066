package ledger

import (
	"context"
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
	"github.com/credenza-market/credenza-backend/pkg/pagination"
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

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:ledger_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(usersSchema).Error)
	require.NoError(t, db.Exec(transactionsSchema).Error)
	return db
}

func seedUser(t *testing.T, db *gorm.DB, balance string) *models.User {
	t.Helper()
	user := &models.User{
		ID:      uuid.New(),
		Email:   uuid.NewString() + "@example.com",
		Balance: decimal.RequireFromString(balance),
		Role:    enums.UserRoleStandard,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestRepository_AdjustBalanceGuard(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	user := seedUser(t, db, "50.00")

	applied, err := repo.AdjustBalance(ctx, user.ID, decimal.RequireFromString("-30.00"))
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = repo.AdjustBalance(ctx, user.ID, decimal.RequireFromString("-30.00"))
	require.NoError(t, err)
	assert.False(t, applied, "debit below zero must be rejected")

	reloaded, err := repo.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded)
	assert.True(t, reloaded.Balance.Equal(decimal.RequireFromString("20.00")),
		"balance should be 20.00, got %s", reloaded.Balance)
}

func TestRepository_AdjustBalanceMissingUser(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)

	applied, err := repo.AdjustBalance(context.Background(), uuid.New(), decimal.NewFromInt(5))
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestRepository_FindByUserAndIdentifier(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	user := seedUser(t, db, "0")

	legacy := int64(1694021523000)
	rows := []*models.Transaction{
		{
			ID:        uuid.New(),
			UserID:    user.ID,
			OrderCode: "ORD-MODERNROW",
			Direction: enums.TransactionDirectionCredit,
			Kind:      enums.TransactionKindRecharge,
			Status:    enums.TransactionStatusCompleted,
			Amount:    decimal.NewFromInt(10),
		},
		{
			ID:        uuid.New(),
			UserID:    user.ID,
			OrderCode: "ORD-1694021523000",
			LegacyID:  &legacy,
			Direction: enums.TransactionDirectionDebit,
			Kind:      enums.TransactionKindPurchase,
			Status:    enums.TransactionStatusCompleted,
			Amount:    decimal.NewFromInt(4),
		},
	}
	for _, row := range rows {
		require.NoError(t, repo.Create(ctx, row))
	}

	byUUID, err := repo.FindByUserAndIdentifier(ctx, user.ID, rows[0].ID.String())
	require.NoError(t, err)
	require.NotNil(t, byUUID)
	assert.Equal(t, rows[0].ID, byUUID.ID)

	byCode, err := repo.FindByUserAndIdentifier(ctx, user.ID, "ORD-MODERNROW")
	require.NoError(t, err)
	require.NotNil(t, byCode)
	assert.Equal(t, rows[0].ID, byCode.ID)

	// Legacy numeric timestamp id, provided as a string.
	byLegacy, err := repo.FindByUserAndIdentifier(ctx, user.ID, "1694021523000")
	require.NoError(t, err)
	require.NotNil(t, byLegacy)
	assert.Equal(t, rows[1].ID, byLegacy.ID)

	missing, err := repo.FindByUserAndIdentifier(ctx, user.ID, "ORD-UNKNOWN")
	require.NoError(t, err)
	assert.Nil(t, missing)

	otherUser, err := repo.FindByUserAndIdentifier(ctx, uuid.New(), "ORD-MODERNROW")
	require.NoError(t, err)
	assert.Nil(t, otherUser, "lookups are scoped to the owning user")
}

func TestRepository_HasCompletedCredit(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	user := seedUser(t, db, "0")

	first := &models.Transaction{
		ID:        uuid.New(),
		UserID:    user.ID,
		OrderCode: "ORD-FIRST",
		Direction: enums.TransactionDirectionCredit,
		Kind:      enums.TransactionKindRecharge,
		Status:    enums.TransactionStatusCompleted,
		Amount:    decimal.NewFromInt(50),
	}
	require.NoError(t, repo.Create(ctx, first))

	has, err := repo.HasCompletedCredit(ctx, user.ID, uuid.Nil)
	require.NoError(t, err)
	assert.True(t, has)

	// Excluding the only completed credit means no prior one exists.
	has, err = repo.HasCompletedCredit(ctx, user.ID, first.ID)
	require.NoError(t, err)
	assert.False(t, has)

	pending := &models.Transaction{
		ID:        uuid.New(),
		UserID:    user.ID,
		OrderCode: "ORD-PENDING",
		Direction: enums.TransactionDirectionCredit,
		Kind:      enums.TransactionKindRecharge,
		Status:    enums.TransactionStatusPending,
		Amount:    decimal.NewFromInt(25),
	}
	require.NoError(t, repo.Create(ctx, pending))

	has, err = repo.HasCompletedCredit(ctx, user.ID, first.ID)
	require.NoError(t, err)
	assert.False(t, has, "pending credits must not count")
}

func TestRepository_ListByUserNewestFirst(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	user := seedUser(t, db, "0")

	older := &models.Transaction{
		ID:        uuid.New(),
		UserID:    user.ID,
		OrderCode: "ORD-OLD",
		Direction: enums.TransactionDirectionCredit,
		Kind:      enums.TransactionKindRecharge,
		Status:    enums.TransactionStatusCompleted,
		Amount:    decimal.NewFromInt(1),
		CreatedAt: time.Now().Add(-time.Hour),
	}
	newer := &models.Transaction{
		ID:        uuid.New(),
		UserID:    user.ID,
		OrderCode: "ORD-NEW",
		Direction: enums.TransactionDirectionDebit,
		Kind:      enums.TransactionKindPurchase,
		Status:    enums.TransactionStatusCompleted,
		Amount:    decimal.NewFromInt(2),
		CreatedAt: time.Now(),
	}
	require.NoError(t, db.Create(older).Error)
	require.NoError(t, db.Create(newer).Error)

	txns, err := repo.ListByUser(ctx, user.ID, nil, 0)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "ORD-NEW", txns[0].OrderCode)
	assert.Equal(t, "ORD-OLD", txns[1].OrderCode)

	// keyset cursor resumes after the newest row
	page, err := repo.ListByUser(ctx, user.ID, &pagination.Cursor{
		CreatedAt: txns[0].CreatedAt,
		ID:        txns[0].ID,
	}, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "ORD-OLD", page[0].OrderCode)
}
