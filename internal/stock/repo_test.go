package stock

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// The capacity pre-scan and the record writes share one transaction; the
// scan must lock the rows it reads or two concurrent purchases of the same
// product can both pass the scan and oversell the pool.
func TestListSellableByProductLocksRows(t *testing.T) {
	sqlDB, err := sql.Open("postgres", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)

	var captured string
	err = gdb.Callback().Query().After("gorm:query").Register("capture_sql", func(tx *gorm.DB) {
		captured = tx.Statement.SQL.String()
	})
	require.NoError(t, err)

	repo := NewRepository(gdb)
	_, err = repo.ListSellableByProduct(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Contains(t, captured, "FOR UPDATE")
}
