package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base is the shared foundation for domain repositories: it binds a GORM
// connection and hands out context-scoped handles.
type Base struct {
	db *gorm.DB
}

// NewBase constructs a Base backed by the provided GORM connection.
func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the GORM connection bound to the supplied context (if any).
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Rebind returns a Base bound to tx, or the receiver when tx is nil.
// Repositories use it to implement WithTx without touching their own fields.
func (b Base) Rebind(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}
