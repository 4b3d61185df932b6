package database

import (
	"fmt"

	"github.com/gfranca/troca-api/internal/database/migrations"
	"github.com/gfranca/troca-api/internal/exchange"
	"github.com/gfranca/troca-api/internal/supplier"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase(path string) (*gorm.DB, error) {
	if path == "" {
		path = "troca.db"
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := migrations.AddExchangeIndexes(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := migrations.AddLedgerIndexes(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Auto-migrate other schemas
	err = db.AutoMigrate(
		&supplier.Supplier{},
		&exchange.Item{},
		&exchange.Budget{},
		&exchange.DraftInvoice{},
		&exchange.ReturnInvoice{},
		&exchange.ItemDisposition{},
		&exchange.Restock{},
		&exchange.Discount{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
