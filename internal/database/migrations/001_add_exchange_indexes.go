package migrations

import (
	"github.com/gfranca/troca-api/internal/exchange"
	"gorm.io/gorm"
)

// AddExchangeIndexes creates the exchange tables and the indexes the list
// and dashboard queries lean on.
func AddExchangeIndexes(db *gorm.DB) error {
	if err := db.AutoMigrate(&exchange.Exchange{}); err != nil {
		return err
	}

	// Using raw SQL for index creation to have more control over index types
	indexes := []string{
		// Index for status filtering and the status-count rollup
		`CREATE INDEX IF NOT EXISTS idx_exchanges_status
		 ON exchanges(status)`,

		// Index for per-supplier list queries
		`CREATE INDEX IF NOT EXISTS idx_exchanges_supplier
		 ON exchanges(supplier_id)`,

		// Composite index for the overdue scan (deadline vs now, excluding resolved)
		`CREATE INDEX IF NOT EXISTS idx_exchanges_deadline
		 ON exchanges(status, alert_deadline)`,

		// Index for creation-window financial rollups
		`CREATE INDEX IF NOT EXISTS idx_exchanges_created
		 ON exchanges(created_at)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
