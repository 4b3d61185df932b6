package migrations

import (
	"github.com/gfranca/troca-api/internal/exchange"
	"gorm.io/gorm"
)

// AddLedgerIndexes creates both append-only ledger tables and the indexes
// backing their descending time-ordered reads.
func AddLedgerIndexes(db *gorm.DB) error {
	if err := db.AutoMigrate(&exchange.HistoryEntry{}); err != nil {
		return err
	}
	if err := db.AutoMigrate(&exchange.Extension{}); err != nil {
		return err
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_history_entries_exchange_time
		 ON history_entries(exchange_id, created_at)`,

		`CREATE INDEX IF NOT EXISTS idx_extensions_exchange_time
		 ON extensions(exchange_id, created_at)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
