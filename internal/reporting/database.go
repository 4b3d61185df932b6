package reporting

import (
	"time"

	"github.com/gfranca/troca-api/internal/exchange"
	"github.com/gfranca/troca-api/internal/types"
	"github.com/gfranca/troca-api/pkg/apperror"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// StatusCounts groups all exchanges by status.
func (d *Database) StatusCounts() (map[string]int64, int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	if err := d.db.Model(&exchange.Exchange{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, 0, apperror.Persistence(err, "failed to count exchanges by status")
	}

	byStatus := make(map[string]int64, len(rows))
	var total int64
	for _, r := range rows {
		byStatus[r.Status] = r.Count
		total += r.Count
	}
	return byStatus, total, nil
}

// financialRow carries only the monetary columns needed for the rollups.
type financialRow struct {
	TotalValue     decimal.Decimal
	RecoveredValue decimal.Decimal
}

// ResolvedFinancials returns recovered values of resolved exchanges
// within the optional half-open creation window [from, before).
func (d *Database) ResolvedFinancials(from, before *time.Time) ([]financialRow, error) {
	return d.financials(from, before, true)
}

// InProcessFinancials returns total values of unresolved exchanges within
// the optional half-open creation window [from, before).
func (d *Database) InProcessFinancials(from, before *time.Time) ([]financialRow, error) {
	return d.financials(from, before, false)
}

// Sums run in Go over exact decimals rather than in SQL, so absent
// amounts scan as zero and never poison a sum.
func (d *Database) financials(from, before *time.Time, resolved bool) ([]financialRow, error) {
	query := d.db.Model(&exchange.Exchange{}).
		Select("total_value, recovered_value")
	if resolved {
		query = query.Where("status = ?", types.StatusResolved)
	} else {
		query = query.Where("status != ?", types.StatusResolved)
	}
	if from != nil {
		query = query.Where("created_at >= ?", *from)
	}
	if before != nil {
		query = query.Where("created_at < ?", *before)
	}

	var rows []financialRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, apperror.Persistence(err, "failed to fetch financial rollup rows")
	}
	return rows, nil
}

// OverdueCount counts exchanges past their alert deadline. The deadline
// is compared against now directly; the stored overdue flag is never
// trusted here, and resolved exchanges are always excluded.
func (d *Database) OverdueCount(now time.Time) (int64, error) {
	var count int64
	if err := d.db.Model(&exchange.Exchange{}).
		Where("status != ? AND alert_deadline IS NOT NULL AND alert_deadline < ?",
			types.StatusResolved, now).
		Count(&count).Error; err != nil {
		return 0, apperror.Persistence(err, "failed to count overdue exchanges")
	}
	return count, nil
}
