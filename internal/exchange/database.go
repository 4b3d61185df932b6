package exchange

import (
	"errors"
	"time"

	"github.com/gfranca/troca-api/internal/deadline"
	"github.com/gfranca/troca-api/internal/types"
	"github.com/gfranca/troca-api/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Database struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db, now: time.Now}
}

// preloadAll attaches every owned sub-record plus the supplier reference.
// The history ledger is ordered newest first, its canonical read order;
// id breaks ties between rows written in the same instant.
func preloadAll(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Supplier").
		Preload("Items").
		Preload("Budget").
		Preload("DraftInvoice").
		Preload("ReturnInvoice").
		Preload("Disposition").
		Preload("Restock").
		Preload("Discount").
		Preload("History", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at DESC, id DESC")
		}).
		Preload("Extensions", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at DESC, id DESC")
		})
}

// CreateExchange persists a new aggregate with its items, optional budget
// and initial history entry in a single transaction.
func (d *Database) CreateExchange(e *Exchange) error {
	if err := d.db.Create(e).Error; err != nil {
		return apperror.Persistence(err, "failed to create exchange")
	}
	return nil
}

// GetExchange retrieves the full aggregate by its ID
func (d *Database) GetExchange(exchangeID string) (*Exchange, error) {
	var e Exchange
	if err := preloadAll(d.db).Where("exchange_id = ?", exchangeID).First(&e).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("exchange %s not found", exchangeID)
		}
		return nil, apperror.Persistence(err, "failed to fetch exchange")
	}
	return &e, nil
}

// ListFilters narrows the exchange list query.
type ListFilters struct {
	Status      string
	SupplierID  string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Special     string // "overdue", "in_progress" or "resolved"
}

// ListExchanges returns exchanges matching the filters, most recently
// updated first. The overdue special filter compares the deadline against
// now directly instead of trusting the persisted flag.
func (d *Database) ListExchanges(filters ListFilters, now time.Time) ([]Exchange, error) {
	query := d.db.
		Preload("Supplier").
		Preload("Items").
		Preload("Budget")

	switch filters.Special {
	case "overdue":
		query = query.Where("status != ? AND alert_deadline IS NOT NULL AND alert_deadline < ?",
			types.StatusResolved, now)
	case "in_progress":
		query = query.Where("status != ?", types.StatusResolved)
	case "resolved":
		query = query.Where("status = ?", types.StatusResolved)
	}

	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}
	if filters.SupplierID != "" {
		query = query.Where("supplier_id = ?", filters.SupplierID)
	}
	if filters.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filters.CreatedFrom)
	}
	if filters.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filters.CreatedTo)
	}

	var exchanges []Exchange
	if err := query.Order("updated_at DESC").Find(&exchanges).Error; err != nil {
		return nil, apperror.Persistence(err, "failed to list exchanges")
	}
	return exchanges, nil
}

// DeleteExchange removes the aggregate and everything it owns in one
// transaction. The supplier reference is left untouched.
func (d *Database) DeleteExchange(exchangeID string) error {
	var e Exchange
	if err := d.db.Where("exchange_id = ?", exchangeID).First(&e).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("exchange %s not found", exchangeID)
		}
		return apperror.Persistence(err, "failed to fetch exchange")
	}

	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return apperror.Persistence(err, "failed to start transaction")
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	owned := []interface{}{
		&Item{}, &Budget{}, &DraftInvoice{}, &ReturnInvoice{},
		&ItemDisposition{}, &Restock{}, &Discount{}, &HistoryEntry{}, &Extension{},
	}
	for _, model := range owned {
		if err := tx.Where("exchange_id = ?", exchangeID).Delete(model).Error; err != nil {
			tx.Rollback()
			return apperror.Persistence(err, "failed to delete exchange sub-records")
		}
	}

	if err := tx.Delete(&e).Error; err != nil {
		tx.Rollback()
		return apperror.Persistence(err, "failed to delete exchange")
	}

	if err := tx.Commit().Error; err != nil {
		return apperror.Persistence(err, "failed to commit delete")
	}
	return nil
}

// Mutate runs one state-machine trigger as a single atomic unit. It loads
// the aggregate inside the transaction, hands it to fn for sub-record
// writes and field mutations, then saves the exchange row guarded by an
// optimistic version check. Two concurrent triggers on the same exchange
// cannot both commit: the loser hits the version check and gets a
// conflict error.
func (d *Database) Mutate(exchangeID string, fn func(tx *gorm.DB, e *Exchange) error) (*Exchange, error) {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return nil, apperror.Persistence(err, "failed to start transaction")
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var e Exchange
	if err := preloadAll(tx).Where("exchange_id = ?", exchangeID).First(&e).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("exchange %s not found", exchangeID)
		}
		return nil, apperror.Persistence(err, "failed to fetch exchange")
	}

	loadedVersion := e.Version

	if err := fn(tx, &e); err != nil {
		tx.Rollback()
		return nil, err
	}

	res := tx.Model(&Exchange{}).
		Where("exchange_id = ? AND version = ?", exchangeID, loadedVersion).
		Updates(map[string]interface{}{
			"status":            e.Status,
			"compensation_type": e.CompensationType,
			"alert_deadline":    e.AlertDeadline,
			"overdue":           e.Overdue,
			"total_value":       e.TotalValue,
			"recovered_value":   e.RecoveredValue,
			"pending_value":     e.PendingValue,
			"finalized_at":      e.FinalizedAt,
			"version":           loadedVersion + 1,
			"updated_at":        d.now(),
		})
	if res.Error != nil {
		tx.Rollback()
		return nil, apperror.Persistence(res.Error, "failed to save exchange")
	}
	if res.RowsAffected == 0 {
		tx.Rollback()
		return nil, apperror.Conflict("exchange %s was modified concurrently", exchangeID)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, apperror.Persistence(err, "failed to commit transaction")
	}

	out, err := d.GetExchange(exchangeID)
	if err != nil {
		return nil, err
	}
	// Trigger responses carry the same read-time overdue computation as
	// plain reads, not the stored flag.
	out.Overdue = deadline.IsOverdue(out.AlertDeadline, out.Status, d.now())
	return out, nil
}

// appendHistory writes one audit row inside the caller's transaction. A
// failure here aborts the whole trigger: no state change lands without
// its audit trail.
func appendHistory(tx *gorm.DB, exchangeID, field string, oldValue *string, newValue string, now time.Time) error {
	entry := &HistoryEntry{
		EntryID:    "HST_" + uuid.New().String(),
		ExchangeID: exchangeID,
		Field:      field,
		OldValue:   oldValue,
		NewValue:   newValue,
		CreatedAt:  now,
	}
	if err := tx.Create(entry).Error; err != nil {
		return apperror.Persistence(err, "failed to append history entry")
	}
	return nil
}

// appendExtension writes one deadline postponement row inside the
// caller's transaction.
func appendExtension(tx *gorm.DB, exchangeID string, previous, next time.Time, daysAdded int, reason *string, now time.Time) error {
	ext := &Extension{
		ExtensionID:      "EXT_" + uuid.New().String(),
		ExchangeID:       exchangeID,
		PreviousDeadline: previous,
		NewDeadline:      next,
		DaysAdded:        daysAdded,
		Reason:           reason,
		CreatedAt:        now,
	}
	if err := tx.Create(ext).Error; err != nil {
		return apperror.Persistence(err, "failed to append extension record")
	}
	return nil
}

// ListHistory returns the audit trail newest first, optionally limited.
func (d *Database) ListHistory(exchangeID string, limit int) ([]HistoryEntry, error) {
	query := d.db.Where("exchange_id = ?", exchangeID).Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var entries []HistoryEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, apperror.Persistence(err, "failed to list history")
	}
	return entries, nil
}

// ListExtensions returns deadline postponements newest first, optionally limited.
func (d *Database) ListExtensions(exchangeID string, limit int) ([]Extension, error) {
	query := d.db.Where("exchange_id = ?", exchangeID).Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var extensions []Extension
	if err := query.Find(&extensions).Error; err != nil {
		return nil, apperror.Persistence(err, "failed to list extensions")
	}
	return extensions, nil
}

// ListExchangeIDs returns every aggregate ID, used by the reconciliation
// pass in cmd/reconcile.
func (d *Database) ListExchangeIDs() ([]string, error) {
	var ids []string
	if err := d.db.Model(&Exchange{}).Order("created_at ASC").Pluck("exchange_id", &ids).Error; err != nil {
		return nil, apperror.Persistence(err, "failed to list exchange ids")
	}
	return ids, nil
}
