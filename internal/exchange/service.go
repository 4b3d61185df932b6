package exchange

import (
	"time"

	"github.com/gfranca/troca-api/internal/deadline"
	"github.com/gfranca/troca-api/internal/financial"
	"github.com/gfranca/troca-api/internal/types"
	"github.com/gfranca/troca-api/pkg/apperror"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service owns the exchange state machine. Every trigger is one atomic
// transaction: status, sub-records, financials and the audit trail either
// all land or none do.
type Service struct {
	db  *Database
	now func() time.Time
}

// NewService creates a new exchange service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db:  NewDatabase(gormDB),
		now: time.Now,
	}
}

// WithClock overrides the wall clock for the service and its store, used
// by tests to pin deadlines and ledger timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.db.now = now
	return s
}

// ItemInput describes one defective line item at creation time.
type ItemInput struct {
	ItemCode    string          `json:"item_code"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitValue   decimal.Decimal `json:"unit_value"`
}

// BudgetInput is the optional budget attached at creation or upserted later.
type BudgetInput struct {
	TotalValue     decimal.Decimal `json:"total_value"`
	SentToSupplier bool            `json:"sent_to_supplier"`
}

// CreateExchangeInput is the payload for opening a new exchange.
type CreateExchangeInput struct {
	SupplierID       string       `json:"supplier_id"`
	CompensationType *string      `json:"compensation_type"`
	Items            []ItemInput  `json:"items"`
	Budget           *BudgetInput `json:"budget"`
}

// CreateExchange opens a new exchange in BUDGET status with the initial
// fifteen-day alert deadline and the first audit entry.
func (s *Service) CreateExchange(input CreateExchangeInput) (*Exchange, error) {
	logger := log.With().
		Str("supplier_id", input.SupplierID).
		Str("service", "exchange").
		Logger()

	if input.SupplierID == "" {
		return nil, apperror.ValidationFailed("supplier is required")
	}
	if len(input.Items) == 0 {
		return nil, apperror.ValidationFailed("at least one item is required")
	}
	if input.CompensationType != nil && !types.ValidCompensation(*input.CompensationType) {
		return nil, apperror.ValidationFailed("unknown compensation type %q", *input.CompensationType)
	}

	now := s.now()
	exchangeID := "TRC_" + uuid.New().String()
	initialDeadline := deadline.Initial(now)

	e := &Exchange{
		ExchangeID:       exchangeID,
		SupplierID:       input.SupplierID,
		Status:           types.StatusBudget,
		CompensationType: input.CompensationType,
		AlertDeadline:    &initialDeadline,
		Overdue:          false,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	for _, item := range input.Items {
		if item.Quantity <= 0 {
			return nil, apperror.ValidationFailed("item %s: quantity must be positive", item.ItemCode)
		}
		if item.UnitValue.IsNegative() {
			return nil, apperror.ValidationFailed("item %s: unit value cannot be negative", item.ItemCode)
		}
		e.Items = append(e.Items, Item{
			ItemID:      "ITM_" + uuid.New().String(),
			ExchangeID:  exchangeID,
			ItemCode:    item.ItemCode,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitValue:   item.UnitValue,
			LineTotal:   item.UnitValue.Mul(decimal.NewFromInt(int64(item.Quantity))),
			CreatedAt:   now,
		})
	}

	if input.Budget != nil {
		if input.Budget.TotalValue.IsNegative() {
			return nil, apperror.ValidationFailed("budget total cannot be negative")
		}
		e.Budget = &Budget{
			BudgetID:       "ORC_" + uuid.New().String(),
			ExchangeID:     exchangeID,
			TotalValue:     input.Budget.TotalValue,
			SentToSupplier: input.Budget.SentToSupplier,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	}

	s.applyFinancials(e)

	e.History = append(e.History, HistoryEntry{
		EntryID:    "HST_" + uuid.New().String(),
		ExchangeID: exchangeID,
		Field:      types.FieldStatus,
		OldValue:   nil,
		NewValue:   types.StatusBudget,
		CreatedAt:  now,
	})
	if input.CompensationType != nil {
		e.History = append(e.History, HistoryEntry{
			EntryID:    "HST_" + uuid.New().String(),
			ExchangeID: exchangeID,
			Field:      types.FieldCompensationType,
			OldValue:   nil,
			NewValue:   *input.CompensationType,
			CreatedAt:  now,
		})
	}

	if err := s.db.CreateExchange(e); err != nil {
		logger.Error().Err(err).Msg("failed to create exchange")
		return nil, err
	}

	logger.Info().
		Str("exchange_id", e.ExchangeID).
		Int("items", len(e.Items)).
		Time("alert_deadline", initialDeadline).
		Msg("exchange created")

	return s.db.GetExchange(exchangeID)
}

// GetExchange retrieves the full aggregate. The overdue flag in the
// response is recomputed against the current clock rather than read back
// from the stored column, so it is never stale.
func (s *Service) GetExchange(exchangeID string) (*Exchange, error) {
	e, err := s.db.GetExchange(exchangeID)
	if err != nil {
		return nil, err
	}
	e.Overdue = deadline.IsOverdue(e.AlertDeadline, e.Status, s.now())
	return e, nil
}

// ListExchanges returns exchanges matching the filters with read-time
// overdue recomputation.
func (s *Service) ListExchanges(filters ListFilters) ([]Exchange, error) {
	now := s.now()
	exchanges, err := s.db.ListExchanges(filters, now)
	if err != nil {
		return nil, err
	}
	for i := range exchanges {
		exchanges[i].Overdue = deadline.IsOverdue(exchanges[i].AlertDeadline, exchanges[i].Status, now)
	}
	return exchanges, nil
}

// UpdateExchangeInput is the direct-override payload.
type UpdateExchangeInput struct {
	Status           *string `json:"status"`
	CompensationType *string `json:"compensation_type"`
}

// UpdateExchange is the manual override path: it sets status and/or
// compensation type directly, still writing one audit entry per changed
// field. This is the only way into PROBLEM_DIVERGENCE.
func (s *Service) UpdateExchange(exchangeID string, input UpdateExchangeInput) (*Exchange, error) {
	if input.Status == nil && input.CompensationType == nil {
		return nil, apperror.ValidationFailed("nothing to update")
	}
	if input.Status != nil && !types.ValidStatus(*input.Status) {
		return nil, apperror.ValidationFailed("unknown status %q", *input.Status)
	}
	if input.CompensationType != nil && !types.ValidCompensation(*input.CompensationType) {
		return nil, apperror.ValidationFailed("unknown compensation type %q", *input.CompensationType)
	}

	return s.db.Mutate(exchangeID, func(tx *gorm.DB, e *Exchange) error {
		if input.Status != nil && *input.Status != e.Status {
			if err := s.transition(tx, e, *input.Status); err != nil {
				return err
			}
		}
		if input.CompensationType != nil &&
			(e.CompensationType == nil || *e.CompensationType != *input.CompensationType) {
			if err := s.setCompensation(tx, e, *input.CompensationType); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteExchange removes the aggregate and all owned sub-records.
func (s *Service) DeleteExchange(exchangeID string) error {
	if err := s.db.DeleteExchange(exchangeID); err != nil {
		return err
	}
	log.Info().Str("exchange_id", exchangeID).Msg("exchange deleted")
	return nil
}

// RecomputeFinancials re-derives total, recovered and pending from the
// stored budget and status. Running it twice with unchanged inputs stores
// identical values, which is what the reconciliation pass relies on.
func (s *Service) RecomputeFinancials(exchangeID string) (*Exchange, error) {
	return s.db.Mutate(exchangeID, func(tx *gorm.DB, e *Exchange) error {
		s.applyFinancials(e)
		return nil
	})
}

// ListExchangeIDs returns every aggregate ID, used by maintenance passes.
func (s *Service) ListExchangeIDs() ([]string, error) {
	return s.db.ListExchangeIDs()
}

// History returns the audit trail, newest first.
func (s *Service) History(exchangeID string, limit int) ([]HistoryEntry, error) {
	if _, err := s.db.GetExchange(exchangeID); err != nil {
		return nil, err
	}
	return s.db.ListHistory(exchangeID, limit)
}

// Extensions returns the deadline postponements, newest first.
func (s *Service) Extensions(exchangeID string, limit int) ([]Extension, error) {
	if _, err := s.db.GetExchange(exchangeID); err != nil {
		return nil, err
	}
	return s.db.ListExtensions(exchangeID, limit)
}

// applyFinancials recomputes the three derived monetary fields from the
// current budget and status.
func (s *Service) applyFinancials(e *Exchange) {
	var budgetTotal *decimal.Decimal
	if e.Budget != nil {
		budgetTotal = &e.Budget.TotalValue
	}
	e.TotalValue = financial.TotalValue(budgetTotal)
	e.RecoveredValue = financial.RecoveredValue(e.Status, e.TotalValue)
	e.PendingValue = financial.PendingValue(e.TotalValue, e.RecoveredValue)
}

// transition moves the exchange to newStatus, appends the audit entry in
// the same transaction and recomputes financials. Entering RESOLVED
// always clears the overdue flag: resolved work is never late.
func (s *Service) transition(tx *gorm.DB, e *Exchange, newStatus string) error {
	old := e.Status
	if old == newStatus {
		// No field change, so no audit entry. Derived values still refresh.
		if newStatus == types.StatusResolved {
			e.Overdue = false
		}
		s.applyFinancials(e)
		return nil
	}
	if err := appendHistory(tx, e.ExchangeID, types.FieldStatus, &old, newStatus, s.now()); err != nil {
		return err
	}
	e.Status = newStatus
	if newStatus == types.StatusResolved {
		e.Overdue = false
	}
	s.applyFinancials(e)

	log.Debug().
		Str("exchange_id", e.ExchangeID).
		Str("old_status", old).
		Str("new_status", newStatus).
		Msg("status transition")
	return nil
}

// setCompensation changes the compensation type with its own audit entry.
func (s *Service) setCompensation(tx *gorm.DB, e *Exchange, newType string) error {
	old := e.CompensationType
	if err := appendHistory(tx, e.ExchangeID, types.FieldCompensationType, old, newType, s.now()); err != nil {
		return err
	}
	e.CompensationType = &newType
	return nil
}
