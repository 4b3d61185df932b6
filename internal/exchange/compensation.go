package exchange

import (
	"time"

	"github.com/gfranca/troca-api/internal/deadline"
	"github.com/gfranca/troca-api/internal/types"
	"github.com/gfranca/troca-api/pkg/apperror"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RegisterRestockInput is the payload for registering a product restock.
type RegisterRestockInput struct {
	AgreedValue     decimal.Decimal `json:"agreed_value"`
	ReceivedValue   decimal.Decimal `json:"received_value"`
	IncomingInvoice string          `json:"incoming_invoice"`
}

// RegisterRestock records the supplier replacing the product. The
// compensation type becomes RESTOCK and the status lands on RESOLVED when
// the received value already covers the agreed value, RESTOCK_PARTIAL
// otherwise.
func (s *Service) RegisterRestock(exchangeID string, input RegisterRestockInput) (*Exchange, error) {
	if input.AgreedValue.IsNegative() || input.ReceivedValue.IsNegative() {
		return nil, apperror.ValidationFailed("restock values cannot be negative")
	}

	return s.db.Mutate(exchangeID, func(tx *gorm.DB, e *Exchange) error {
		if e.Restock != nil {
			return apperror.PreconditionFailed("restock already registered")
		}

		now := s.now()
		complete := input.ReceivedValue.GreaterThanOrEqual(input.AgreedValue)
		e.Restock = &Restock{
			RestockID:       "RPS_" + uuid.New().String(),
			ExchangeID:      exchangeID,
			IncomingInvoice: input.IncomingInvoice,
			AgreedValue:     input.AgreedValue,
			ReceivedValue:   input.ReceivedValue,
			ArrivedAt:       &now,
			Complete:        complete,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.Create(e.Restock).Error; err != nil {
			return apperror.Persistence(err, "failed to create restock")
		}

		if e.CompensationType == nil || *e.CompensationType != types.CompensationRestock {
			if err := s.setCompensation(tx, e, types.CompensationRestock); err != nil {
				return err
			}
		}

		newStatus := types.StatusRestockPartial
		if complete {
			newStatus = types.StatusResolved
		}
		return s.transition(tx, e, newStatus)
	})
}

// UpdateRestockInput is the payload for updating an in-flight restock.
type UpdateRestockInput struct {
	ReceivedValue   decimal.Decimal `json:"received_value"`
	IncomingInvoice string          `json:"incoming_invoice"`
	Complete        *bool           `json:"complete"`
}

// UpdateRestock updates the received value of an existing restock. When
// the restock becomes complete the exchange resolves, recording the
// RESTOCK_PARTIAL to RESOLVED transition in the audit trail.
func (s *Service) UpdateRestock(exchangeID string, input UpdateRestockInput) (*Exchange, error) {
	if input.ReceivedValue.IsNegative() {
		return nil, apperror.ValidationFailed("received value cannot be negative")
	}

	return s.db.Mutate(exchangeID, func(tx *gorm.DB, e *Exchange) error {
		if e.Restock == nil {
			return apperror.NotFound("exchange %s has no restock", exchangeID)
		}

		e.Restock.ReceivedValue = input.ReceivedValue
		if input.IncomingInvoice != "" {
			e.Restock.IncomingInvoice = input.IncomingInvoice
		}

		complete := input.ReceivedValue.GreaterThanOrEqual(e.Restock.AgreedValue)
		if input.Complete != nil {
			complete = *input.Complete
		}
		e.Restock.Complete = complete
		e.Restock.UpdatedAt = s.now()
		if err := tx.Save(e.Restock).Error; err != nil {
			return apperror.Persistence(err, "failed to update restock")
		}

		if complete {
			return s.transition(tx, e, types.StatusResolved)
		}
		return nil
	})
}

// RegisterDiscount records a discount on a future purchase as the
// compensation, moving the exchange to AWAITING_DISCOUNT.
func (s *Service) RegisterDiscount(exchangeID string, discountValue decimal.Decimal) (*Exchange, error) {
	if discountValue.IsNegative() {
		return nil, apperror.ValidationFailed("discount value cannot be negative")
	}

	return s.db.Mutate(exchangeID, func(tx *gorm.DB, e *Exchange) error {
		if e.Discount != nil {
			return apperror.PreconditionFailed("discount already registered")
		}

		now := s.now()
		e.Discount = &Discount{
			DiscountID:    "DSC_" + uuid.New().String(),
			ExchangeID:    exchangeID,
			DiscountValue: discountValue,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Create(e.Discount).Error; err != nil {
			return apperror.Persistence(err, "failed to create discount")
		}

		if e.CompensationType == nil || *e.CompensationType != types.CompensationDiscount {
			if err := s.setCompensation(tx, e, types.CompensationDiscount); err != nil {
				return err
			}
		}

		return s.transition(tx, e, types.StatusAwaitingDiscount)
	})
}

// ApplyDiscount marks the registered discount as applied and resolves the
// exchange.
func (s *Service) ApplyDiscount(exchangeID string) (*Exchange, error) {
	return s.db.Mutate(exchangeID, func(tx *gorm.DB, e *Exchange) error {
		if e.Discount == nil {
			return apperror.PreconditionFailed("exchange has no discount to apply")
		}

		now := s.now()
		e.Discount.Applied = true
		e.Discount.InvoiceGenerated = true
		if e.Discount.InvoiceAt == nil {
			e.Discount.InvoiceAt = &now
		}
		e.Discount.UpdatedAt = now
		if err := tx.Save(e.Discount).Error; err != nil {
			return apperror.Persistence(err, "failed to update discount")
		}

		return s.transition(tx, e, types.StatusResolved)
	})
}

// FinalizeExchange runs the full resolution check: invoice issued, item
// collected or discarded, compensation chosen and completed per its type.
// On success the exchange resolves, the finalization timestamp is set
// once, recovered takes the full total and the overdue flag clears.
func (s *Service) FinalizeExchange(exchangeID string) (*Exchange, error) {
	return s.db.Mutate(exchangeID, func(tx *gorm.DB, e *Exchange) error {
		if e.ReturnInvoice == nil || !e.ReturnInvoice.Issued {
			return apperror.PreconditionFailed("return invoice has not been issued")
		}
		if e.Disposition == nil || (!e.Disposition.CollectionDone && !e.Disposition.Discard) {
			return apperror.PreconditionFailed("item destination has not been settled")
		}
		if e.CompensationType == nil {
			return apperror.PreconditionFailed("compensation type has not been set")
		}

		switch *e.CompensationType {
		case types.CompensationRestock:
			if e.Restock == nil || !e.Restock.Complete {
				return apperror.PreconditionFailed("restock is not complete")
			}
		case types.CompensationDiscount:
			if e.Discount == nil || !e.Discount.Applied {
				return apperror.PreconditionFailed("discount has not been applied")
			}
		}

		if e.FinalizedAt == nil {
			now := s.now()
			e.FinalizedAt = &now
		}

		if err := s.transition(tx, e, types.StatusResolved); err != nil {
			return err
		}

		log.Info().
			Str("exchange_id", e.ExchangeID).
			Str("compensation_type", *e.CompensationType).
			Str("recovered_value", e.RecoveredValue.String()).
			Msg("exchange finalized")
		return nil
	})
}

// ExtendDeadlineInput postpones the alert deadline either by a number of
// days on top of the current deadline or to an explicit future date.
type ExtendDeadlineInput struct {
	DaysToAdd  int        `json:"days_to_add"`
	CustomDate *time.Time `json:"custom_date"`
	Reason     *string    `json:"reason"`
}

// ExtendDeadline postpones the alert deadline, appends an extension
// record and an audit entry, and clears the overdue flag. The status
// never changes here.
func (s *Service) ExtendDeadline(exchangeID string, input ExtendDeadlineInput) (*Exchange, error) {
	if input.CustomDate == nil && input.DaysToAdd == 0 {
		return nil, apperror.ValidationFailed("either days_to_add or custom_date is required")
	}

	return s.db.Mutate(exchangeID, func(tx *gorm.DB, e *Exchange) error {
		if e.AlertDeadline == nil {
			return apperror.PreconditionFailed("exchange has no alert deadline set")
		}

		now := s.now()
		previous := *e.AlertDeadline
		var next time.Time
		if input.CustomDate != nil {
			next = *input.CustomDate
			if !next.After(now) {
				return apperror.ValidationFailed("custom date must be in the future")
			}
		} else {
			next = deadline.Next(previous, input.DaysToAdd)
		}

		daysAdded := deadline.DaysBetween(previous, next)

		if err := appendExtension(tx, exchangeID, previous, next, daysAdded, input.Reason, now); err != nil {
			return err
		}

		oldValue := previous.Format(time.RFC3339)
		if err := appendHistory(tx, exchangeID, types.FieldAlertDeadline, &oldValue, next.Format(time.RFC3339), now); err != nil {
			return err
		}

		e.AlertDeadline = &next
		e.Overdue = false

		log.Info().
			Str("exchange_id", exchangeID).
			Time("previous_deadline", previous).
			Time("new_deadline", next).
			Int("days_added", daysAdded).
			Msg("deadline extended")
		return nil
	})
}
