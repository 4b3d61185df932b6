package exchange

import (
	"github.com/gfranca/troca-api/internal/types"
	"github.com/gfranca/troca-api/pkg/apperror"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SetBudget creates or updates the budget. The exchange financials are
// re-derived in the same transaction so total/pending follow the budget
// immediately. No status change happens here; approval does that.
func (s *Service) SetBudget(exchangeID string, input BudgetInput) (*Exchange, error) {
	if input.TotalValue.IsNegative() {
		return nil, apperror.ValidationFailed("budget total cannot be negative")
	}

	return s.db.Mutate(exchangeID, func(tx *gorm.DB, e *Exchange) error {
		now := s.now()
		if e.Budget == nil {
			e.Budget = &Budget{
				BudgetID:       "ORC_" + uuid.New().String(),
				ExchangeID:     exchangeID,
				TotalValue:     input.TotalValue,
				SentToSupplier: input.SentToSupplier,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if input.SentToSupplier {
				e.Budget.SentAt = &now
			}
			if err := tx.Create(e.Budget).Error; err != nil {
				return apperror.Persistence(err, "failed to create budget")
			}
		} else {
			e.Budget.TotalValue = input.TotalValue
			if input.SentToSupplier && !e.Budget.SentToSupplier {
				e.Budget.SentAt = &now
			}
			e.Budget.SentToSupplier = input.SentToSupplier
			e.Budget.UpdatedAt = now
			if err := tx.Save(e.Budget).Error; err != nil {
				return apperror.Persistence(err, "failed to update budget")
			}
		}

		s.applyFinancials(e)
		return nil
	})
}

// ApproveBudget marks the budget approved and moves the exchange to
// BUDGET_APPROVED.
func (s *Service) ApproveBudget(exchangeID string) (*Exchange, error) {
	return s.db.Mutate(exchangeID, func(tx *gorm.DB, e *Exchange) error {
		if e.Budget == nil {
			return apperror.PreconditionFailed("exchange has no budget to approve")
		}

		e.Budget.Approved = true
		e.Budget.UpdatedAt = s.now()
		if err := tx.Save(e.Budget).Error; err != nil {
			return apperror.Persistence(err, "failed to update budget")
		}

		return s.transition(tx, e, types.StatusBudgetApproved)
	})
}

// CreateDraftInvoice generates the draft invoice for supplier validation.
// Requires an approved budget.
func (s *Service) CreateDraftInvoice(exchangeID, draftNumber string) (*Exchange, error) {
	if draftNumber == "" {
		return nil, apperror.ValidationFailed("draft number is required")
	}

	return s.db.Mutate(exchangeID, func(tx *gorm.DB, e *Exchange) error {
		if e.Budget == nil || !e.Budget.Approved {
			return apperror.PreconditionFailed("budget must be approved before creating a draft invoice")
		}
		if e.DraftInvoice != nil {
			return apperror.PreconditionFailed("draft invoice already exists")
		}

		e.DraftInvoice = &DraftInvoice{
			DraftInvoiceID: "RNF_" + uuid.New().String(),
			ExchangeID:     exchangeID,
			Generated:      true,
			DraftNumber:    draftNumber,
			CreatedAt:      s.now(),
			UpdatedAt:      s.now(),
		}
		if err := tx.Create(e.DraftInvoice).Error; err != nil {
			return apperror.Persistence(err, "failed to create draft invoice")
		}

		return s.transition(tx, e, types.StatusDraftInvoiceValidation)
	})
}

// ApproveDraftInvoice records supplier approval of the draft. The
// exchange status stays put; issuing the return invoice moves it.
func (s *Service) ApproveDraftInvoice(exchangeID string) (*Exchange, error) {
	return s.db.Mutate(exchangeID, func(tx *gorm.DB, e *Exchange) error {
		if e.DraftInvoice == nil {
			return apperror.PreconditionFailed("exchange has no draft invoice")
		}

		e.DraftInvoice.SupplierApproved = true
		e.DraftInvoice.UpdatedAt = s.now()
		if err := tx.Save(e.DraftInvoice).Error; err != nil {
			return apperror.Persistence(err, "failed to update draft invoice")
		}
		return nil
	})
}

// IssueReturnInvoice issues the return invoice once the supplier approved
// the draft, moving the exchange to INVOICE_ISSUED_AWAITING_DESTINATION.
func (s *Service) IssueReturnInvoice(exchangeID, invoiceNumber string, invoiceValue decimal.Decimal) (*Exchange, error) {
	if invoiceNumber == "" {
		return nil, apperror.ValidationFailed("invoice number is required")
	}
	if invoiceValue.IsNegative() {
		return nil, apperror.ValidationFailed("invoice value cannot be negative")
	}

	return s.db.Mutate(exchangeID, func(tx *gorm.DB, e *Exchange) error {
		if e.DraftInvoice == nil || !e.DraftInvoice.SupplierApproved {
			return apperror.PreconditionFailed("draft invoice must be supplier-approved before issuing the return invoice")
		}
		if e.ReturnInvoice != nil {
			return apperror.PreconditionFailed("return invoice already issued")
		}

		now := s.now()
		e.ReturnInvoice = &ReturnInvoice{
			ReturnInvoiceID: "NFD_" + uuid.New().String(),
			ExchangeID:      exchangeID,
			Issued:          true,
			InvoiceNumber:   invoiceNumber,
			IssuedAt:        &now,
			InvoiceValue:    invoiceValue,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.Create(e.ReturnInvoice).Error; err != nil {
			return apperror.Persistence(err, "failed to create return invoice")
		}

		return s.transition(tx, e, types.StatusInvoiceIssued)
	})
}

// MarkProductShipped records that the defective product went back to the
// supplier under the issued return invoice.
func (s *Service) MarkProductShipped(exchangeID string) (*Exchange, error) {
	return s.db.Mutate(exchangeID, func(tx *gorm.DB, e *Exchange) error {
		if e.ReturnInvoice == nil || !e.ReturnInvoice.Issued {
			return apperror.PreconditionFailed("return invoice has not been issued")
		}

		now := s.now()
		e.ReturnInvoice.ProductShipped = true
		e.ReturnInvoice.ShippedAt = &now
		e.ReturnInvoice.UpdatedAt = now
		if err := tx.Save(e.ReturnInvoice).Error; err != nil {
			return apperror.Persistence(err, "failed to update return invoice")
		}
		return nil
	})
}

// SetDestinationCollect chooses supplier collection as the item
// destination and moves the exchange to AWAITING_PICKUP.
func (s *Service) SetDestinationCollect(exchangeID string) (*Exchange, error) {
	return s.db.Mutate(exchangeID, func(tx *gorm.DB, e *Exchange) error {
		if e.ReturnInvoice == nil || !e.ReturnInvoice.Issued {
			return apperror.PreconditionFailed("return invoice must be issued before setting the item destination")
		}
		if e.Disposition != nil && e.Disposition.Discard {
			return apperror.PreconditionFailed("item destination is already set to discard")
		}

		if err := s.upsertDisposition(tx, e, func(d *ItemDisposition) {
			d.SupplierWillCollect = true
		}); err != nil {
			return err
		}

		return s.transition(tx, e, types.StatusAwaitingPickup)
	})
}

// SetDestinationDiscard chooses discard as the item destination. The
// status does not change until the discard is actually performed.
func (s *Service) SetDestinationDiscard(exchangeID string) (*Exchange, error) {
	return s.db.Mutate(exchangeID, func(tx *gorm.DB, e *Exchange) error {
		if e.ReturnInvoice == nil || !e.ReturnInvoice.Issued {
			return apperror.PreconditionFailed("return invoice must be issued before setting the item destination")
		}
		if e.Disposition != nil && e.Disposition.SupplierWillCollect {
			return apperror.PreconditionFailed("item destination is already set to supplier collection")
		}

		return s.upsertDisposition(tx, e, func(d *ItemDisposition) {
			d.Discard = true
		})
	})
}

// MarkCollectionDone records the supplier pickup and resolves the exchange.
func (s *Service) MarkCollectionDone(exchangeID string) (*Exchange, error) {
	return s.db.Mutate(exchangeID, func(tx *gorm.DB, e *Exchange) error {
		if e.Disposition == nil || !e.Disposition.SupplierWillCollect {
			return apperror.PreconditionFailed("item destination is not set to supplier collection")
		}

		now := s.now()
		e.Disposition.CollectionDone = true
		e.Disposition.CollectedAt = &now
		e.Disposition.UpdatedAt = now
		if err := tx.Save(e.Disposition).Error; err != nil {
			return apperror.Persistence(err, "failed to update disposition")
		}

		return s.transition(tx, e, types.StatusResolved)
	})
}

// MarkDiscarded records the discard and moves the exchange to
// ITEM_DISCARDED.
func (s *Service) MarkDiscarded(exchangeID string) (*Exchange, error) {
	return s.db.Mutate(exchangeID, func(tx *gorm.DB, e *Exchange) error {
		if e.Disposition != nil && e.Disposition.SupplierWillCollect {
			return apperror.PreconditionFailed("item destination is already set to supplier collection")
		}

		now := s.now()
		if err := s.upsertDisposition(tx, e, func(d *ItemDisposition) {
			d.Discard = true
			d.DiscardedAt = &now
		}); err != nil {
			return err
		}

		return s.transition(tx, e, types.StatusItemDiscarded)
	})
}

// upsertDisposition applies mutate to the existing disposition or a fresh
// one, persisting it inside the caller's transaction.
func (s *Service) upsertDisposition(tx *gorm.DB, e *Exchange, mutate func(*ItemDisposition)) error {
	now := s.now()
	created := false
	if e.Disposition == nil {
		e.Disposition = &ItemDisposition{
			DispositionID: "DST_" + uuid.New().String(),
			ExchangeID:    e.ExchangeID,
			CreatedAt:     now,
		}
		created = true
	}
	mutate(e.Disposition)
	e.Disposition.UpdatedAt = now

	var err error
	if created {
		err = tx.Create(e.Disposition).Error
	} else {
		err = tx.Save(e.Disposition).Error
	}
	if err != nil {
		return apperror.Persistence(err, "failed to save disposition")
	}

	log.Debug().
		Str("exchange_id", e.ExchangeID).
		Bool("collect", e.Disposition.SupplierWillCollect).
		Bool("discard", e.Disposition.Discard).
		Msg("disposition saved")
	return nil
}
