package types

// Exchange lifecycle statuses. The flow runs budget -> invoice -> item
// destination, with a compensation sub-path (restock or discount) that
// also terminates in StatusResolved.
const (
	StatusBudget                 = "BUDGET"
	StatusBudgetApproved         = "BUDGET_APPROVED"
	StatusDraftInvoiceValidation = "DRAFT_INVOICE_VALIDATION"
	StatusInvoiceIssued          = "INVOICE_ISSUED_AWAITING_DESTINATION"
	StatusAwaitingPickup         = "AWAITING_PICKUP"
	StatusRestockPartial         = "RESTOCK_PARTIAL"
	StatusAwaitingDiscount       = "AWAITING_DISCOUNT"
	StatusResolved               = "RESOLVED"
	StatusItemDiscarded          = "ITEM_DISCARDED"
	StatusProblemDivergence      = "PROBLEM_DIVERGENCE"
)

// Compensation types for a resolved exchange.
const (
	CompensationRestock  = "RESTOCK"
	CompensationDiscount = "DISCOUNT"
)

// Fields recorded in the history ledger.
const (
	FieldStatus           = "status"
	FieldCompensationType = "compensation_type"
	FieldAlertDeadline    = "alert_deadline"
)

var validStatuses = map[string]bool{
	StatusBudget:                 true,
	StatusBudgetApproved:         true,
	StatusDraftInvoiceValidation: true,
	StatusInvoiceIssued:          true,
	StatusAwaitingPickup:         true,
	StatusRestockPartial:         true,
	StatusAwaitingDiscount:       true,
	StatusResolved:               true,
	StatusItemDiscarded:          true,
	StatusProblemDivergence:      true,
}

// ValidStatus reports whether s is a member of the closed status enumeration.
func ValidStatus(s string) bool {
	return validStatuses[s]
}

// ValidCompensation reports whether s is a known compensation type.
func ValidCompensation(s string) bool {
	return s == CompensationRestock || s == CompensationDiscount
}
