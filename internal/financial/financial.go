// Package financial derives the three persisted monetary fields of an
// exchange from its budget and status. All amounts are exact decimals;
// float arithmetic is never used so repeated recomputes cannot drift.
package financial

import (
	"github.com/gfranca/troca-api/internal/types"
	"github.com/shopspring/decimal"
)

// TotalValue returns the budget total verbatim, or zero when no budget
// (or no total) exists yet.
func TotalValue(budgetTotal *decimal.Decimal) decimal.Decimal {
	if budgetTotal == nil {
		return decimal.Zero
	}
	return *budgetTotal
}

// RecoveredValue is total-or-nothing: the full total once the exchange is
// resolved, zero in every other status. Partial recovery lives inside the
// restock sub-record, not at the exchange level.
func RecoveredValue(status string, total decimal.Decimal) decimal.Decimal {
	if status == types.StatusResolved {
		return total
	}
	return decimal.Zero
}

// PendingValue is total minus recovered. Under correct status transitions
// the result is never negative; a negative result means the caller passed
// an inconsistent recovered value and must treat it as a defect.
func PendingValue(total, recovered decimal.Decimal) decimal.Decimal {
	return total.Sub(recovered)
}
