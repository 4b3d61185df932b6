// Package deadline computes alert deadlines and overdue state for
// exchanges. Every function takes the current instant as a parameter so
// callers (and tests) control the clock.
package deadline

import (
	"math"
	"time"

	"github.com/gfranca/troca-api/internal/types"
)

// InitialDays is the alert window granted at exchange creation.
const InitialDays = 15

// DaysOverdue returns the ceiling of whole days elapsed past the deadline,
// never negative. A nil or future deadline yields 0.
func DaysOverdue(deadline *time.Time, now time.Time) int {
	if deadline == nil || !now.After(*deadline) {
		return 0
	}
	return int(math.Ceil(now.Sub(*deadline).Hours() / 24))
}

// IsOverdue reports whether the exchange is past its alert deadline.
// Resolved exchanges are never overdue regardless of the deadline.
func IsOverdue(deadline *time.Time, status string, now time.Time) bool {
	if status == types.StatusResolved {
		return false
	}
	if deadline == nil {
		return false
	}
	return DaysOverdue(deadline, now) > 0
}

// Next advances a deadline by whole calendar days. AddDate keeps the
// wall-clock time intact across DST boundaries, unlike adding 24h slices.
func Next(current time.Time, daysToAdd int) time.Time {
	return current.AddDate(0, 0, daysToAdd)
}

// Initial returns the first alert deadline for a newly created exchange.
func Initial(now time.Time) time.Time {
	return Next(now, InitialDays)
}

// DaysBetween returns the signed ceiling-rounded day count from a to b,
// used when recording how many days an extension added.
func DaysBetween(a, b time.Time) int {
	diff := b.Sub(a).Hours() / 24
	return int(math.Ceil(diff))
}
