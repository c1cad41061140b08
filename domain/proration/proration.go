// Package proration computes the fraction of a billing interval covered by
// a window. All functions are pure - no side effects.
package proration

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/artpar/billgate/domain/calendar"
)

// Places is the fixed precision of proration fractions.
const Places = 4

var one = decimal.NewFromInt(1)

// Fraction returns whether the inclusive window [start, end] covers a full
// billing interval and, if not, the covered fraction of that interval
// rounded to four decimal places.
//
// The interval is anchored at the window start: a window is full when its
// end reaches the day before Add(start, unit, count). Partial windows are
// measured in days against the full interval length, so the result is
// identical across 28, 30 and 31 day months.
func Fraction(start, end time.Time, unit calendar.Unit, count int) (prorated bool, fraction decimal.Decimal) {
	start = calendar.Truncate(start)
	end = calendar.Truncate(end)

	if count < 1 {
		count = 1
	}
	if end.Before(start) {
		return true, decimal.Zero.Round(Places)
	}

	// First day after one full interval starting at the window start.
	intervalEnd := calendar.Add(start, unit, count)

	if !end.Before(intervalEnd.AddDate(0, 0, -1)) {
		return false, one.Round(Places)
	}

	covered := decimal.NewFromInt(int64(calendar.DaysBetween(start, end)))
	total := decimal.NewFromInt(int64(calendar.DaysBetween(start, intervalEnd)))

	fraction = covered.Div(total).Round(Places)
	if fraction.GreaterThan(one) {
		fraction = one.Round(Places)
	}
	return true, fraction
}
