// Package calendar provides date-level interval arithmetic.
// All functions are pure - no side effects.
package calendar

import "time"

// Unit is a billing interval unit.
type Unit string

const (
	Day   Unit = "day"
	Week  Unit = "week"
	Month Unit = "month"
	Year  Unit = "year"
)

// Valid reports whether u is a known interval unit.
func (u Unit) Valid() bool {
	switch u {
	case Day, Week, Month, Year:
		return true
	}
	return false
}

// OneDay is the smallest date increment. Billing windows are inclusive
// ranges; end + OneDay is the start of the next window.
const OneDay = 24 * time.Hour

// Date builds a UTC date at midnight.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Truncate drops the time-of-day component, keeping the UTC date.
func Truncate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Add adds n units to a date using calendar-correct arithmetic. Month and
// year addition clamp the day-of-month: Jan 31 + 1 month is the last day of
// February, never a normalized March date.
func Add(t time.Time, u Unit, n int) time.Time {
	switch u {
	case Day:
		return t.AddDate(0, 0, n)
	case Week:
		return t.AddDate(0, 0, 7*n)
	case Month:
		return addMonths(t, n)
	case Year:
		return addMonths(t, 12*n)
	}
	return t
}

func addMonths(t time.Time, n int) time.Time {
	// Work in zero-based months so the division behaves for negative n.
	total := t.Year()*12 + int(t.Month()) - 1 + n
	year := total / 12
	month := time.Month(total%12 + 1)
	if total < 0 {
		// Go's % keeps the sign of the dividend.
		year = (total - 11) / 12
		month = time.Month(total - year*12 + 1)
	}

	day := t.Day()
	if last := DaysInMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DaysBetween returns the number of whole days from a to b. Negative when b
// precedes a.
func DaysBetween(a, b time.Time) int {
	return int(Truncate(b).Sub(Truncate(a)) / OneDay)
}

// StartOfMonth returns the first day of t's month.
func StartOfMonth(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), 1)
}

// EndOfMonth returns the last day of t's month.
func EndOfMonth(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), DaysInMonth(t.Year(), t.Month()))
}

// StartOfWeek returns the Monday of t's ISO week.
func StartOfWeek(t time.Time) time.Time {
	t = Truncate(t)
	wd := int(t.Weekday())
	if wd == 0 { // Sunday
		wd = 7
	}
	return t.AddDate(0, 0, 1-wd)
}

// NextBoundary returns the first day of the calendar period of the given
// length that follows the period containing t. Periods are anchored to
// natural boundaries: days to midnight, weeks to Monday, months to the 1st,
// years to Jan 1. A count of n spans n units from the containing boundary.
func NextBoundary(t time.Time, u Unit, count int) time.Time {
	if count < 1 {
		count = 1
	}
	switch u {
	case Day:
		return Truncate(t).AddDate(0, 0, count)
	case Week:
		return StartOfWeek(t).AddDate(0, 0, 7*count)
	case Month:
		return addMonths(StartOfMonth(t), count)
	case Year:
		return Date(t.Year()+count, time.January, 1)
	}
	return t
}

// MinDate returns the earlier of two dates.
func MinDate(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}

// MaxDate returns the later of two dates.
func MaxDate(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
