package subscription

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillingLog is one append-only ledger entry recording that a subscription
// was billed up to a date. The latest entry is the authoritative
// billed-up-to watermark; rows are never mutated, a new run appends a new
// row. This is what makes billing runs idempotent and resumable.
type BillingLog struct {
	ID             string
	SubscriptionID string

	// BillingDate is the as-of date of the run that produced this entry.
	BillingDate time.Time

	// PlanBilledUpTo is the inclusive last day covered by plan charges.
	PlanBilledUpTo time.Time

	// MeteredFeaturesBilledUpTo is the inclusive last day covered by
	// metered feature charges.
	MeteredFeaturesBilledUpTo time.Time

	// Total is the money billed by this run, before sales tax.
	Total decimal.Decimal

	CreatedAt time.Time
}

// MeteredFeatureUnitsLog records consumption of one metered feature within
// one billed sub-period. The (feature, subscription, start, end) tuple is
// unique and windows for the same pair never overlap.
type MeteredFeatureUnitsLog struct {
	ID                string
	MeteredFeatureID  string
	SubscriptionID    string
	StartDate         time.Time
	EndDate           time.Time
	ConsumedUnits     decimal.Decimal
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Overlaps reports whether the log's window intersects [start, end]
// (inclusive bounds).
func (l MeteredFeatureUnitsLog) Overlaps(start, end time.Time) bool {
	return !l.StartDate.After(end) && !l.EndDate.Before(start)
}
