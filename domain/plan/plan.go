// Package plan provides plan and metered feature value types.
package plan

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/artpar/billgate/domain/calendar"
)

// Plan represents a recurring pricing plan (value type). Plans referenced by
// subscriptions are immutable in practice: changing one must never alter
// already billed periods.
type Plan struct {
	ID            string
	ProviderID    string
	Name          string
	Interval      calendar.Unit
	IntervalCount int
	Amount        decimal.Decimal
	Currency      string

	// TrialPeriodDays is the default trial length for new subscriptions.
	// Zero means no trial.
	TrialPeriodDays int

	// GenerateAfter delays document generation after a billing window
	// closes, letting usage counters settle.
	GenerateAfter time.Duration

	ProductCode string
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IntervalCountOrOne normalizes a zero interval count.
func (p Plan) IntervalCountOrOne() int {
	if p.IntervalCount < 1 {
		return 1
	}
	return p.IntervalCount
}

// TrialEnd returns the inclusive last day of the trial for a subscription
// starting on start, or nil when the plan has no trial.
func (p Plan) TrialEnd(start time.Time) *time.Time {
	if p.TrialPeriodDays <= 0 {
		return nil
	}
	end := calendar.Truncate(start).AddDate(0, 0, p.TrialPeriodDays-1)
	return &end
}

// EligibleAt returns the moment a window ending on windowEnd becomes
// eligible for document generation: the midnight after the window's last
// day plus the plan's grace period, evaluated in UTC. Usage logged at any
// point on the end day has settled by then.
func (p Plan) EligibleAt(windowEnd time.Time) time.Time {
	return calendar.Truncate(windowEnd).AddDate(0, 0, 1).Add(p.GenerateAfter)
}

// MeteredFeature is a usage-based add-on billed for consumption beyond an
// included allowance. A feature belongs to exactly one plan.
type MeteredFeature struct {
	ID     string
	PlanID string
	Name   string
	Unit   string

	PricePerUnit  decimal.Decimal
	IncludedUnits decimal.Decimal

	// IncludedUnitsDuringTrial is the allowance during the trial window,
	// billed as an offsetting positive/negative pair.
	IncludedUnitsDuringTrial decimal.Decimal

	ProductCode string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Overage returns the billable units above the included allowance, never
// negative.
func (f MeteredFeature) Overage(consumed decimal.Decimal) decimal.Decimal {
	over := consumed.Sub(f.IncludedUnits)
	if over.IsNegative() {
		return decimal.Zero
	}
	return over
}

// TrialOverage returns the billable units above the trial allowance.
func (f MeteredFeature) TrialOverage(consumed decimal.Decimal) decimal.Decimal {
	over := consumed.Sub(f.IncludedUnitsDuringTrial)
	if over.IsNegative() {
		return decimal.Zero
	}
	return over
}
