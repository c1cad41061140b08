package subscription

import (
	"time"

	"github.com/artpar/billgate/domain/calendar"
	"github.com/artpar/billgate/domain/plan"
)

// WindowKind tags what a billing window charges for.
type WindowKind string

const (
	WindowTrial   WindowKind = "trial"
	WindowPlan    WindowKind = "plan"
	WindowMetered WindowKind = "metered"
)

// Window is one inclusive sub-period to bill.
type Window struct {
	Start time.Time
	End   time.Time
	Kind  WindowKind
}

// Due is the outcome of one scheduler pass over a subscription.
type Due struct {
	// Windows to bill, in chronological order. Empty means nothing is due
	// (the idempotency skip - a normal outcome, not an error).
	Windows []Window

	// PlanBilledUpTo and MeteredBilledUpTo are the watermarks the billing
	// log entry for this run must carry. Plan and metered charges advance
	// together: every plan window has a matching metered window.
	PlanBilledUpTo    time.Time
	MeteredBilledUpTo time.Time

	// Final marks the last run of a canceled subscription; the caller ends
	// the subscription once the document is generated.
	Final bool
}

// DueWindows decides whether a subscription owes money as of asOf and
// computes the exact sub-windows to bill. Running it again with the same
// asOf (or any asOf not past the watermark) yields no windows, which is
// what makes billing runs safely repeatable.
//
// now is the wall-clock instant of the run; windows whose grace period
// (plan.GenerateAfter past the midnight after the window end) has not
// elapsed are withheld until a later run.
func DueWindows(sub Subscription, p plan.Plan, last *BillingLog, asOf, now time.Time) Due {
	asOf = calendar.Truncate(asOf)

	if !sub.Billable() {
		return Due{}
	}
	if asOf.Before(sub.StartDate) {
		return Due{}
	}

	limit := asOf
	if sub.CancelDate != nil {
		limit = calendar.MinDate(limit, *sub.CancelDate)
	}

	var due Due
	if last == nil {
		due = firstBilling(sub, p, limit)
	} else {
		due = nextBilling(p, calendar.Truncate(last.PlanBilledUpTo), limit)
	}

	due = withholdIneligible(due, p, now)

	if sub.State == StateCanceled && sub.CancelDate != nil &&
		!due.PlanBilledUpTo.Before(*sub.CancelDate) {
		due.Final = true
	}
	return due
}

// firstBilling handles a subscription with no billing log: the trial
// sub-window first, then post-trial windows split at calendar interval
// boundaries so metered consumption logs align with billed windows.
func firstBilling(sub Subscription, p plan.Plan, limit time.Time) Due {
	due := Due{}
	cur := sub.StartDate

	if trialEnd := sub.TrialEnd(p); trialEnd != nil && !cur.After(*trialEnd) {
		tEnd := calendar.MinDate(*trialEnd, limit)
		due.Windows = append(due.Windows, Window{Start: cur, End: tEnd, Kind: WindowTrial})
		due.PlanBilledUpTo = tEnd
		if limit.After(*trialEnd) {
			cur = trialEnd.AddDate(0, 0, 1)
		} else {
			due.MeteredBilledUpTo = due.PlanBilledUpTo
			return due
		}
	}

	for !cur.After(limit) {
		boundary := calendar.NextBoundary(cur, p.Interval, p.IntervalCountOrOne())
		wEnd := calendar.MinDate(boundary.AddDate(0, 0, -1), limit)
		due.Windows = append(due.Windows,
			Window{Start: cur, End: wEnd, Kind: WindowPlan},
			Window{Start: cur, End: wEnd, Kind: WindowMetered},
		)
		due.PlanBilledUpTo = wEnd
		cur = boundary
	}
	due.MeteredBilledUpTo = due.PlanBilledUpTo
	return due
}

// nextBilling advances from the watermark in full intervals, with a
// trailing partial window when the limit falls mid-interval.
func nextBilling(p plan.Plan, watermark, limit time.Time) Due {
	due := Due{PlanBilledUpTo: watermark, MeteredBilledUpTo: watermark}
	if !limit.After(watermark) {
		return due
	}

	cur := watermark.AddDate(0, 0, 1)
	for !cur.After(limit) {
		intervalEnd := calendar.Add(cur.AddDate(0, 0, -1), p.Interval, p.IntervalCountOrOne())
		wEnd := calendar.MinDate(intervalEnd, limit)
		due.Windows = append(due.Windows,
			Window{Start: cur, End: wEnd, Kind: WindowPlan},
			Window{Start: cur, End: wEnd, Kind: WindowMetered},
		)
		due.PlanBilledUpTo = wEnd
		due.MeteredBilledUpTo = wEnd
		cur = wEnd.AddDate(0, 0, 1)
	}
	return due
}

// UsageWindow returns the billed sub-window containing at, so consumption
// logs land on exactly the bounds billing will later read. The second
// return is false when at falls outside the subscription's billable life.
func UsageWindow(sub Subscription, p plan.Plan, at time.Time) (Window, bool) {
	at = calendar.Truncate(at)
	if sub.State == StateInactive || sub.State == StateEnded {
		return Window{}, false
	}
	if at.Before(sub.StartDate) {
		return Window{}, false
	}
	if sub.CancelDate != nil && at.After(*sub.CancelDate) {
		return Window{}, false
	}

	clip := func(end time.Time) time.Time {
		if sub.CancelDate != nil {
			return calendar.MinDate(end, *sub.CancelDate)
		}
		return end
	}

	cur := sub.StartDate
	if trialEnd := sub.TrialEnd(p); trialEnd != nil && !cur.After(*trialEnd) {
		if !at.After(*trialEnd) {
			return Window{Start: cur, End: clip(*trialEnd), Kind: WindowTrial}, true
		}
		cur = trialEnd.AddDate(0, 0, 1)
	}

	for {
		boundary := calendar.NextBoundary(cur, p.Interval, p.IntervalCountOrOne())
		end := boundary.AddDate(0, 0, -1)
		if !at.After(end) {
			return Window{Start: cur, End: clip(end), Kind: WindowMetered}, true
		}
		cur = boundary
	}
}

// withholdIneligible drops trailing windows whose generate_after grace has
// not elapsed, rolling the watermarks back accordingly.
func withholdIneligible(due Due, p plan.Plan, now time.Time) Due {
	if p.GenerateAfter <= 0 || len(due.Windows) == 0 {
		return due
	}

	kept := due.Windows[:0]
	for _, w := range due.Windows {
		if now.Before(p.EligibleAt(w.End)) {
			continue
		}
		kept = append(kept, w)
	}
	if len(kept) == 0 {
		// Everything is still inside its grace period; a later run will
		// pick the windows up.
		return Due{}
	}
	due.Windows = kept

	watermark := time.Time{}
	for _, w := range kept {
		watermark = calendar.MaxDate(watermark, w.End)
	}
	due.PlanBilledUpTo = watermark
	due.MeteredBilledUpTo = watermark
	return due
}
