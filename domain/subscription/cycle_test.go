package subscription_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/artpar/billgate/domain/calendar"
	"github.com/artpar/billgate/domain/plan"
	"github.com/artpar/billgate/domain/subscription"
)

func monthlyPlan() plan.Plan {
	return plan.Plan{
		ID:            "plan-1",
		Interval:      calendar.Month,
		IntervalCount: 1,
		Amount:        decimal.NewFromInt(20),
		Currency:      "USD",
	}
}

func activeSub(start time.Time) subscription.Subscription {
	return subscription.Subscription{
		ID:         "sub-1",
		CustomerID: "cust-1",
		PlanID:     "plan-1",
		State:      subscription.StateActive,
		StartDate:  start,
	}
}

func kinds(ws []subscription.Window) []subscription.WindowKind {
	out := make([]subscription.WindowKind, len(ws))
	for i, w := range ws {
		out[i] = w.Kind
	}
	return out
}

func TestDueWindows_FirstBillingMidMonth(t *testing.T) {
	sub := activeSub(calendar.Date(2015, 5, 20))
	asOf := calendar.Date(2015, 6, 1)

	due := subscription.DueWindows(sub, monthlyPlan(), nil, asOf, asOf)

	// Partial May window plus the single June day, each with a matching
	// metered window.
	if len(due.Windows) != 4 {
		t.Fatalf("windows = %d (%v), want 4", len(due.Windows), kinds(due.Windows))
	}
	w := due.Windows[0]
	if !w.Start.Equal(calendar.Date(2015, 5, 20)) || !w.End.Equal(calendar.Date(2015, 5, 31)) {
		t.Errorf("first window = [%v, %v]", w.Start, w.End)
	}
	if w.Kind != subscription.WindowPlan {
		t.Errorf("first window kind = %s", w.Kind)
	}
	w = due.Windows[2]
	if !w.Start.Equal(calendar.Date(2015, 6, 1)) || !w.End.Equal(calendar.Date(2015, 6, 1)) {
		t.Errorf("second window = [%v, %v]", w.Start, w.End)
	}
	if !due.PlanBilledUpTo.Equal(calendar.Date(2015, 6, 1)) {
		t.Errorf("watermark = %v", due.PlanBilledUpTo)
	}
	if !due.MeteredBilledUpTo.Equal(due.PlanBilledUpTo) {
		t.Errorf("metered watermark = %v", due.MeteredBilledUpTo)
	}
}

func TestDueWindows_TrialOnly(t *testing.T) {
	p := monthlyPlan()
	p.TrialPeriodDays = 14
	sub := activeSub(calendar.Date(2015, 5, 20))
	asOf := calendar.Date(2015, 5, 25)

	due := subscription.DueWindows(sub, p, nil, asOf, asOf)

	if len(due.Windows) != 1 {
		t.Fatalf("windows = %d, want 1", len(due.Windows))
	}
	w := due.Windows[0]
	if w.Kind != subscription.WindowTrial {
		t.Errorf("kind = %s", w.Kind)
	}
	// Trial runs through 2015-06-02 but the window clips at asOf.
	if !w.Start.Equal(calendar.Date(2015, 5, 20)) || !w.End.Equal(calendar.Date(2015, 5, 25)) {
		t.Errorf("trial window = [%v, %v]", w.Start, w.End)
	}
}

func TestDueWindows_TrialElapsed(t *testing.T) {
	p := monthlyPlan()
	p.TrialPeriodDays = 7 // trial 2015-05-20 .. 2015-05-26
	sub := activeSub(calendar.Date(2015, 5, 20))
	asOf := calendar.Date(2015, 6, 10)

	due := subscription.DueWindows(sub, p, nil, asOf, asOf)

	want := []subscription.Window{
		{Start: calendar.Date(2015, 5, 20), End: calendar.Date(2015, 5, 26), Kind: subscription.WindowTrial},
		{Start: calendar.Date(2015, 5, 27), End: calendar.Date(2015, 5, 31), Kind: subscription.WindowPlan},
		{Start: calendar.Date(2015, 5, 27), End: calendar.Date(2015, 5, 31), Kind: subscription.WindowMetered},
		{Start: calendar.Date(2015, 6, 1), End: calendar.Date(2015, 6, 10), Kind: subscription.WindowPlan},
		{Start: calendar.Date(2015, 6, 1), End: calendar.Date(2015, 6, 10), Kind: subscription.WindowMetered},
	}
	if len(due.Windows) != len(want) {
		t.Fatalf("windows = %d (%v), want %d", len(due.Windows), kinds(due.Windows), len(want))
	}
	for i, w := range due.Windows {
		if !w.Start.Equal(want[i].Start) || !w.End.Equal(want[i].End) || w.Kind != want[i].Kind {
			t.Errorf("window %d = [%v, %v, %s], want [%v, %v, %s]",
				i, w.Start, w.End, w.Kind, want[i].Start, want[i].End, want[i].Kind)
		}
	}
}

func TestDueWindows_IdempotentRerun(t *testing.T) {
	sub := activeSub(calendar.Date(2015, 5, 20))
	asOf := calendar.Date(2015, 6, 1)
	last := &subscription.BillingLog{
		SubscriptionID:            sub.ID,
		BillingDate:               asOf,
		PlanBilledUpTo:            calendar.Date(2015, 6, 1),
		MeteredFeaturesBilledUpTo: calendar.Date(2015, 6, 1),
	}

	due := subscription.DueWindows(sub, monthlyPlan(), last, asOf, asOf)
	if len(due.Windows) != 0 {
		t.Errorf("re-run produced %d windows, want 0", len(due.Windows))
	}
}

func TestDueWindows_AdvanceFromWatermark(t *testing.T) {
	sub := activeSub(calendar.Date(2015, 5, 20))
	last := &subscription.BillingLog{
		SubscriptionID: sub.ID,
		PlanBilledUpTo: calendar.Date(2015, 5, 31),
	}
	asOf := calendar.Date(2015, 7, 10)

	due := subscription.DueWindows(sub, monthlyPlan(), last, asOf, asOf)

	// One full interval (June) plus a trailing partial into July.
	want := []subscription.Window{
		{Start: calendar.Date(2015, 6, 1), End: calendar.Date(2015, 6, 30), Kind: subscription.WindowPlan},
		{Start: calendar.Date(2015, 6, 1), End: calendar.Date(2015, 6, 30), Kind: subscription.WindowMetered},
		{Start: calendar.Date(2015, 7, 1), End: calendar.Date(2015, 7, 10), Kind: subscription.WindowPlan},
		{Start: calendar.Date(2015, 7, 1), End: calendar.Date(2015, 7, 10), Kind: subscription.WindowMetered},
	}
	if len(due.Windows) != len(want) {
		t.Fatalf("windows = %d (%v), want %d", len(due.Windows), kinds(due.Windows), len(want))
	}
	for i, w := range due.Windows {
		if !w.Start.Equal(want[i].Start) || !w.End.Equal(want[i].End) || w.Kind != want[i].Kind {
			t.Errorf("window %d = [%v, %v, %s]", i, w.Start, w.End, w.Kind)
		}
	}
	if !due.PlanBilledUpTo.Equal(calendar.Date(2015, 7, 10)) {
		t.Errorf("watermark = %v", due.PlanBilledUpTo)
	}
}

func TestDueWindows_CanceledMidCycle(t *testing.T) {
	sub := activeSub(calendar.Date(2015, 5, 20))
	cancel := calendar.Date(2015, 5, 31)
	sub.State = subscription.StateCanceled
	sub.CancelDate = &cancel
	asOf := calendar.Date(2015, 6, 1)

	due := subscription.DueWindows(sub, monthlyPlan(), nil, asOf, asOf)

	if len(due.Windows) != 2 {
		t.Fatalf("windows = %d (%v), want 2", len(due.Windows), kinds(due.Windows))
	}
	w := due.Windows[0]
	if !w.Start.Equal(calendar.Date(2015, 5, 20)) || !w.End.Equal(cancel) {
		t.Errorf("window = [%v, %v], want [2015-05-20, 2015-05-31]", w.Start, w.End)
	}
	if !due.Final {
		t.Error("expected final run for canceled subscription")
	}
}

func TestDueWindows_EndedNeverBilled(t *testing.T) {
	sub := activeSub(calendar.Date(2015, 5, 20))
	sub.State = subscription.StateEnded

	due := subscription.DueWindows(sub, monthlyPlan(), nil, calendar.Date(2015, 7, 1), calendar.Date(2015, 7, 1))
	if len(due.Windows) != 0 {
		t.Errorf("ended subscription produced %d windows", len(due.Windows))
	}
}

func TestDueWindows_GenerateAfterWithholds(t *testing.T) {
	p := monthlyPlan()
	p.GenerateAfter = 6 * time.Hour
	sub := activeSub(calendar.Date(2015, 5, 1))
	asOf := calendar.Date(2015, 6, 1)

	// At one in the morning of June 1 even the May window is still inside
	// its grace period, which runs from the midnight after its last day.
	now := time.Date(2015, 6, 1, 1, 0, 0, 0, time.UTC)
	due := subscription.DueWindows(sub, p, nil, asOf, now)
	if len(due.Windows) != 0 {
		t.Errorf("windows inside the grace period = %d, want 0", len(due.Windows))
	}

	// Past the grace period May is eligible; the June 1 sliver keeps
	// waiting until June 2.
	now = time.Date(2015, 6, 1, 7, 0, 0, 0, time.UTC)
	due = subscription.DueWindows(sub, p, nil, asOf, now)
	for _, w := range due.Windows {
		if w.End.After(calendar.Date(2015, 5, 31)) {
			t.Errorf("window ending %v should have been withheld", w.End)
		}
	}
	if !due.PlanBilledUpTo.Equal(calendar.Date(2015, 5, 31)) {
		t.Errorf("watermark = %v, want 2015-05-31", due.PlanBilledUpTo)
	}

	now = time.Date(2015, 6, 2, 7, 0, 0, 0, time.UTC)
	due = subscription.DueWindows(sub, p, nil, asOf, now)
	if !due.PlanBilledUpTo.Equal(calendar.Date(2015, 6, 1)) {
		t.Errorf("watermark = %v, want 2015-06-01", due.PlanBilledUpTo)
	}
}

func TestDueWindows_BeforeStart(t *testing.T) {
	sub := activeSub(calendar.Date(2015, 5, 20))
	due := subscription.DueWindows(sub, monthlyPlan(), nil, calendar.Date(2015, 5, 1), calendar.Date(2015, 5, 1))
	if len(due.Windows) != 0 {
		t.Errorf("billing before start produced %d windows", len(due.Windows))
	}
}
