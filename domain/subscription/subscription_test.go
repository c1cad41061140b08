package subscription_test

import (
	"testing"
	"time"

	"github.com/artpar/billgate/domain/calendar"
	"github.com/artpar/billgate/domain/fsm"
	"github.com/artpar/billgate/domain/plan"
	"github.com/artpar/billgate/domain/subscription"
)

func TestSubscription_Lifecycle(t *testing.T) {
	sub := subscription.Subscription{ID: "sub-1", State: subscription.StateInactive}
	start := time.Date(2015, 5, 20, 10, 30, 0, 0, time.UTC)

	if err := sub.Activate(start); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if sub.State != subscription.StateActive {
		t.Errorf("state = %s", sub.State)
	}
	if !sub.StartDate.Equal(calendar.Date(2015, 5, 20)) {
		t.Errorf("start date not truncated: %v", sub.StartDate)
	}

	if err := sub.Cancel(calendar.Date(2015, 5, 31)); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if sub.State != subscription.StateCanceled || sub.CancelDate == nil {
		t.Errorf("state = %s, cancel date = %v", sub.State, sub.CancelDate)
	}

	if err := sub.End(calendar.Date(2015, 6, 1)); err != nil {
		t.Fatalf("End: %v", err)
	}
	if sub.State != subscription.StateEnded || sub.EndedAt == nil {
		t.Errorf("state = %s, ended = %v", sub.State, sub.EndedAt)
	}
}

func TestSubscription_GuardedTransitions(t *testing.T) {
	sub := subscription.Subscription{State: subscription.StateInactive}

	if err := sub.Cancel(calendar.Date(2015, 5, 31)); !fsm.IsTransition(err) {
		t.Errorf("cancel inactive: %v", err)
	}
	if err := sub.End(calendar.Date(2015, 5, 31)); !fsm.IsTransition(err) {
		t.Errorf("end inactive: %v", err)
	}

	sub.State = subscription.StateActive
	if err := sub.Activate(calendar.Date(2015, 5, 31)); !fsm.IsTransition(err) {
		t.Errorf("re-activate active: %v", err)
	}
}

func TestSubscription_CancelBeforeStart(t *testing.T) {
	sub := subscription.Subscription{
		State:     subscription.StateActive,
		StartDate: calendar.Date(2015, 5, 20),
	}
	err := sub.Cancel(calendar.Date(2015, 5, 10))
	if !fsm.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if sub.State != subscription.StateActive {
		t.Errorf("state mutated to %s", sub.State)
	}
}

func TestSubscription_TrialEnd(t *testing.T) {
	p := plan.Plan{TrialPeriodDays: 10}
	sub := subscription.Subscription{StartDate: calendar.Date(2015, 5, 20)}

	got := sub.TrialEnd(p)
	if got == nil || !got.Equal(calendar.Date(2015, 5, 29)) {
		t.Errorf("plan-derived trial end = %v", got)
	}

	override := calendar.Date(2015, 6, 15)
	sub.TrialEndOverride = &override
	got = sub.TrialEnd(p)
	if got == nil || !got.Equal(override) {
		t.Errorf("override trial end = %v", got)
	}
}

func TestMeteredFeatureUnitsLog_Overlaps(t *testing.T) {
	log := subscription.MeteredFeatureUnitsLog{
		StartDate: calendar.Date(2015, 6, 1),
		EndDate:   calendar.Date(2015, 6, 30),
	}

	tests := []struct {
		name       string
		start, end time.Time
		want       bool
	}{
		{"inside", calendar.Date(2015, 6, 10), calendar.Date(2015, 6, 20), true},
		{"touching end", calendar.Date(2015, 6, 30), calendar.Date(2015, 7, 5), true},
		{"touching start", calendar.Date(2015, 5, 20), calendar.Date(2015, 6, 1), true},
		{"before", calendar.Date(2015, 5, 1), calendar.Date(2015, 5, 31), false},
		{"after", calendar.Date(2015, 7, 1), calendar.Date(2015, 7, 31), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := log.Overlaps(tt.start, tt.end); got != tt.want {
				t.Errorf("Overlaps = %v, want %v", got, tt.want)
			}
		})
	}
}
