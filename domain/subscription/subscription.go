// Package subscription provides the subscription state machine, the
// append-only billing ledger and the billing cycle scheduler.
package subscription

import (
	"time"

	"github.com/artpar/billgate/domain/calendar"
	"github.com/artpar/billgate/domain/fsm"
	"github.com/artpar/billgate/domain/plan"
)

// State represents the lifecycle state of a subscription.
type State string

const (
	StateInactive State = "inactive"
	StateActive   State = "active"
	StateCanceled State = "canceled"
	StateEnded    State = "ended"
)

// Subscription binds a customer to a plan.
type Subscription struct {
	ID         string
	CustomerID string
	PlanID     string
	State      State

	StartDate time.Time

	// TrialEndOverride replaces the plan-derived trial end when set.
	TrialEndOverride *time.Time

	CancelDate *time.Time
	EndedAt    *time.Time
	Reference  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// transitions maps each action to its allowed source states.
var transitions = map[string][]State{
	"activate": {StateInactive},
	"cancel":   {StateActive},
	"end":      {StateCanceled},
}

// AllowedSources returns the source states permitting the given action.
func AllowedSources(action string) []State {
	return transitions[action]
}

func (s *Subscription) guard(action string) error {
	for _, st := range transitions[action] {
		if s.State == st {
			return nil
		}
	}
	return &fsm.TransitionError{Entity: "subscription", From: string(s.State), Action: action}
}

// Activate starts the subscription on startDate.
func (s *Subscription) Activate(startDate time.Time) error {
	if err := s.guard("activate"); err != nil {
		return err
	}
	s.State = StateActive
	s.StartDate = calendar.Truncate(startDate)
	s.UpdatedAt = startDate
	return nil
}

// Cancel schedules the subscription to stop billing after cancelDate. The
// final prorated document still gets generated; End follows it.
func (s *Subscription) Cancel(cancelDate time.Time) error {
	if err := s.guard("cancel"); err != nil {
		return err
	}
	if calendar.Truncate(cancelDate).Before(s.StartDate) {
		return fsm.Validationf("cancel date %s precedes subscription start %s",
			cancelDate.Format("2006-01-02"), s.StartDate.Format("2006-01-02"))
	}
	d := calendar.Truncate(cancelDate)
	s.State = StateCanceled
	s.CancelDate = &d
	s.UpdatedAt = cancelDate
	return nil
}

// End finalizes a canceled subscription after its last document was
// generated. Ended subscriptions are never billed again.
func (s *Subscription) End(at time.Time) error {
	if err := s.guard("end"); err != nil {
		return err
	}
	s.State = StateEnded
	s.EndedAt = &at
	s.UpdatedAt = at
	return nil
}

// TrialEnd resolves the inclusive last trial day from the override or the
// plan. Nil means no trial.
func (s Subscription) TrialEnd(p plan.Plan) *time.Time {
	if s.TrialEndOverride != nil {
		t := calendar.Truncate(*s.TrialEndOverride)
		return &t
	}
	return p.TrialEnd(s.StartDate)
}

// Billable reports whether the scheduler should consider the subscription.
func (s Subscription) Billable() bool {
	return s.State == StateActive || s.State == StateCanceled
}
