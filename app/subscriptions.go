package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/billgate/domain/calendar"
	"github.com/artpar/billgate/domain/fsm"
	"github.com/artpar/billgate/domain/subscription"
	"github.com/artpar/billgate/ports"
)

// CancelWhen selects the effective date of a cancellation.
type CancelWhen string

const (
	// CancelNow stops billing at today's date.
	CancelNow CancelWhen = "now"

	// CancelEndOfCycle stops billing when the current interval ends.
	CancelEndOfCycle CancelWhen = "end_of_billing_cycle"
)

// SubscriptionService manages subscription lifecycle.
type SubscriptionService struct {
	subscriptions ports.SubscriptionStore
	plans         ports.PlanStore
	customers     ports.CustomerStore
	clock         ports.Clock
	idGen         ports.IDGenerator
	logger        zerolog.Logger
}

// NewSubscriptionService creates a new subscription service.
func NewSubscriptionService(
	subscriptions ports.SubscriptionStore,
	plans ports.PlanStore,
	customers ports.CustomerStore,
	clock ports.Clock,
	idGen ports.IDGenerator,
	logger zerolog.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		subscriptions: subscriptions,
		plans:         plans,
		customers:     customers,
		clock:         clock,
		idGen:         idGen,
		logger:        logger,
	}
}

// Create creates an inactive subscription binding a customer to a plan.
func (s *SubscriptionService) Create(ctx context.Context, customerID, planID, reference string) (subscription.Subscription, error) {
	if _, err := s.customers.Get(ctx, customerID); err != nil {
		return subscription.Subscription{}, fmt.Errorf("load customer: %w", err)
	}
	p, err := s.plans.Get(ctx, planID)
	if err != nil {
		return subscription.Subscription{}, fmt.Errorf("load plan: %w", err)
	}
	if !p.Enabled {
		return subscription.Subscription{}, fsm.Validationf("plan %s is disabled", p.ID)
	}

	now := s.clock.Now()
	sub := subscription.Subscription{
		ID:         s.idGen.New(),
		CustomerID: customerID,
		PlanID:     planID,
		State:      subscription.StateInactive,
		Reference:  reference,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.subscriptions.Create(ctx, sub); err != nil {
		return subscription.Subscription{}, err
	}
	s.logger.Info().
		Str("subscription_id", sub.ID).
		Str("customer_id", customerID).
		Str("plan_id", planID).
		Msg("subscription created")
	return sub, nil
}

// Activate starts the subscription. A zero startDate means today.
func (s *SubscriptionService) Activate(ctx context.Context, id string, startDate time.Time) (subscription.Subscription, error) {
	sub, err := s.subscriptions.Get(ctx, id)
	if err != nil {
		return subscription.Subscription{}, err
	}
	if startDate.IsZero() {
		startDate = s.clock.Now()
	}
	if err := sub.Activate(startDate); err != nil {
		return subscription.Subscription{}, err
	}
	if err := s.subscriptions.Update(ctx, sub); err != nil {
		return subscription.Subscription{}, err
	}
	s.logger.Info().
		Str("subscription_id", sub.ID).
		Time("start_date", sub.StartDate).
		Msg("subscription activated")
	return sub, nil
}

// Cancel schedules the subscription to stop billing. CancelNow stops at
// today; CancelEndOfCycle at the last day of the current interval. The
// subscription ends once its final windows are billed.
func (s *SubscriptionService) Cancel(ctx context.Context, id string, when CancelWhen) (subscription.Subscription, error) {
	sub, err := s.subscriptions.Get(ctx, id)
	if err != nil {
		return subscription.Subscription{}, err
	}

	cancelDate := calendar.Truncate(s.clock.Now())
	if when == CancelEndOfCycle {
		p, err := s.plans.Get(ctx, sub.PlanID)
		if err != nil {
			return subscription.Subscription{}, fmt.Errorf("load plan: %w", err)
		}
		if w, ok := subscription.UsageWindow(sub, p, cancelDate); ok {
			cancelDate = w.End
		}
	}

	if err := sub.Cancel(cancelDate); err != nil {
		return subscription.Subscription{}, err
	}
	if err := s.subscriptions.Update(ctx, sub); err != nil {
		return subscription.Subscription{}, err
	}
	s.logger.Info().
		Str("subscription_id", sub.ID).
		Time("cancel_date", cancelDate).
		Msg("subscription canceled")
	return sub, nil
}
