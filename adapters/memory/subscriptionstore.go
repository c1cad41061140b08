package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/artpar/billgate/domain/subscription"
	"github.com/artpar/billgate/ports"
)

// SubscriptionStore is an in-memory implementation of
// ports.SubscriptionStore.
type SubscriptionStore struct {
	mu   sync.RWMutex
	subs map[string]subscription.Subscription
}

// NewSubscriptionStore creates a new in-memory subscription store.
func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{subs: make(map[string]subscription.Subscription)}
}

// Get retrieves a subscription by ID.
func (s *SubscriptionStore) Get(ctx context.Context, id string) (subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	if !ok {
		return subscription.Subscription{}, ErrNotFound
	}
	return sub, nil
}

// Create stores a new subscription.
func (s *SubscriptionStore) Create(ctx context.Context, sub subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub.ID]; ok {
		return ErrDuplicate
	}
	s.subs[sub.ID] = sub
	return nil
}

// Update modifies a subscription.
func (s *SubscriptionStore) Update(ctx context.Context, sub subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub.ID]; !ok {
		return ErrNotFound
	}
	s.subs[sub.ID] = sub
	return nil
}

// ListBillable returns subscriptions the scheduler should consider.
func (s *SubscriptionStore) ListBillable(ctx context.Context) ([]subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]subscription.Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.Billable() {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var _ ports.SubscriptionStore = (*SubscriptionStore)(nil)

// BillingLogStore is an in-memory implementation of ports.BillingLogStore.
type BillingLogStore struct {
	mu   sync.Mutex
	logs map[string][]subscription.BillingLog // keyed by subscription ID
}

// NewBillingLogStore creates a new in-memory billing log store.
func NewBillingLogStore() *BillingLogStore {
	return &BillingLogStore{logs: make(map[string][]subscription.BillingLog)}
}

// Latest returns the newest entry for a subscription.
func (s *BillingLogStore) Latest(ctx context.Context, subscriptionID string) (subscription.BillingLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs := s.logs[subscriptionID]
	if len(logs) == 0 {
		return subscription.BillingLog{}, ErrNotFound
	}
	return logs[len(logs)-1], nil
}

// Append adds a ledger entry, verifying under the lock that the plan
// watermark advances past every existing entry. A stale watermark means
// another run already billed the window.
func (s *BillingLogStore) Append(ctx context.Context, log subscription.BillingLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs := s.logs[log.SubscriptionID]
	if len(logs) > 0 {
		last := logs[len(logs)-1]
		if !log.PlanBilledUpTo.After(last.PlanBilledUpTo) {
			return ErrStale
		}
	}
	s.logs[log.SubscriptionID] = append(logs, log)
	return nil
}

// List returns all entries for a subscription, newest first.
func (s *BillingLogStore) List(ctx context.Context, subscriptionID string) ([]subscription.BillingLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs := s.logs[subscriptionID]
	out := make([]subscription.BillingLog, len(logs))
	for i, l := range logs {
		out[len(logs)-1-i] = l
	}
	return out, nil
}

var _ ports.BillingLogStore = (*BillingLogStore)(nil)

// UnitsLogStore is an in-memory implementation of ports.UnitsLogStore.
type UnitsLogStore struct {
	mu   sync.Mutex
	logs []subscription.MeteredFeatureUnitsLog
}

// NewUnitsLogStore creates a new in-memory units log store.
func NewUnitsLogStore() *UnitsLogStore {
	return &UnitsLogStore{}
}

// Upsert creates or updates the log for the exact window. Relative updates
// add to the stored units; absolute updates replace them.
func (s *UnitsLogStore) Upsert(ctx context.Context, log subscription.MeteredFeatureUnitsLog, relative bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.logs {
		if l.MeteredFeatureID != log.MeteredFeatureID || l.SubscriptionID != log.SubscriptionID {
			continue
		}
		if l.StartDate.Equal(log.StartDate) && l.EndDate.Equal(log.EndDate) {
			if relative {
				l.ConsumedUnits = l.ConsumedUnits.Add(log.ConsumedUnits)
			} else {
				l.ConsumedUnits = log.ConsumedUnits
			}
			l.UpdatedAt = log.UpdatedAt
			s.logs[i] = l
			return nil
		}
		if l.Overlaps(log.StartDate, log.EndDate) {
			return ErrDuplicate
		}
	}
	s.logs = append(s.logs, log)
	return nil
}

// Consumed sums units consumed for a feature within [start, end].
func (s *UnitsLogStore) Consumed(ctx context.Context, featureID, subscriptionID string, start, end time.Time) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, l := range s.logs {
		if l.MeteredFeatureID != featureID || l.SubscriptionID != subscriptionID {
			continue
		}
		if !l.StartDate.Before(start) && !l.EndDate.After(end) {
			total = total.Add(l.ConsumedUnits)
		}
	}
	return total, nil
}

// ListBySubscription returns all logs for a subscription.
func (s *UnitsLogStore) ListBySubscription(ctx context.Context, subscriptionID string) ([]subscription.MeteredFeatureUnitsLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []subscription.MeteredFeatureUnitsLog
	for _, l := range s.logs {
		if l.SubscriptionID == subscriptionID {
			out = append(out, l)
		}
	}
	return out, nil
}

var _ ports.UnitsLogStore = (*UnitsLogStore)(nil)
