package memory

import (
	"context"
	"sync"

	"github.com/artpar/billgate/domain/plan"
	"github.com/artpar/billgate/ports"
)

// PlanStore is an in-memory implementation of ports.PlanStore.
type PlanStore struct {
	mu       sync.RWMutex
	plans    map[string]plan.Plan
	features map[string][]plan.MeteredFeature // keyed by plan ID
}

// NewPlanStore creates a new in-memory plan store.
func NewPlanStore() *PlanStore {
	return &PlanStore{
		plans:    make(map[string]plan.Plan),
		features: make(map[string][]plan.MeteredFeature),
	}
}

// Get retrieves a plan by ID.
func (s *PlanStore) Get(ctx context.Context, id string) (plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[id]
	if !ok {
		return plan.Plan{}, ErrNotFound
	}
	return p, nil
}

// Create stores a new plan with its metered features.
func (s *PlanStore) Create(ctx context.Context, p plan.Plan, features []plan.MeteredFeature) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[p.ID]; ok {
		return ErrDuplicate
	}
	s.plans[p.ID] = p
	s.features[p.ID] = append([]plan.MeteredFeature(nil), features...)
	return nil
}

// List returns all enabled plans.
func (s *PlanStore) List(ctx context.Context) ([]plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]plan.Plan, 0, len(s.plans))
	for _, p := range s.plans {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out, nil
}

// Features returns the metered features of a plan.
func (s *PlanStore) Features(ctx context.Context, planID string) ([]plan.MeteredFeature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.plans[planID]; !ok {
		return nil, ErrNotFound
	}
	return append([]plan.MeteredFeature(nil), s.features[planID]...), nil
}

var _ ports.PlanStore = (*PlanStore)(nil)
