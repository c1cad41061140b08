package memory

import (
	"context"
	"sync"

	"github.com/artpar/billgate/domain/account"
	"github.com/artpar/billgate/ports"
)

// CustomerStore is an in-memory implementation of ports.CustomerStore.
type CustomerStore struct {
	mu        sync.RWMutex
	customers map[string]account.Customer
}

// NewCustomerStore creates a new in-memory customer store.
func NewCustomerStore() *CustomerStore {
	return &CustomerStore{customers: make(map[string]account.Customer)}
}

// Get retrieves a customer by ID.
func (s *CustomerStore) Get(ctx context.Context, id string) (account.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[id]
	if !ok {
		return account.Customer{}, ErrNotFound
	}
	return c, nil
}

// Create stores a new customer.
func (s *CustomerStore) Create(ctx context.Context, c account.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[c.ID]; ok {
		return ErrDuplicate
	}
	s.customers[c.ID] = c
	return nil
}

// Update modifies a customer.
func (s *CustomerStore) Update(ctx context.Context, c account.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[c.ID]; !ok {
		return ErrNotFound
	}
	s.customers[c.ID] = c
	return nil
}

// List returns all customers.
func (s *CustomerStore) List(ctx context.Context) ([]account.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]account.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		out = append(out, c)
	}
	return out, nil
}

var _ ports.CustomerStore = (*CustomerStore)(nil)

// ProviderStore is an in-memory implementation of ports.ProviderStore.
type ProviderStore struct {
	mu        sync.RWMutex
	providers map[string]account.Provider
}

// NewProviderStore creates a new in-memory provider store.
func NewProviderStore() *ProviderStore {
	return &ProviderStore{providers: make(map[string]account.Provider)}
}

// Get retrieves a provider by ID.
func (s *ProviderStore) Get(ctx context.Context, id string) (account.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[id]
	if !ok {
		return account.Provider{}, ErrNotFound
	}
	return p, nil
}

// Create stores a new provider.
func (s *ProviderStore) Create(ctx context.Context, p account.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.providers[p.ID]; ok {
		return ErrDuplicate
	}
	s.providers[p.ID] = p
	return nil
}

// Update modifies a provider.
func (s *ProviderStore) Update(ctx context.Context, p account.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.providers[p.ID]; !ok {
		return ErrNotFound
	}
	s.providers[p.ID] = p
	return nil
}

// List returns all providers.
func (s *ProviderStore) List(ctx context.Context) ([]account.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]account.Provider, 0, len(s.providers))
	for _, p := range s.providers {
		out = append(out, p)
	}
	return out, nil
}

var _ ports.ProviderStore = (*ProviderStore)(nil)

// PaymentMethodStore is an in-memory implementation of
// ports.PaymentMethodStore.
type PaymentMethodStore struct {
	mu      sync.RWMutex
	methods map[string]account.PaymentMethod
	clock   ports.Clock
}

// NewPaymentMethodStore creates a new in-memory payment method store. The
// clock decides usability of methods with expiry dates.
func NewPaymentMethodStore(clock ports.Clock) *PaymentMethodStore {
	return &PaymentMethodStore{
		methods: make(map[string]account.PaymentMethod),
		clock:   clock,
	}
}

// Get retrieves a payment method by ID.
func (s *PaymentMethodStore) Get(ctx context.Context, id string) (account.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.methods[id]
	if !ok {
		return account.PaymentMethod{}, ErrNotFound
	}
	return m, nil
}

// Create stores a new payment method.
func (s *PaymentMethodStore) Create(ctx context.Context, m account.PaymentMethod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.methods[m.ID]; ok {
		return ErrDuplicate
	}
	s.methods[m.ID] = m
	return nil
}

// Update modifies a payment method.
func (s *PaymentMethodStore) Update(ctx context.Context, m account.PaymentMethod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.methods[m.ID]; !ok {
		return ErrNotFound
	}
	s.methods[m.ID] = m
	return nil
}

// Recurring returns the customer's usable recurring payment method.
func (s *PaymentMethodStore) Recurring(ctx context.Context, customerID string) (account.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.clock.Now()
	for _, m := range s.methods {
		if m.CustomerID == customerID && m.Usable(now) {
			return m, nil
		}
	}
	return account.PaymentMethod{}, ErrNotFound
}

var _ ports.PaymentMethodStore = (*PaymentMethodStore)(nil)
