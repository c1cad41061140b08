package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/artpar/billgate/domain/document"
	"github.com/artpar/billgate/ports"
)

// DocumentStore is an in-memory implementation of ports.DocumentStore.
type DocumentStore struct {
	mu       sync.Mutex
	docs     map[string]document.Document
	entries  map[string][]document.Entry // keyed by document ID
	counters map[string]int64            // keyed by providerID + "/" + series
}

// NewDocumentStore creates a new in-memory document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		docs:     make(map[string]document.Document),
		entries:  make(map[string][]document.Entry),
		counters: make(map[string]int64),
	}
}

// Get retrieves a document by ID.
func (s *DocumentStore) Get(ctx context.Context, id string) (document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return document.Document{}, ErrNotFound
	}
	return d, nil
}

// Create stores a new draft document.
func (s *DocumentStore) Create(ctx context.Context, d document.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[d.ID]; ok {
		return ErrDuplicate
	}
	s.docs[d.ID] = d
	return nil
}

// Update modifies a document.
func (s *DocumentStore) Update(ctx context.Context, d document.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[d.ID]; !ok {
		return ErrNotFound
	}
	s.docs[d.ID] = d
	return nil
}

// GetDraft returns the open draft of the given kind for a
// (provider, customer) pair.
func (s *DocumentStore) GetDraft(ctx context.Context, providerID, customerID string, kind document.Kind) (document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.docs {
		if d.ProviderID == providerID && d.CustomerID == customerID &&
			d.Kind == kind && d.State == document.StateDraft {
			return d, nil
		}
	}
	return document.Document{}, ErrNotFound
}

// NextNumber atomically assigns the next number for a series.
func (s *DocumentStore) NextNumber(ctx context.Context, providerID, series string, startingNumber int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := providerID + "/" + series
	n, ok := s.counters[key]
	if !ok {
		n = startingNumber - 1
	}
	n++
	s.counters[key] = n
	return n, nil
}

// AddEntry appends a line item to a draft document.
func (s *DocumentStore) AddEntry(ctx context.Context, e document.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[e.DocumentID]
	if !ok {
		return ErrNotFound
	}
	if err := d.EnsureEditable(); err != nil {
		return err
	}
	s.entries[e.DocumentID] = append(s.entries[e.DocumentID], e)
	return nil
}

// DeleteEntry removes a line item by ID.
func (s *DocumentStore) DeleteEntry(ctx context.Context, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for docID, list := range s.entries {
		for i, e := range list {
			if e.ID == entryID {
				s.entries[docID] = append(list[:i:i], list[i+1:]...)
				return nil
			}
		}
	}
	return ErrNotFound
}

// Entries returns a document's line items in creation order.
func (s *DocumentStore) Entries(ctx context.Context, documentID string) ([]document.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]document.Entry(nil), s.entries[documentID]...), nil
}

// ListByCustomer returns a customer's documents, newest first.
func (s *DocumentStore) ListByCustomer(ctx context.Context, customerID string) ([]document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []document.Document
	for _, d := range s.docs {
		if d.CustomerID == customerID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

var _ ports.DocumentStore = (*DocumentStore)(nil)
