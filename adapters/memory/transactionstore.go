package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/artpar/billgate/domain/transaction"
	"github.com/artpar/billgate/ports"
)

// TransactionStore is an in-memory implementation of
// ports.TransactionStore.
type TransactionStore struct {
	mu  sync.Mutex
	txs map[string]transaction.Transaction
}

// NewTransactionStore creates a new in-memory transaction store.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{txs: make(map[string]transaction.Transaction)}
}

// Get retrieves a transaction by ID.
func (s *TransactionStore) Get(ctx context.Context, id string) (transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txs[id]
	if !ok {
		return transaction.Transaction{}, ErrNotFound
	}
	return t, nil
}

// Create stores a new transaction, enforcing under the lock that no active
// transaction occupies the document pair and that the retried transaction
// has no retry yet.
func (s *TransactionStore) Create(ctx context.Context, t transaction.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[t.ID]; ok {
		return ErrDuplicate
	}
	for _, other := range s.txs {
		if other.Active() && other.InvoiceID == t.InvoiceID && other.ProformaID == t.ProformaID {
			return ErrDuplicate
		}
		if t.RetriedTransactionID != "" && other.RetriedTransactionID == t.RetriedTransactionID {
			return ErrDuplicate
		}
	}
	s.txs[t.ID] = t
	return nil
}

// Update modifies a transaction.
func (s *TransactionStore) Update(ctx context.Context, t transaction.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[t.ID]; !ok {
		return ErrNotFound
	}
	s.txs[t.ID] = t
	return nil
}

// RetryOf returns the transaction that retries the given one.
func (s *TransactionStore) RetryOf(ctx context.Context, id string) (transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.txs {
		if t.RetriedTransactionID == id {
			return t, nil
		}
	}
	return transaction.Transaction{}, ErrNotFound
}

// ListFailed returns failed transactions that have no retry yet.
func (s *TransactionStore) ListFailed(ctx context.Context) ([]transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	retried := make(map[string]bool)
	for _, t := range s.txs {
		if t.RetriedTransactionID != "" {
			retried[t.RetriedTransactionID] = true
		}
	}
	var out []transaction.Transaction
	for _, t := range s.txs {
		if t.State == transaction.StateFailed && !retried[t.ID] {
			out = append(out, t)
		}
	}
	return out, nil
}

// ListForDocument returns the transactions charging a document, oldest
// first.
func (s *TransactionStore) ListForDocument(ctx context.Context, documentID string) ([]transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []transaction.Transaction
	for _, t := range s.txs {
		if t.InvoiceID == documentID || t.ProformaID == documentID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SettledAmount sums settled transaction amounts against a document.
func (s *TransactionStore) SettledAmount(ctx context.Context, documentID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, t := range s.txs {
		if t.State != transaction.StateSettled {
			continue
		}
		if t.InvoiceID == documentID || t.ProformaID == documentID {
			total = total.Add(t.Amount)
		}
	}
	return total, nil
}

var _ ports.TransactionStore = (*TransactionStore)(nil)
