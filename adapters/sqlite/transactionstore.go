package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/artpar/billgate/domain/transaction"
	"github.com/artpar/billgate/ports"
)

// TransactionStore implements ports.TransactionStore using SQLite. Partial
// unique indexes enforce the one-active-per-pair and one-retry-per-
// transaction invariants at the storage layer.
type TransactionStore struct {
	db *DB
}

// NewTransactionStore creates a new SQLite transaction store.
func NewTransactionStore(db *DB) *TransactionStore {
	return &TransactionStore{db: db}
}

// Create stores a new transaction. Unique index violations surface as
// ErrDuplicate.
func (s *TransactionStore) Create(ctx context.Context, t transaction.Transaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, payment_method_id, invoice_id, proforma_id, amount,
			currency, state, retried_transaction_id, retrial_type,
			valid_until, fail_reason, external_id,
			created_at, updated_at, processed_at, finalized_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.PaymentMethodID, t.InvoiceID, t.ProformaID, decString(t.Amount),
		t.Currency, string(t.State), nullString(t.RetriedTransactionID),
		string(t.RetrialType), nullTime(t.ValidUntil), t.FailReason,
		t.ExternalID, t.CreatedAt, t.UpdatedAt,
		nullTime(t.ProcessedAt), nullTime(t.FinalizedAt),
	)
	if err != nil && isUniqueConstraintError(err) {
		return ErrDuplicate
	}
	return err
}

// Get retrieves a transaction by ID.
func (s *TransactionStore) Get(ctx context.Context, id string) (transaction.Transaction, error) {
	row := s.db.QueryRowContext(ctx, transactionSelect+` WHERE id = ?`, id)
	return scanTransaction(row)
}

// Update modifies a transaction.
func (s *TransactionStore) Update(ctx context.Context, t transaction.Transaction) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET state = ?, fail_reason = ?, external_id = ?, updated_at = ?,
		    processed_at = ?, finalized_at = ?
		WHERE id = ?
	`,
		string(t.State), t.FailReason, t.ExternalID, t.UpdatedAt,
		nullTime(t.ProcessedAt), nullTime(t.FinalizedAt), t.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// RetryOf returns the transaction that retries the given one.
func (s *TransactionStore) RetryOf(ctx context.Context, id string) (transaction.Transaction, error) {
	row := s.db.QueryRowContext(ctx, transactionSelect+` WHERE retried_transaction_id = ?`, id)
	return scanTransaction(row)
}

// ListFailed returns failed transactions that have no retry yet.
func (s *TransactionStore) ListFailed(ctx context.Context) ([]transaction.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, transactionSelect+`
		WHERE state = 'failed'
		  AND id NOT IN (
			SELECT retried_transaction_id FROM transactions
			WHERE retried_transaction_id IS NOT NULL
		  )
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []transaction.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// ListForDocument returns the transactions charging a document, oldest
// first.
func (s *TransactionStore) ListForDocument(ctx context.Context, documentID string) ([]transaction.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, transactionSelect+`
		WHERE invoice_id = ? OR proforma_id = ?
		ORDER BY created_at, id
	`, documentID, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []transaction.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// SettledAmount sums settled transaction amounts against a document.
func (s *TransactionStore) SettledAmount(ctx context.Context, documentID string) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT amount FROM transactions
		WHERE state = 'settled' AND (invoice_id = ? OR proforma_id = ?)
	`, documentID, documentID)
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, err
		}
		a, err := scanDecimal(amount)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(a)
	}
	return total, rows.Err()
}

const transactionSelect = `
	SELECT id, payment_method_id, invoice_id, proforma_id, amount,
	       currency, state, retried_transaction_id, retrial_type,
	       valid_until, fail_reason, external_id,
	       created_at, updated_at, processed_at, finalized_at
	FROM transactions`

func scanTransaction(row rowScanner) (transaction.Transaction, error) {
	var t transaction.Transaction
	var amount, state, retrialType string
	var retriedID sql.NullString
	var validUntil, processedAt, finalizedAt sql.NullTime

	err := row.Scan(
		&t.ID, &t.PaymentMethodID, &t.InvoiceID, &t.ProformaID, &amount,
		&t.Currency, &state, &retriedID, &retrialType,
		&validUntil, &t.FailReason, &t.ExternalID,
		&t.CreatedAt, &t.UpdatedAt, &processedAt, &finalizedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return transaction.Transaction{}, ErrNotFound
	}
	if err != nil {
		return transaction.Transaction{}, err
	}

	t.State = transaction.State(state)
	t.RetrialType = transaction.RetrialType(retrialType)
	if t.Amount, err = scanDecimal(amount); err != nil {
		return transaction.Transaction{}, err
	}
	if retriedID.Valid {
		t.RetriedTransactionID = retriedID.String
	}
	t.ValidUntil = utcTimePtr(validUntil)
	t.ProcessedAt = utcTimePtr(processedAt)
	t.FinalizedAt = utcTimePtr(finalizedAt)
	return t, nil
}

// Ensure interface compliance.
var _ ports.TransactionStore = (*TransactionStore)(nil)
