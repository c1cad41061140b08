package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/artpar/billgate/domain/account"
	"github.com/artpar/billgate/domain/document"
	"github.com/artpar/billgate/ports"
)

// DocumentStore implements ports.DocumentStore using SQLite. Customer and
// provider snapshots are stored as JSON alongside the document row.
type DocumentStore struct {
	db *DB
}

// NewDocumentStore creates a new SQLite document store.
func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// Create stores a new draft document.
func (s *DocumentStore) Create(ctx context.Context, d document.Document) error {
	archivedCustomer, archivedProvider, err := marshalSnapshots(d)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (
			id, kind, series, number, customer_id, provider_id,
			archived_customer, archived_provider, state, currency,
			currency_rate, sales_tax_percent, sales_tax_name,
			issue_date, due_date, paid_date, cancel_date,
			related_id, pdf_path, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.ID, string(d.Kind), d.Series, d.Number, d.CustomerID, d.ProviderID,
		archivedCustomer, archivedProvider, string(d.State), d.Currency,
		decString(d.CurrencyRate), decString(d.SalesTaxPercent), d.SalesTaxName,
		nullTime(d.IssueDate), nullTime(d.DueDate), nullTime(d.PaidDate),
		nullTime(d.CancelDate), d.RelatedID, d.PDFPath, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil && isUniqueConstraintError(err) {
		return ErrDuplicate
	}
	return err
}

// Get retrieves a document by ID.
func (s *DocumentStore) Get(ctx context.Context, id string) (document.Document, error) {
	row := s.db.QueryRowContext(ctx, documentSelect+` WHERE id = ?`, id)
	return scanDocument(row)
}

// Update modifies a document.
func (s *DocumentStore) Update(ctx context.Context, d document.Document) error {
	archivedCustomer, archivedProvider, err := marshalSnapshots(d)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET series = ?, number = ?, archived_customer = ?,
		    archived_provider = ?, state = ?, currency = ?,
		    currency_rate = ?, sales_tax_percent = ?, sales_tax_name = ?,
		    issue_date = ?, due_date = ?, paid_date = ?, cancel_date = ?,
		    related_id = ?, pdf_path = ?, updated_at = ?
		WHERE id = ?
	`,
		d.Series, d.Number, archivedCustomer, archivedProvider,
		string(d.State), d.Currency, decString(d.CurrencyRate),
		decString(d.SalesTaxPercent), d.SalesTaxName,
		nullTime(d.IssueDate), nullTime(d.DueDate), nullTime(d.PaidDate),
		nullTime(d.CancelDate), d.RelatedID, d.PDFPath, d.UpdatedAt, d.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicate
		}
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

// GetDraft returns the open draft of the given kind for a
// (provider, customer) pair.
func (s *DocumentStore) GetDraft(ctx context.Context, providerID, customerID string, kind document.Kind) (document.Document, error) {
	row := s.db.QueryRowContext(ctx, documentSelect+`
		WHERE provider_id = ? AND customer_id = ? AND kind = ? AND state = 'draft'
		ORDER BY created_at LIMIT 1
	`, providerID, customerID, string(kind))
	return scanDocument(row)
}

// NextNumber atomically assigns the next number for a series. The counter
// row is upserted in a single statement so concurrent issuers get distinct
// consecutive numbers.
func (s *DocumentStore) NextNumber(ctx context.Context, providerID, series string, startingNumber int64) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO document_counters (provider_id, series, value)
		VALUES (?, ?, ?)
		ON CONFLICT (provider_id, series) DO UPDATE SET value = value + 1
		RETURNING value
	`, providerID, series, startingNumber).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// AddEntry appends a line item to a draft document.
func (s *DocumentStore) AddEntry(ctx context.Context, e document.Entry) error {
	d, err := s.Get(ctx, e.DocumentID)
	if err != nil {
		return err
	}
	if err := d.EnsureEditable(); err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO document_entries (
			id, document_id, description, unit, unit_price, quantity,
			product_code, prorated, start_date, end_date,
			subscription_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.DocumentID, e.Description, e.Unit, decString(e.UnitPrice),
		decString(e.Quantity), e.ProductCode, e.Prorated,
		nullTime(e.StartDate), nullTime(e.EndDate), e.SubscriptionID, e.CreatedAt,
	)
	if err != nil && isUniqueConstraintError(err) {
		return ErrDuplicate
	}
	return err
}

// DeleteEntry removes a line item by ID.
func (s *DocumentStore) DeleteEntry(ctx context.Context, entryID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM document_entries WHERE id = ?`, entryID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Entries returns a document's line items in creation order.
func (s *DocumentStore) Entries(ctx context.Context, documentID string) ([]document.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, description, unit, unit_price, quantity,
		       product_code, prorated, start_date, end_date,
		       subscription_id, created_at
		FROM document_entries
		WHERE document_id = ?
		ORDER BY created_at, id
	`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []document.Entry
	for rows.Next() {
		var e document.Entry
		var unitPrice, quantity string
		var startDate, endDate sql.NullTime
		err := rows.Scan(
			&e.ID, &e.DocumentID, &e.Description, &e.Unit, &unitPrice,
			&quantity, &e.ProductCode, &e.Prorated, &startDate, &endDate,
			&e.SubscriptionID, &e.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if e.UnitPrice, err = scanDecimal(unitPrice); err != nil {
			return nil, err
		}
		if e.Quantity, err = scanDecimal(quantity); err != nil {
			return nil, err
		}
		e.StartDate = utcTimePtr(startDate)
		e.EndDate = utcTimePtr(endDate)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListByCustomer returns a customer's documents, newest first.
func (s *DocumentStore) ListByCustomer(ctx context.Context, customerID string) ([]document.Document, error) {
	rows, err := s.db.QueryContext(ctx, documentSelect+`
		WHERE customer_id = ?
		ORDER BY created_at DESC, id DESC
	`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []document.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

const documentSelect = `
	SELECT id, kind, series, number, customer_id, provider_id,
	       archived_customer, archived_provider, state, currency,
	       currency_rate, sales_tax_percent, sales_tax_name,
	       issue_date, due_date, paid_date, cancel_date,
	       related_id, pdf_path, created_at, updated_at
	FROM documents`

func marshalSnapshots(d document.Document) (sql.NullString, sql.NullString, error) {
	var customer, provider sql.NullString
	if d.ArchivedCustomer != nil {
		b, err := json.Marshal(d.ArchivedCustomer)
		if err != nil {
			return customer, provider, err
		}
		customer = sql.NullString{String: string(b), Valid: true}
	}
	if d.ArchivedProvider != nil {
		b, err := json.Marshal(d.ArchivedProvider)
		if err != nil {
			return customer, provider, err
		}
		provider = sql.NullString{String: string(b), Valid: true}
	}
	return customer, provider, nil
}

func scanDocument(row rowScanner) (document.Document, error) {
	var d document.Document
	var kind, state, currencyRate, taxPercent string
	var archivedCustomer, archivedProvider sql.NullString
	var issueDate, dueDate, paidDate, cancelDate sql.NullTime

	err := row.Scan(
		&d.ID, &kind, &d.Series, &d.Number, &d.CustomerID, &d.ProviderID,
		&archivedCustomer, &archivedProvider, &state, &d.Currency,
		&currencyRate, &taxPercent, &d.SalesTaxName,
		&issueDate, &dueDate, &paidDate, &cancelDate,
		&d.RelatedID, &d.PDFPath, &d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return document.Document{}, ErrNotFound
	}
	if err != nil {
		return document.Document{}, err
	}

	d.Kind = document.Kind(kind)
	d.State = document.State(state)
	if d.CurrencyRate, err = scanDecimal(currencyRate); err != nil {
		return document.Document{}, err
	}
	if d.SalesTaxPercent, err = scanDecimal(taxPercent); err != nil {
		return document.Document{}, err
	}
	d.IssueDate = utcTimePtr(issueDate)
	d.DueDate = utcTimePtr(dueDate)
	d.PaidDate = utcTimePtr(paidDate)
	d.CancelDate = utcTimePtr(cancelDate)

	if archivedCustomer.Valid {
		var c account.Customer
		if err := json.Unmarshal([]byte(archivedCustomer.String), &c); err != nil {
			return document.Document{}, err
		}
		d.ArchivedCustomer = &c
	}
	if archivedProvider.Valid {
		var p account.Provider
		if err := json.Unmarshal([]byte(archivedProvider.String), &p); err != nil {
			return document.Document{}, err
		}
		d.ArchivedProvider = &p
	}
	return d, nil
}

// Ensure interface compliance.
var _ ports.DocumentStore = (*DocumentStore)(nil)
