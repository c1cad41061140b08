package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/artpar/billgate/domain/account"
	"github.com/artpar/billgate/domain/transaction"
	"github.com/artpar/billgate/ports"
)

// CustomerStore implements ports.CustomerStore using SQLite.
type CustomerStore struct {
	db *DB
}

// NewCustomerStore creates a new SQLite customer store.
func NewCustomerStore(db *DB) *CustomerStore {
	return &CustomerStore{db: db}
}

// Create stores a new customer.
func (s *CustomerStore) Create(ctx context.Context, c account.Customer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (
			id, name, company, email, address, city, country, zip,
			sales_tax_number, consolidated_billing, payment_due_days,
			sales_tax_percent, sales_tax_name, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.Name, c.Company, c.Email, c.Address, c.City, c.Country, c.Zip,
		c.SalesTaxNumber, c.ConsolidatedBilling, c.PaymentDueDays,
		decString(c.SalesTaxPercent), c.SalesTaxName, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil && isUniqueConstraintError(err) {
		return ErrDuplicate
	}
	return err
}

// Get retrieves a customer by ID.
func (s *CustomerStore) Get(ctx context.Context, id string) (account.Customer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, company, email, address, city, country, zip,
		       sales_tax_number, consolidated_billing, payment_due_days,
		       sales_tax_percent, sales_tax_name, created_at, updated_at
		FROM customers WHERE id = ?
	`, id)
	return scanCustomer(row)
}

// Update modifies a customer.
func (s *CustomerStore) Update(ctx context.Context, c account.Customer) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET name = ?, company = ?, email = ?, address = ?, city = ?,
		    country = ?, zip = ?, sales_tax_number = ?,
		    consolidated_billing = ?, payment_due_days = ?,
		    sales_tax_percent = ?, sales_tax_name = ?, updated_at = ?
		WHERE id = ?
	`,
		c.Name, c.Company, c.Email, c.Address, c.City, c.Country, c.Zip,
		c.SalesTaxNumber, c.ConsolidatedBilling, c.PaymentDueDays,
		decString(c.SalesTaxPercent), c.SalesTaxName, c.UpdatedAt, c.ID,
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

// List returns all customers.
func (s *CustomerStore) List(ctx context.Context) ([]account.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, company, email, address, city, country, zip,
		       sales_tax_number, consolidated_billing, payment_due_days,
		       sales_tax_percent, sales_tax_name, created_at, updated_at
		FROM customers ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []account.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (account.Customer, error) {
	var c account.Customer
	var taxPercent string

	err := row.Scan(
		&c.ID, &c.Name, &c.Company, &c.Email, &c.Address, &c.City,
		&c.Country, &c.Zip, &c.SalesTaxNumber, &c.ConsolidatedBilling,
		&c.PaymentDueDays, &taxPercent, &c.SalesTaxName,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return account.Customer{}, ErrNotFound
	}
	if err != nil {
		return account.Customer{}, err
	}
	if c.SalesTaxPercent, err = scanDecimal(taxPercent); err != nil {
		return account.Customer{}, err
	}
	return c, nil
}

// Ensure interface compliance.
var _ ports.CustomerStore = (*CustomerStore)(nil)

// ProviderStore implements ports.ProviderStore using SQLite.
type ProviderStore struct {
	db *DB
}

// NewProviderStore creates a new SQLite provider store.
func NewProviderStore(db *DB) *ProviderStore {
	return &ProviderStore{db: db}
}

// Create stores a new provider.
func (s *ProviderStore) Create(ctx context.Context, p account.Provider) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO providers (
			id, name, company, email, address, city, country, zip,
			flow, invoice_series, invoice_starting_number,
			proforma_series, proforma_starting_number,
			default_document_state, due_days,
			max_automatic_retries, retry_pattern, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.Name, p.Company, p.Email, p.Address, p.City, p.Country, p.Zip,
		string(p.Flow), p.InvoiceSeries, p.InvoiceStartingNumber,
		p.ProformaSeries, p.ProformaStartingNumber,
		string(p.DefaultDocumentState), p.DueDays,
		p.MaxAutomaticRetries, string(p.RetryPattern), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil && isUniqueConstraintError(err) {
		return ErrDuplicate
	}
	return err
}

// Get retrieves a provider by ID.
func (s *ProviderStore) Get(ctx context.Context, id string) (account.Provider, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, company, email, address, city, country, zip,
		       flow, invoice_series, invoice_starting_number,
		       proforma_series, proforma_starting_number,
		       default_document_state, due_days,
		       max_automatic_retries, retry_pattern, created_at, updated_at
		FROM providers WHERE id = ?
	`, id)
	return scanProvider(row)
}

// Update modifies a provider.
func (s *ProviderStore) Update(ctx context.Context, p account.Provider) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE providers
		SET name = ?, company = ?, email = ?, address = ?, city = ?,
		    country = ?, zip = ?, flow = ?,
		    invoice_series = ?, invoice_starting_number = ?,
		    proforma_series = ?, proforma_starting_number = ?,
		    default_document_state = ?, due_days = ?,
		    max_automatic_retries = ?, retry_pattern = ?, updated_at = ?
		WHERE id = ?
	`,
		p.Name, p.Company, p.Email, p.Address, p.City, p.Country, p.Zip,
		string(p.Flow), p.InvoiceSeries, p.InvoiceStartingNumber,
		p.ProformaSeries, p.ProformaStartingNumber,
		string(p.DefaultDocumentState), p.DueDays,
		p.MaxAutomaticRetries, string(p.RetryPattern), p.UpdatedAt, p.ID,
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

// List returns all providers.
func (s *ProviderStore) List(ctx context.Context) ([]account.Provider, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, company, email, address, city, country, zip,
		       flow, invoice_series, invoice_starting_number,
		       proforma_series, proforma_starting_number,
		       default_document_state, due_days,
		       max_automatic_retries, retry_pattern, created_at, updated_at
		FROM providers ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var providers []account.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

func scanProvider(row rowScanner) (account.Provider, error) {
	var p account.Provider
	var flow, docState, retryPattern string

	err := row.Scan(
		&p.ID, &p.Name, &p.Company, &p.Email, &p.Address, &p.City,
		&p.Country, &p.Zip, &flow,
		&p.InvoiceSeries, &p.InvoiceStartingNumber,
		&p.ProformaSeries, &p.ProformaStartingNumber,
		&docState, &p.DueDays,
		&p.MaxAutomaticRetries, &retryPattern, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return account.Provider{}, ErrNotFound
	}
	if err != nil {
		return account.Provider{}, err
	}
	p.Flow = account.Flow(flow)
	p.DefaultDocumentState = account.DocumentState(docState)
	p.RetryPattern = transaction.RetryPattern(retryPattern)
	return p, nil
}

// Ensure interface compliance.
var _ ports.ProviderStore = (*ProviderStore)(nil)

// PaymentMethodStore implements ports.PaymentMethodStore using SQLite.
type PaymentMethodStore struct {
	db    *DB
	clock ports.Clock
}

// NewPaymentMethodStore creates a new SQLite payment method store.
func NewPaymentMethodStore(db *DB, clock ports.Clock) *PaymentMethodStore {
	return &PaymentMethodStore{db: db, clock: clock}
}

// Create stores a new payment method.
func (s *PaymentMethodStore) Create(ctx context.Context, m account.PaymentMethod) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_methods (
			id, customer_id, processor_name, display_info,
			verified, canceled, valid_until, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.ID, m.CustomerID, m.ProcessorName, m.DisplayInfo,
		m.Verified, m.Canceled, nullTime(m.ValidUntil), m.CreatedAt, m.UpdatedAt,
	)
	if err != nil && isUniqueConstraintError(err) {
		return ErrDuplicate
	}
	return err
}

// Get retrieves a payment method by ID.
func (s *PaymentMethodStore) Get(ctx context.Context, id string) (account.PaymentMethod, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, processor_name, display_info,
		       verified, canceled, valid_until, created_at, updated_at
		FROM payment_methods WHERE id = ?
	`, id)
	return scanPaymentMethod(row)
}

// Update modifies a payment method.
func (s *PaymentMethodStore) Update(ctx context.Context, m account.PaymentMethod) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE payment_methods
		SET processor_name = ?, display_info = ?, verified = ?,
		    canceled = ?, valid_until = ?, updated_at = ?
		WHERE id = ?
	`,
		m.ProcessorName, m.DisplayInfo, m.Verified,
		m.Canceled, nullTime(m.ValidUntil), m.UpdatedAt, m.ID,
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

// Recurring returns the customer's usable recurring payment method.
func (s *PaymentMethodStore) Recurring(ctx context.Context, customerID string) (account.PaymentMethod, error) {
	now := s.clock.Now()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, processor_name, display_info,
		       verified, canceled, valid_until, created_at, updated_at
		FROM payment_methods
		WHERE customer_id = ? AND verified = 1 AND canceled = 0
		ORDER BY created_at DESC
	`, customerID)
	if err != nil {
		return account.PaymentMethod{}, err
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanPaymentMethod(rows)
		if err != nil {
			return account.PaymentMethod{}, err
		}
		if m.Usable(now) {
			return m, nil
		}
	}
	if err := rows.Err(); err != nil {
		return account.PaymentMethod{}, err
	}
	return account.PaymentMethod{}, ErrNotFound
}

func scanPaymentMethod(row rowScanner) (account.PaymentMethod, error) {
	var m account.PaymentMethod
	var validUntil sql.NullTime

	err := row.Scan(
		&m.ID, &m.CustomerID, &m.ProcessorName, &m.DisplayInfo,
		&m.Verified, &m.Canceled, &validUntil, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return account.PaymentMethod{}, ErrNotFound
	}
	if err != nil {
		return account.PaymentMethod{}, err
	}
	if validUntil.Valid {
		t := validUntil.Time.UTC()
		m.ValidUntil = &t
	}
	return m, nil
}

// Ensure interface compliance.
var _ ports.PaymentMethodStore = (*PaymentMethodStore)(nil)
