// Package app contains the orchestration services. Business rules live in
// domain/; services wire them to stores, processors and the renderer, all
// injected through ports.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/artpar/billgate/adapters/metrics"
	"github.com/artpar/billgate/domain/account"
	"github.com/artpar/billgate/domain/document"
	"github.com/artpar/billgate/domain/transaction"
	"github.com/artpar/billgate/ports"
)

// DocumentService manages billing document lifecycle: drafting, numbering,
// issuing, payment and cancellation, plus the proforma-to-invoice flow.
type DocumentService struct {
	documents      ports.DocumentStore
	customers      ports.CustomerStore
	providers      ports.ProviderStore
	transactions   ports.TransactionStore
	paymentMethods ports.PaymentMethodStore
	registry       ports.ProcessorRegistry
	renderer       ports.DocumentRenderer
	clock          ports.Clock
	idGen          ports.IDGenerator
	metrics        *metrics.Collector
	logger         zerolog.Logger
}

// NewDocumentService creates a new document service.
func NewDocumentService(
	documents ports.DocumentStore,
	customers ports.CustomerStore,
	providers ports.ProviderStore,
	transactions ports.TransactionStore,
	paymentMethods ports.PaymentMethodStore,
	registry ports.ProcessorRegistry,
	renderer ports.DocumentRenderer,
	clock ports.Clock,
	idGen ports.IDGenerator,
	collector *metrics.Collector,
	logger zerolog.Logger,
) *DocumentService {
	return &DocumentService{
		documents:      documents,
		customers:      customers,
		providers:      providers,
		transactions:   transactions,
		paymentMethods: paymentMethods,
		registry:       registry,
		renderer:       renderer,
		clock:          clock,
		idGen:          idGen,
		metrics:        collector,
		logger:         logger,
	}
}

// CreateDraft creates a new draft document of the given kind.
func (s *DocumentService) CreateDraft(ctx context.Context, providerID, customerID, currency string, kind document.Kind) (document.Document, error) {
	now := s.clock.Now()
	d := document.Document{
		ID:           s.idGen.New(),
		Kind:         kind,
		CustomerID:   customerID,
		ProviderID:   providerID,
		State:        document.StateDraft,
		Currency:     currency,
		CurrencyRate: decimal.NewFromInt(1),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.documents.Create(ctx, d); err != nil {
		return document.Document{}, fmt.Errorf("create draft: %w", err)
	}
	if s.metrics != nil {
		s.metrics.DocumentsGenerated.WithLabelValues(string(kind)).Inc()
	}
	return d, nil
}

// Get returns a document with its entries.
func (s *DocumentService) Get(ctx context.Context, id string) (document.Document, []document.Entry, error) {
	d, err := s.documents.Get(ctx, id)
	if err != nil {
		return document.Document{}, nil, err
	}
	entries, err := s.documents.Entries(ctx, id)
	if err != nil {
		return document.Document{}, nil, err
	}
	return d, entries, nil
}

// Issue assigns the next series number, snapshots customer and provider,
// and moves the document to issued. A recurring payment method on the
// customer gets a transaction spawned to collect the balance.
func (s *DocumentService) Issue(ctx context.Context, documentID string, issueDate time.Time) (document.Document, error) {
	return s.issue(ctx, documentID, issueDate, true)
}

func (s *DocumentService) issue(ctx context.Context, documentID string, issueDate time.Time, spawn bool) (document.Document, error) {
	d, err := s.documents.Get(ctx, documentID)
	if err != nil {
		return document.Document{}, err
	}
	cust, err := s.customers.Get(ctx, d.CustomerID)
	if err != nil {
		return document.Document{}, fmt.Errorf("load customer: %w", err)
	}
	prov, err := s.providers.Get(ctx, d.ProviderID)
	if err != nil {
		return document.Document{}, fmt.Errorf("load provider: %w", err)
	}

	flow := flowFor(d.Kind)
	series := prov.Series(flow)
	number, err := s.documents.NextNumber(ctx, prov.ID, series, prov.StartingNumber(flow))
	if err != nil {
		return document.Document{}, fmt.Errorf("assign number: %w", err)
	}

	d.Series = series
	if err := d.Issue(number, issueDate, cust, prov); err != nil {
		return document.Document{}, err
	}
	d.UpdatedAt = s.clock.Now()
	if err := s.documents.Update(ctx, d); err != nil {
		return document.Document{}, fmt.Errorf("persist issue: %w", err)
	}

	s.logger.Info().
		Str("document_id", d.ID).
		Str("kind", string(d.Kind)).
		Str("series", d.Series).
		Int64("number", d.Number).
		Msg("document issued")
	if s.metrics != nil {
		s.metrics.DocumentsIssued.WithLabelValues(string(d.Kind)).Inc()
	}

	s.render(ctx, &d)
	if spawn {
		s.spawnTransaction(ctx, d)
	}
	return d, nil
}

// Pay marks the document paid and pays the linked sibling so the pair
// stays consistent. Paying a proforma generates the linked invoice first
// when the proforma was never converted; a sibling already past issued is
// left alone.
func (s *DocumentService) Pay(ctx context.Context, documentID string, paidDate time.Time) (document.Document, error) {
	d, err := s.documents.Get(ctx, documentID)
	if err != nil {
		return document.Document{}, err
	}
	if err := d.Pay(paidDate); err != nil {
		return document.Document{}, err
	}
	d.UpdatedAt = s.clock.Now()
	if err := s.documents.Update(ctx, d); err != nil {
		return document.Document{}, fmt.Errorf("persist payment: %w", err)
	}

	s.logger.Info().
		Str("document_id", d.ID).
		Str("kind", string(d.Kind)).
		Msg("document paid")
	if s.metrics != nil {
		s.metrics.DocumentsPaid.WithLabelValues(string(d.Kind)).Inc()
	}
	s.render(ctx, &d)

	if d.Kind == document.KindProforma {
		if err := s.payLinkedInvoice(ctx, &d, paidDate); err != nil {
			return document.Document{}, err
		}
	} else if d.RelatedID != "" {
		if err := s.paySibling(ctx, d.RelatedID, paidDate); err != nil {
			return document.Document{}, err
		}
	}
	return d, nil
}

// Cancel cancels an issued document, voids the transactions still trying
// to collect it, and cancels the linked sibling. A sibling that is not
// issued (never converted, or already final) is left alone.
func (s *DocumentService) Cancel(ctx context.Context, documentID string, cancelDate time.Time) (document.Document, error) {
	d, err := s.documents.Get(ctx, documentID)
	if err != nil {
		return document.Document{}, err
	}
	if err := d.Cancel(cancelDate); err != nil {
		return document.Document{}, err
	}
	d.UpdatedAt = s.clock.Now()
	if err := s.documents.Update(ctx, d); err != nil {
		return document.Document{}, fmt.Errorf("persist cancel: %w", err)
	}

	s.logger.Info().
		Str("document_id", d.ID).
		Str("kind", string(d.Kind)).
		Msg("document canceled")
	s.voidActiveTransactions(ctx, d)
	s.render(ctx, &d)

	if d.RelatedID != "" {
		if err := s.cancelSibling(ctx, d.RelatedID, cancelDate); err != nil {
			return document.Document{}, err
		}
	}
	return d, nil
}

// CreateInvoiceFromProforma creates the invoice for an issued proforma,
// copying its entries and linking the two. A proforma gets at most one
// invoice; calling this again returns the existing link.
func (s *DocumentService) CreateInvoiceFromProforma(ctx context.Context, proformaID string) (document.Document, error) {
	pf, err := s.documents.Get(ctx, proformaID)
	if err != nil {
		return document.Document{}, err
	}
	if pf.Kind != document.KindProforma {
		return document.Document{}, fmt.Errorf("document %s is not a proforma", proformaID)
	}
	if pf.RelatedID != "" {
		return s.documents.Get(ctx, pf.RelatedID)
	}
	if pf.State == document.StateDraft {
		return document.Document{}, fmt.Errorf("proforma %s is not issued yet", proformaID)
	}

	inv, err := s.CreateDraft(ctx, pf.ProviderID, pf.CustomerID, pf.Currency, document.KindInvoice)
	if err != nil {
		return document.Document{}, err
	}

	entries, err := s.documents.Entries(ctx, pf.ID)
	if err != nil {
		return document.Document{}, err
	}
	for _, e := range entries {
		e.ID = s.idGen.New()
		e.DocumentID = inv.ID
		e.CreatedAt = s.clock.Now()
		if err := s.documents.AddEntry(ctx, e); err != nil {
			return document.Document{}, fmt.Errorf("copy entry: %w", err)
		}
	}

	if err := inv.Link(pf.ID); err != nil {
		return document.Document{}, err
	}
	if err := s.documents.Update(ctx, inv); err != nil {
		return document.Document{}, err
	}
	if err := pf.Link(inv.ID); err != nil {
		return document.Document{}, err
	}
	pf.UpdatedAt = s.clock.Now()
	if err := s.documents.Update(ctx, pf); err != nil {
		return document.Document{}, err
	}

	s.logger.Info().
		Str("proforma_id", pf.ID).
		Str("invoice_id", inv.ID).
		Msg("invoice created from proforma")
	return inv, nil
}

// Totals returns the document's subtotal, tax and total.
func (s *DocumentService) Totals(ctx context.Context, documentID string) (subtotal, tax, total decimal.Decimal, err error) {
	d, entries, err := s.Get(ctx, documentID)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, err
	}
	subtotal, tax, total = d.Totals(entries)
	return subtotal, tax, total, nil
}

// Remaining returns the document total minus settled transaction amounts.
func (s *DocumentService) Remaining(ctx context.Context, documentID string) (decimal.Decimal, error) {
	_, _, total, err := s.Totals(ctx, documentID)
	if err != nil {
		return decimal.Zero, err
	}
	settled, err := s.transactions.SettledAmount(ctx, documentID)
	if err != nil {
		return decimal.Zero, err
	}
	return total.Sub(settled), nil
}

// payLinkedInvoice pays the proforma's invoice, creating it first when the
// proforma was never converted. An already paid invoice is left alone.
func (s *DocumentService) payLinkedInvoice(ctx context.Context, pf *document.Document, paidDate time.Time) error {
	var inv document.Document
	var err error
	if pf.RelatedID == "" {
		inv, err = s.CreateInvoiceFromProforma(ctx, pf.ID)
		if err != nil {
			return fmt.Errorf("create linked invoice: %w", err)
		}
		pf.RelatedID = inv.ID
		if _, err := s.issue(ctx, inv.ID, paidDate, false); err != nil {
			return fmt.Errorf("issue linked invoice: %w", err)
		}
	}

	inv, err = s.documents.Get(ctx, pf.RelatedID)
	if err != nil {
		return fmt.Errorf("load linked invoice: %w", err)
	}
	if inv.State == document.StatePaid {
		return nil
	}
	if _, err := s.Pay(ctx, inv.ID, paidDate); err != nil {
		return fmt.Errorf("pay linked invoice: %w", err)
	}
	return nil
}

// paySibling pays the linked document. Only an issued sibling is payable;
// one already in a final state is consistent and skipped.
func (s *DocumentService) paySibling(ctx context.Context, siblingID string, paidDate time.Time) error {
	sib, err := s.documents.Get(ctx, siblingID)
	if err != nil {
		return fmt.Errorf("load linked document: %w", err)
	}
	if sib.State != document.StateIssued {
		return nil
	}
	if _, err := s.Pay(ctx, sib.ID, paidDate); err != nil {
		return fmt.Errorf("pay linked document: %w", err)
	}
	return nil
}

// cancelSibling cancels the linked document. A sibling that is already
// canceled, or was never issued, is skipped.
func (s *DocumentService) cancelSibling(ctx context.Context, siblingID string, cancelDate time.Time) error {
	sib, err := s.documents.Get(ctx, siblingID)
	if err != nil {
		return fmt.Errorf("load linked document: %w", err)
	}
	if sib.State != document.StateIssued {
		return nil
	}
	if _, err := s.Cancel(ctx, sib.ID, cancelDate); err != nil {
		return fmt.Errorf("cancel linked document: %w", err)
	}
	return nil
}

// voidActiveTransactions cancels initial and pending transactions against
// the document pair so nothing settles against a canceled document. The
// transition already happened; failures here are logged, not propagated.
func (s *DocumentService) voidActiveTransactions(ctx context.Context, d document.Document) {
	txs, err := s.transactions.ListForDocument(ctx, d.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("document_id", d.ID).Msg("list transactions to void")
		return
	}
	for _, tx := range txs {
		if tx.State != transaction.StateInitial && tx.State != transaction.StatePending {
			continue
		}
		if tx.State == transaction.StatePending && s.registry != nil {
			if err := s.voidAtProcessor(ctx, tx); err != nil {
				s.logger.Error().Err(err).Str("transaction_id", tx.ID).Msg("void at processor")
				continue
			}
		}
		if err := tx.Cancel(s.clock.Now()); err != nil {
			s.logger.Error().Err(err).Str("transaction_id", tx.ID).Msg("cancel transaction")
			continue
		}
		if err := s.transactions.Update(ctx, tx); err != nil {
			s.logger.Error().Err(err).Str("transaction_id", tx.ID).Msg("persist voided transaction")
			continue
		}
		s.logger.Info().
			Str("transaction_id", tx.ID).
			Str("document_id", d.ID).
			Msg("transaction voided with document")
	}
}

func (s *DocumentService) voidAtProcessor(ctx context.Context, tx transaction.Transaction) error {
	method, err := s.paymentMethods.Get(ctx, tx.PaymentMethodID)
	if err != nil {
		return fmt.Errorf("load payment method: %w", err)
	}
	processor, err := s.registry.Get(method.ProcessorName)
	if err != nil {
		return err
	}
	if voider, ok := processor.(ports.Voider); ok {
		return voider.VoidTransaction(ctx, tx, method)
	}
	return nil
}

// render regenerates the customer-facing artifact. Rendering failures are
// logged, never propagated: the state transition already happened.
func (s *DocumentService) render(ctx context.Context, d *document.Document) {
	if s.renderer == nil {
		return
	}
	entries, err := s.documents.Entries(ctx, d.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("document_id", d.ID).Msg("load entries for render")
		return
	}
	path, err := s.renderer.Render(ctx, *d, entries)
	if err != nil {
		s.logger.Error().Err(err).Str("document_id", d.ID).Msg("render document")
		return
	}
	if path == "" || path == d.PDFPath {
		return
	}
	d.PDFPath = path
	if err := s.documents.Update(ctx, *d); err != nil {
		s.logger.Error().Err(err).Str("document_id", d.ID).Msg("persist render path")
	}
}

// spawnTransaction creates the collection transaction for a freshly issued
// document when the customer has a usable recurring payment method. A
// duplicate means an active transaction already covers the pair.
func (s *DocumentService) spawnTransaction(ctx context.Context, d document.Document) {
	if s.registry == nil {
		return
	}
	remaining, err := s.Remaining(ctx, d.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("document_id", d.ID).Msg("compute remaining")
		return
	}
	if !remaining.IsPositive() {
		return
	}

	method, err := s.paymentMethods.Recurring(ctx, d.CustomerID)
	if errors.Is(err, ports.ErrNotFound) {
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("customer_id", d.CustomerID).Msg("load payment method")
		return
	}

	tx := newTransactionFor(d, method, remaining, s.idGen.New(), s.clock.Now())
	if err := s.transactions.Create(ctx, tx); err != nil {
		if errors.Is(err, ports.ErrDuplicate) {
			return
		}
		s.logger.Error().Err(err).Str("document_id", d.ID).Msg("create transaction")
		return
	}

	s.logger.Info().
		Str("transaction_id", tx.ID).
		Str("document_id", d.ID).
		Str("processor", method.ProcessorName).
		Msg("transaction created")
	if s.metrics != nil {
		s.metrics.TransactionsCreated.WithLabelValues(method.ProcessorName).Inc()
	}
}

func flowFor(kind document.Kind) account.Flow {
	if kind == document.KindProforma {
		return account.FlowProforma
	}
	return account.FlowInvoice
}
