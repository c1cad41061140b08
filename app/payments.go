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
	"github.com/artpar/billgate/domain/fsm"
	"github.com/artpar/billgate/domain/transaction"
	"github.com/artpar/billgate/ports"
)

// PaymentService drives transactions through their processors and keeps
// documents consistent with settlement outcomes.
type PaymentService struct {
	transactions   ports.TransactionStore
	documents      ports.DocumentStore
	paymentMethods ports.PaymentMethodStore
	providers      ports.ProviderStore
	registry       ports.ProcessorRegistry
	docs           *DocumentService
	clock          ports.Clock
	idGen          ports.IDGenerator
	metrics        *metrics.Collector
	logger         zerolog.Logger
}

// NewPaymentService creates a new payment service.
func NewPaymentService(
	transactions ports.TransactionStore,
	documents ports.DocumentStore,
	paymentMethods ports.PaymentMethodStore,
	providers ports.ProviderStore,
	registry ports.ProcessorRegistry,
	docs *DocumentService,
	clock ports.Clock,
	idGen ports.IDGenerator,
	collector *metrics.Collector,
	logger zerolog.Logger,
) *PaymentService {
	return &PaymentService{
		transactions:   transactions,
		documents:      documents,
		paymentMethods: paymentMethods,
		providers:      providers,
		registry:       registry,
		docs:           docs,
		clock:          clock,
		idGen:          idGen,
		metrics:        collector,
		logger:         logger,
	}
}

// Execute runs an initial transaction against its processor. A processor
// decline fails the transaction; a processor error leaves it pending for a
// later reconciliation pass.
func (s *PaymentService) Execute(ctx context.Context, transactionID string) (transaction.Transaction, error) {
	tx, err := s.transactions.Get(ctx, transactionID)
	if err != nil {
		return transaction.Transaction{}, err
	}
	method, err := s.paymentMethods.Get(ctx, tx.PaymentMethodID)
	if err != nil {
		return transaction.Transaction{}, fmt.Errorf("load payment method: %w", err)
	}
	processor, err := s.registry.Get(method.ProcessorName)
	if err != nil {
		return transaction.Transaction{}, err
	}
	executor, ok := processor.(ports.Executor)
	if !ok {
		return transaction.Transaction{}, fmt.Errorf("processor %s cannot execute transactions", processor.Name())
	}

	now := s.clock.Now()
	if err := tx.Process(now); err != nil {
		return transaction.Transaction{}, err
	}
	if err := s.transactions.Update(ctx, tx); err != nil {
		return transaction.Transaction{}, err
	}

	charged, err := executor.ExecuteTransaction(ctx, tx)
	if err != nil {
		s.logger.Error().Err(err).
			Str("transaction_id", tx.ID).
			Str("processor", processor.Name()).
			Msg("processor error, transaction left pending")
		return tx, err
	}
	if !charged {
		return s.Fail(ctx, tx.ID, "declined by processor")
	}
	return s.Settle(ctx, tx.ID)
}

// Settle marks a pending transaction settled and pays its documents. A
// document already in a final state is skipped: settlement stays
// idempotent, and a processor confirmation racing a cancellation cannot
// drag a canceled document anywhere.
func (s *PaymentService) Settle(ctx context.Context, transactionID string) (transaction.Transaction, error) {
	tx, err := s.transactions.Get(ctx, transactionID)
	if err != nil {
		return transaction.Transaction{}, err
	}
	now := s.clock.Now()
	if err := tx.Settle(now); err != nil {
		return transaction.Transaction{}, err
	}
	if err := s.transactions.Update(ctx, tx); err != nil {
		return transaction.Transaction{}, err
	}

	s.logger.Info().
		Str("transaction_id", tx.ID).
		Str("amount", tx.Amount.String()).
		Msg("transaction settled")
	if s.metrics != nil {
		s.metrics.TransactionsSettled.WithLabelValues(s.processorName(ctx, tx)).Inc()
	}

	for _, docID := range []string{tx.ProformaID, tx.InvoiceID} {
		if docID == "" {
			continue
		}
		d, err := s.documents.Get(ctx, docID)
		if err != nil {
			return tx, fmt.Errorf("load document %s: %w", docID, err)
		}
		if d.State.Terminal() {
			continue
		}
		if _, err := s.docs.Pay(ctx, docID, now); err != nil {
			return tx, fmt.Errorf("pay document %s: %w", docID, err)
		}
	}
	return tx, nil
}

// Fail marks a pending transaction failed with a reason.
func (s *PaymentService) Fail(ctx context.Context, transactionID, reason string) (transaction.Transaction, error) {
	tx, err := s.transactions.Get(ctx, transactionID)
	if err != nil {
		return transaction.Transaction{}, err
	}
	if err := tx.Fail(s.clock.Now(), reason); err != nil {
		return transaction.Transaction{}, err
	}
	if err := s.transactions.Update(ctx, tx); err != nil {
		return transaction.Transaction{}, err
	}

	s.logger.Warn().
		Str("transaction_id", tx.ID).
		Str("reason", reason).
		Msg("transaction failed")
	if s.metrics != nil {
		s.metrics.TransactionsFailed.WithLabelValues(s.processorName(ctx, tx)).Inc()
	}
	return tx, nil
}

// Cancel voids an initial or pending transaction, asking the processor to
// void it when the capability exists.
func (s *PaymentService) Cancel(ctx context.Context, transactionID string) (transaction.Transaction, error) {
	tx, err := s.transactions.Get(ctx, transactionID)
	if err != nil {
		return transaction.Transaction{}, err
	}
	method, processor, err := s.resolveProcessor(ctx, tx)
	if err != nil {
		return transaction.Transaction{}, err
	}
	if voider, ok := processor.(ports.Voider); ok && tx.State == transaction.StatePending {
		if err := voider.VoidTransaction(ctx, tx, method); err != nil {
			return transaction.Transaction{}, fmt.Errorf("void at processor: %w", err)
		}
	}
	if err := tx.Cancel(s.clock.Now()); err != nil {
		return transaction.Transaction{}, err
	}
	if err := s.transactions.Update(ctx, tx); err != nil {
		return transaction.Transaction{}, err
	}
	return tx, nil
}

// Refund refunds a pending transaction through the processor.
func (s *PaymentService) Refund(ctx context.Context, transactionID string) (transaction.Transaction, error) {
	tx, err := s.transactions.Get(ctx, transactionID)
	if err != nil {
		return transaction.Transaction{}, err
	}
	method, processor, err := s.resolveProcessor(ctx, tx)
	if err != nil {
		return transaction.Transaction{}, err
	}
	refunder, ok := processor.(ports.Refunder)
	if !ok {
		return transaction.Transaction{}, fmt.Errorf("processor %s cannot refund transactions", processor.Name())
	}
	if err := refunder.RefundTransaction(ctx, tx, method); err != nil {
		return transaction.Transaction{}, fmt.Errorf("refund at processor: %w", err)
	}
	if err := tx.Refund(s.clock.Now()); err != nil {
		return transaction.Transaction{}, err
	}
	if err := s.transactions.Update(ctx, tx); err != nil {
		return transaction.Transaction{}, err
	}
	return tx, nil
}

// Retry creates a new transaction retrying a failed one. It fails fast on
// anything that would make the retry pointless: documents already settled
// or canceled, a retry already in flight, an amount above what remains
// payable, or a source that is not failed.
func (s *PaymentService) Retry(ctx context.Context, transactionID string, trigger transaction.RetrialType) (transaction.Transaction, error) {
	tx, err := s.transactions.Get(ctx, transactionID)
	if err != nil {
		return transaction.Transaction{}, err
	}
	if tx.State != transaction.StateFailed {
		return transaction.Transaction{}, fsm.Validationf("transaction %s is %s, only failed transactions can be retried", tx.ID, tx.State)
	}
	if _, err := s.transactions.RetryOf(ctx, tx.ID); err == nil {
		return transaction.Transaction{}, fsm.Validationf("transaction %s already has a retry", tx.ID)
	} else if !errors.Is(err, ports.ErrNotFound) {
		return transaction.Transaction{}, err
	}
	for _, docID := range []string{tx.ProformaID, tx.InvoiceID} {
		if docID == "" {
			continue
		}
		d, err := s.documents.Get(ctx, docID)
		if err != nil {
			return transaction.Transaction{}, fmt.Errorf("load document %s: %w", docID, err)
		}
		if d.State.Terminal() {
			return transaction.Transaction{}, fsm.Validationf("%s %s is %s, nothing to collect", d.Kind, d.ID, d.State)
		}
	}
	docID := tx.InvoiceID
	if docID == "" {
		docID = tx.ProformaID
	}
	remaining, err := s.docs.Remaining(ctx, docID)
	if err != nil {
		return transaction.Transaction{}, fmt.Errorf("compute remaining payable: %w", err)
	}
	if tx.Amount.GreaterThan(remaining) {
		return transaction.Transaction{}, fsm.Validationf("amount %s exceeds the %s remaining on %s", tx.Amount, remaining, docID)
	}

	method, err := s.paymentMethods.Get(ctx, tx.PaymentMethodID)
	if err != nil {
		return transaction.Transaction{}, fmt.Errorf("load payment method: %w", err)
	}
	if !method.Usable(s.clock.Now()) {
		return transaction.Transaction{}, fsm.Validationf("payment method %s is not usable", method.ID)
	}

	now := s.clock.Now()
	retry := transaction.Transaction{
		ID:                   s.idGen.New(),
		PaymentMethodID:      tx.PaymentMethodID,
		InvoiceID:            tx.InvoiceID,
		ProformaID:           tx.ProformaID,
		Amount:               tx.Amount,
		Currency:             tx.Currency,
		State:                transaction.StateInitial,
		RetriedTransactionID: tx.ID,
		RetrialType:          trigger,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.transactions.Create(ctx, retry); err != nil {
		return transaction.Transaction{}, err
	}

	s.logger.Info().
		Str("transaction_id", retry.ID).
		Str("retries", tx.ID).
		Str("trigger", string(trigger)).
		Msg("retry transaction created")
	if s.metrics != nil {
		s.metrics.TransactionRetries.WithLabelValues(string(trigger)).Inc()
	}
	return retry, nil
}

// AutomaticRetriesCount walks the retry chain backwards from tx and counts
// consecutive automatic retries. A staff retry resets the count: the chain
// restarts from manual intervention.
func (s *PaymentService) AutomaticRetriesCount(ctx context.Context, tx transaction.Transaction) (int, error) {
	count := 0
	for tx.IsRetry() {
		if tx.RetrialType != transaction.RetrialAutomatic {
			break
		}
		count++
		parent, err := s.transactions.Get(ctx, tx.RetriedTransactionID)
		if err != nil {
			return 0, fmt.Errorf("load retried transaction %s: %w", tx.RetriedTransactionID, err)
		}
		tx = parent
	}
	return count, nil
}

// ShouldRetryAutomatically reports whether the scheduler may retry the
// failed transaction now, per the provider's retry policy.
func (s *PaymentService) ShouldRetryAutomatically(ctx context.Context, tx transaction.Transaction, prov account.Provider, now time.Time) (bool, error) {
	if tx.State != transaction.StateFailed {
		return false, nil
	}
	count, err := s.AutomaticRetriesCount(ctx, tx)
	if err != nil {
		return false, err
	}
	if count >= prov.MaxAutomaticRetries {
		return false, nil
	}
	next := transaction.NextRetryAt(tx.CreatedAt, prov.RetryPattern, count)
	return !now.Before(next), nil
}

// RetryPass scans failed transactions and retries the eligible ones. Per-
// transaction errors are logged and skipped so one bad record cannot stall
// the pass.
func (s *PaymentService) RetryPass(ctx context.Context) error {
	failed, err := s.transactions.ListFailed(ctx)
	if err != nil {
		return fmt.Errorf("list failed transactions: %w", err)
	}
	now := s.clock.Now()

	for _, tx := range failed {
		prov, err := s.providerFor(ctx, tx)
		if err != nil {
			s.logger.Error().Err(err).Str("transaction_id", tx.ID).Msg("resolve provider")
			continue
		}
		ok, err := s.ShouldRetryAutomatically(ctx, tx, prov, now)
		if err != nil {
			s.logger.Error().Err(err).Str("transaction_id", tx.ID).Msg("evaluate retry policy")
			continue
		}
		if !ok {
			continue
		}
		retry, err := s.Retry(ctx, tx.ID, transaction.RetrialAutomatic)
		if err != nil {
			if fsm.IsValidation(err) || errors.Is(err, ports.ErrDuplicate) {
				continue
			}
			s.logger.Error().Err(err).Str("transaction_id", tx.ID).Msg("create retry")
			continue
		}
		if _, err := s.Execute(ctx, retry.ID); err != nil {
			s.logger.Error().Err(err).Str("transaction_id", retry.ID).Msg("execute retry")
		}
	}
	return nil
}

func (s *PaymentService) resolveProcessor(ctx context.Context, tx transaction.Transaction) (account.PaymentMethod, ports.Processor, error) {
	method, err := s.paymentMethods.Get(ctx, tx.PaymentMethodID)
	if err != nil {
		return account.PaymentMethod{}, nil, fmt.Errorf("load payment method: %w", err)
	}
	processor, err := s.registry.Get(method.ProcessorName)
	if err != nil {
		return account.PaymentMethod{}, nil, err
	}
	return method, processor, nil
}

func (s *PaymentService) providerFor(ctx context.Context, tx transaction.Transaction) (account.Provider, error) {
	docID := tx.InvoiceID
	if docID == "" {
		docID = tx.ProformaID
	}
	if docID == "" {
		return account.Provider{}, fmt.Errorf("transaction %s has no document", tx.ID)
	}
	d, err := s.documents.Get(ctx, docID)
	if err != nil {
		return account.Provider{}, err
	}
	return s.providers.Get(ctx, d.ProviderID)
}

func (s *PaymentService) processorName(ctx context.Context, tx transaction.Transaction) string {
	method, err := s.paymentMethods.Get(ctx, tx.PaymentMethodID)
	if err != nil {
		return "unknown"
	}
	return method.ProcessorName
}

// newTransactionFor builds the initial transaction collecting a document's
// balance, wiring the invoice/proforma pair from the document's link.
func newTransactionFor(d document.Document, method account.PaymentMethod, amount decimal.Decimal, id string, now time.Time) transaction.Transaction {
	tx := transaction.Transaction{
		ID:              id,
		PaymentMethodID: method.ID,
		Amount:          amount,
		Currency:        d.Currency,
		State:           transaction.StateInitial,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if d.Kind == document.KindProforma {
		tx.ProformaID = d.ID
		tx.InvoiceID = d.RelatedID
	} else {
		tx.InvoiceID = d.ID
		tx.ProformaID = d.RelatedID
	}
	return tx
}
