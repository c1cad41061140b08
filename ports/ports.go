// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/artpar/billgate/domain/account"
	"github.com/artpar/billgate/domain/document"
	"github.com/artpar/billgate/domain/plan"
	"github.com/artpar/billgate/domain/subscription"
	"github.com/artpar/billgate/domain/transaction"
)

// Sentinel errors shared by all store implementations so callers can
// branch on them without knowing the backing adapter.
var (
	// ErrNotFound is returned when an entity is not found.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a unique constraint is violated.
	ErrDuplicate = errors.New("already exists")

	// ErrStale is returned when a billing ledger append loses the
	// watermark race.
	ErrStale = errors.New("stale watermark")
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// CustomerStore persists customers.
type CustomerStore interface {
	// Get retrieves a customer by ID.
	Get(ctx context.Context, id string) (account.Customer, error)

	// Create stores a new customer.
	Create(ctx context.Context, c account.Customer) error

	// Update modifies a customer.
	Update(ctx context.Context, c account.Customer) error

	// List returns all customers.
	List(ctx context.Context) ([]account.Customer, error)
}

// ProviderStore persists providers.
type ProviderStore interface {
	// Get retrieves a provider by ID.
	Get(ctx context.Context, id string) (account.Provider, error)

	// Create stores a new provider.
	Create(ctx context.Context, p account.Provider) error

	// Update modifies a provider.
	Update(ctx context.Context, p account.Provider) error

	// List returns all providers.
	List(ctx context.Context) ([]account.Provider, error)
}

// PlanStore persists plans and their metered features.
type PlanStore interface {
	// Get retrieves a plan by ID.
	Get(ctx context.Context, id string) (plan.Plan, error)

	// Create stores a new plan with its metered features.
	Create(ctx context.Context, p plan.Plan, features []plan.MeteredFeature) error

	// List returns all enabled plans.
	List(ctx context.Context) ([]plan.Plan, error)

	// Features returns the metered features of a plan.
	Features(ctx context.Context, planID string) ([]plan.MeteredFeature, error)
}

// SubscriptionStore persists subscriptions.
type SubscriptionStore interface {
	// Get retrieves a subscription by ID.
	Get(ctx context.Context, id string) (subscription.Subscription, error)

	// Create stores a new subscription.
	Create(ctx context.Context, s subscription.Subscription) error

	// Update modifies a subscription.
	Update(ctx context.Context, s subscription.Subscription) error

	// ListBillable returns subscriptions the scheduler should consider
	// (active and canceled-but-not-ended).
	ListBillable(ctx context.Context) ([]subscription.Subscription, error)
}

// BillingLogStore persists the append-only billing ledger.
type BillingLogStore interface {
	// Latest returns the newest entry for a subscription, or ErrNotFound
	// when the subscription was never billed.
	Latest(ctx context.Context, subscriptionID string) (subscription.BillingLog, error)

	// Append adds a ledger entry. The store re-verifies atomically that no
	// entry with a plan watermark at or past the new one exists for the
	// subscription and returns ErrStale otherwise; this is the
	// check-then-act gate that keeps concurrent runs from double billing.
	Append(ctx context.Context, log subscription.BillingLog) error

	// List returns all entries for a subscription, newest first.
	List(ctx context.Context, subscriptionID string) ([]subscription.BillingLog, error)
}

// UnitsLogStore persists metered feature consumption.
type UnitsLogStore interface {
	// Upsert creates or updates the log for the exact
	// (feature, subscription, start, end) window. Relative updates add to
	// the stored units; absolute updates replace them. A window
	// overlapping a different existing window is rejected.
	Upsert(ctx context.Context, log subscription.MeteredFeatureUnitsLog, relative bool) error

	// Consumed sums units consumed for a feature within [start, end].
	Consumed(ctx context.Context, featureID, subscriptionID string, start, end time.Time) (decimal.Decimal, error)

	// ListBySubscription returns all logs for a subscription.
	ListBySubscription(ctx context.Context, subscriptionID string) ([]subscription.MeteredFeatureUnitsLog, error)
}

// DocumentStore persists billing documents and their entries.
type DocumentStore interface {
	// Get retrieves a document by ID.
	Get(ctx context.Context, id string) (document.Document, error)

	// Create stores a new draft document.
	Create(ctx context.Context, d document.Document) error

	// Update modifies a document. Content fields may only change while the
	// document is draft; state transitions are always allowed.
	Update(ctx context.Context, d document.Document) error

	// GetDraft returns the open draft of the given kind for a
	// (provider, customer) pair, used for consolidated billing. Returns
	// ErrNotFound when no draft is open.
	GetDraft(ctx context.Context, providerID, customerID string, kind document.Kind) (document.Document, error)

	// NextNumber atomically assigns the next number for a series,
	// starting at startingNumber when the series is fresh. Assignment is
	// serialized per (provider, series).
	NextNumber(ctx context.Context, providerID, series string, startingNumber int64) (int64, error)

	// AddEntry appends a line item to a draft document.
	AddEntry(ctx context.Context, e document.Entry) error

	// DeleteEntry removes a line item by ID.
	DeleteEntry(ctx context.Context, entryID string) error

	// Entries returns a document's line items in creation order.
	Entries(ctx context.Context, documentID string) ([]document.Entry, error)

	// ListByCustomer returns a customer's documents, newest first.
	ListByCustomer(ctx context.Context, customerID string) ([]document.Document, error)
}

// TransactionStore persists payment transactions.
type TransactionStore interface {
	// Get retrieves a transaction by ID.
	Get(ctx context.Context, id string) (transaction.Transaction, error)

	// Create stores a new transaction. It returns ErrDuplicate when an
	// initial/pending transaction already occupies the document pair, or
	// when the retried transaction already has a retry - both enforced
	// atomically so concurrent schedulers cannot race.
	Create(ctx context.Context, t transaction.Transaction) error

	// Update modifies a transaction.
	Update(ctx context.Context, t transaction.Transaction) error

	// RetryOf returns the transaction that retries the given one, or
	// ErrNotFound.
	RetryOf(ctx context.Context, id string) (transaction.Transaction, error)

	// ListFailed returns failed transactions that have no retry yet.
	ListFailed(ctx context.Context) ([]transaction.Transaction, error)

	// ListForDocument returns the transactions charging a document,
	// oldest first.
	ListForDocument(ctx context.Context, documentID string) ([]transaction.Transaction, error)

	// SettledAmount sums settled transaction amounts against a document.
	SettledAmount(ctx context.Context, documentID string) (decimal.Decimal, error)
}

// PaymentMethodStore persists payment methods.
type PaymentMethodStore interface {
	// Get retrieves a payment method by ID.
	Get(ctx context.Context, id string) (account.PaymentMethod, error)

	// Create stores a new payment method.
	Create(ctx context.Context, m account.PaymentMethod) error

	// Update modifies a payment method.
	Update(ctx context.Context, m account.PaymentMethod) error

	// Recurring returns the customer's usable recurring payment method,
	// or ErrNotFound.
	Recurring(ctx context.Context, customerID string) (account.PaymentMethod, error)
}

// -----------------------------------------------------------------------------
// Payment Processor Ports
// -----------------------------------------------------------------------------

// ProcessorType classifies how a processor moves money.
type ProcessorType string

const (
	// ProcessorManual is settled by hand (bank transfer, cash); it exposes
	// no execution capabilities.
	ProcessorManual ProcessorType = "manual"

	// ProcessorAutomatic is driven by processor-side billing.
	ProcessorAutomatic ProcessorType = "automatic"

	// ProcessorTriggered executes when billgate asks it to.
	ProcessorTriggered ProcessorType = "triggered"
)

// Processor is the base payment processor contract. Capabilities are
// expressed as separate interfaces; dispatch by interface satisfaction, not
// by type name.
type Processor interface {
	// Name returns the processor name (e.g. "stripe", "manual").
	Name() string

	// Type classifies the processor.
	Type() ProcessorType
}

// Executor runs a transaction against the processor. The bool result is
// whether the charge went through; a false result with nil error means the
// processor declined.
type Executor interface {
	ExecuteTransaction(ctx context.Context, t transaction.Transaction) (bool, error)
}

// Refunder refunds a settled transaction.
type Refunder interface {
	RefundTransaction(ctx context.Context, t transaction.Transaction, m account.PaymentMethod) error
}

// Voider voids a not-yet-settled transaction.
type Voider interface {
	VoidTransaction(ctx context.Context, t transaction.Transaction, m account.PaymentMethod) error
}

// ProcessorRegistry resolves processors by name.
type ProcessorRegistry interface {
	// Get returns the named processor.
	Get(name string) (Processor, error)
}

// -----------------------------------------------------------------------------
// Rendering Ports
// -----------------------------------------------------------------------------

// DocumentRenderer produces the customer-facing artifact for a document.
// It is invoked after every state transition that changes visible content;
// rendering failures never roll a transition back.
type DocumentRenderer interface {
	// Render produces the artifact and returns its storage path.
	Render(ctx context.Context, d document.Document, entries []document.Entry) (string, error)
}
