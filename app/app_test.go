package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/artpar/billgate/adapters/clock"
	"github.com/artpar/billgate/adapters/idgen"
	"github.com/artpar/billgate/adapters/memory"
	"github.com/artpar/billgate/adapters/payment"
	"github.com/artpar/billgate/app"
	"github.com/artpar/billgate/domain/account"
	"github.com/artpar/billgate/domain/calendar"
	"github.com/artpar/billgate/domain/plan"
	"github.com/artpar/billgate/domain/subscription"
)

// fixture wires the services against in-memory stores with a fake clock.
type fixture struct {
	clock          *clock.Fake
	customers      *memory.CustomerStore
	providers      *memory.ProviderStore
	plans          *memory.PlanStore
	subscriptions  *memory.SubscriptionStore
	billingLogs    *memory.BillingLogStore
	unitsLogs      *memory.UnitsLogStore
	documents      *memory.DocumentStore
	transactions   *memory.TransactionStore
	paymentMethods *memory.PaymentMethodStore
	registry       *payment.Registry
	dummy          *payment.DummyProcessor

	docs     *app.DocumentService
	billing  *app.BillingService
	payments *app.PaymentService
	subs     *app.SubscriptionService
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()

	f := &fixture{
		clock:         clock.NewFake(now),
		customers:     memory.NewCustomerStore(),
		providers:     memory.NewProviderStore(),
		plans:         memory.NewPlanStore(),
		subscriptions: memory.NewSubscriptionStore(),
		billingLogs:   memory.NewBillingLogStore(),
		unitsLogs:     memory.NewUnitsLogStore(),
		documents:     memory.NewDocumentStore(),
		transactions:  memory.NewTransactionStore(),
		dummy:         payment.NewDummyProcessor(),
	}
	f.paymentMethods = memory.NewPaymentMethodStore(f.clock)

	registry, err := payment.NewRegistry([]payment.ProcessorConfig{{Name: "manual", Kind: "manual"}})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	f.registry = registry
	if err := f.registry.Register("dummy", f.dummy); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ids := idgen.NewSequential("id")
	logger := zerolog.Nop()

	f.docs = app.NewDocumentService(
		f.documents, f.customers, f.providers, f.transactions,
		f.paymentMethods, f.registry, nil, f.clock, ids, nil, logger,
	)
	f.billing = app.NewBillingService(
		f.subscriptions, f.plans, f.customers, f.providers,
		f.billingLogs, f.unitsLogs, f.documents, f.docs,
		f.clock, ids, nil, logger, 4,
	)
	f.payments = app.NewPaymentService(
		f.transactions, f.documents, f.paymentMethods, f.providers,
		f.registry, f.docs, f.clock, ids, nil, logger,
	)
	f.subs = app.NewSubscriptionService(
		f.subscriptions, f.plans, f.customers, f.clock, ids, logger,
	)
	return f
}

// seed creates a provider, customer, monthly plan and an active
// subscription starting on start.
func (f *fixture) seed(t *testing.T, prov account.Provider, cust account.Customer, p plan.Plan, features []plan.MeteredFeature, start time.Time) subscription.Subscription {
	t.Helper()
	ctx := context.Background()

	if err := f.providers.Create(ctx, prov); err != nil {
		t.Fatalf("create provider: %v", err)
	}
	if err := f.customers.Create(ctx, cust); err != nil {
		t.Fatalf("create customer: %v", err)
	}
	if err := f.plans.Create(ctx, p, features); err != nil {
		t.Fatalf("create plan: %v", err)
	}

	sub, err := f.subs.Create(ctx, cust.ID, p.ID, "")
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	sub, err = f.subs.Activate(ctx, sub.ID, start)
	if err != nil {
		t.Fatalf("activate subscription: %v", err)
	}
	return sub
}

func monthlyPlan(id, providerID string, amount int64) plan.Plan {
	return plan.Plan{
		ID:            id,
		ProviderID:    providerID,
		Name:          "Hydrogen",
		Interval:      calendar.Month,
		IntervalCount: 1,
		Amount:        decimal.NewFromInt(amount),
		Currency:      "USD",
		Enabled:       true,
	}
}

func baseProvider(id string) account.Provider {
	return account.Provider{
		ID:                    id,
		Name:                  "Acme Billing",
		Flow:                  account.FlowInvoice,
		InvoiceSeries:         "INV",
		InvoiceStartingNumber: 1,
		ProformaSeries:        "PF",
		DefaultDocumentState:  account.DocumentStateDraft,
		DueDays:               15,
	}
}

func baseCustomer(id string) account.Customer {
	return account.Customer{ID: id, Name: "Ada Lovelace", Email: "ada@example.com"}
}
