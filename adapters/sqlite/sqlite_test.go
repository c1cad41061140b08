package sqlite_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/artpar/billgate/adapters/sqlite"
	"github.com/artpar/billgate/domain/account"
	"github.com/artpar/billgate/domain/calendar"
	"github.com/artpar/billgate/domain/document"
	"github.com/artpar/billgate/domain/plan"
	"github.com/artpar/billgate/domain/subscription"
	"github.com/artpar/billgate/domain/transaction"
)

func setupTestDB(t *testing.T) (*sqlite.DB, func()) {
	t.Helper()

	// Create temp file for test database
	f, err := os.CreateTemp("", "billgate-test-*.db")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	path := f.Name()
	f.Close()

	db, err := sqlite.Open(path)
	if err != nil {
		os.Remove(path)
		t.Fatalf("open database: %v", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		os.Remove(path)
		t.Fatalf("migrate: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.Remove(path)
	}

	return db, cleanup
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// -----------------------------------------------------------------------------
// CustomerStore Tests
// -----------------------------------------------------------------------------

func TestCustomerStore_CreateAndGet(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewCustomerStore(db)
	ctx := context.Background()

	c := account.Customer{
		ID:                  "cust-1",
		Name:                "Ada Lovelace",
		Email:               "ada@example.com",
		ConsolidatedBilling: true,
		PaymentDueDays:      10,
		SalesTaxPercent:     decimal.NewFromInt(19),
		SalesTaxName:        "VAT",
		CreatedAt:           day(2015, time.January, 1),
		UpdatedAt:           day(2015, time.January, 1),
	}
	if err := store.Create(ctx, c); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Create(ctx, c); !errors.Is(err, sqlite.ErrDuplicate) {
		t.Errorf("Create(duplicate) = %v, want ErrDuplicate", err)
	}

	got, err := store.Get(ctx, "cust-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != c.Name || !got.ConsolidatedBilling || got.PaymentDueDays != 10 {
		t.Errorf("Get = %+v", got)
	}
	if !got.SalesTaxPercent.Equal(decimal.NewFromInt(19)) {
		t.Errorf("SalesTaxPercent = %s, want 19", got.SalesTaxPercent)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, sqlite.ErrNotFound) {
		t.Errorf("Get(missing) = %v, want ErrNotFound", err)
	}
}

// -----------------------------------------------------------------------------
// PlanStore Tests
// -----------------------------------------------------------------------------

func TestPlanStore_CreateWithFeatures(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	providers := sqlite.NewProviderStore(db)
	store := sqlite.NewPlanStore(db)
	ctx := context.Background()

	prov := account.Provider{
		ID:        "prov-1",
		Name:      "Acme Billing",
		Flow:      account.FlowInvoice,
		CreatedAt: day(2015, time.January, 1),
		UpdatedAt: day(2015, time.January, 1),
	}
	if err := providers.Create(ctx, prov); err != nil {
		t.Fatalf("Create provider: %v", err)
	}

	p := plan.Plan{
		ID:            "plan-1",
		ProviderID:    "prov-1",
		Name:          "Hydrogen",
		Interval:      calendar.Month,
		IntervalCount: 1,
		Amount:        decimal.NewFromInt(100),
		Currency:      "USD",
		GenerateAfter: 6 * time.Hour,
		Enabled:       true,
		CreatedAt:     day(2015, time.January, 1),
		UpdatedAt:     day(2015, time.January, 1),
	}
	features := []plan.MeteredFeature{
		{
			ID:            "mf-1",
			PlanID:        "plan-1",
			Name:          "API calls",
			Unit:          "call",
			PricePerUnit:  decimal.NewFromFloat(0.01),
			IncludedUnits: decimal.NewFromInt(1000),
			CreatedAt:     day(2015, time.January, 1),
			UpdatedAt:     day(2015, time.January, 1),
		},
	}
	if err := store.Create(ctx, p, features); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.Get(ctx, "plan-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Interval != calendar.Month || got.GenerateAfter != 6*time.Hour {
		t.Errorf("Get = %+v", got)
	}
	if !got.Amount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Amount = %s, want 100", got.Amount)
	}

	fs, err := store.Features(ctx, "plan-1")
	if err != nil {
		t.Fatalf("Features: %v", err)
	}
	if len(fs) != 1 || !fs[0].PricePerUnit.Equal(decimal.NewFromFloat(0.01)) {
		t.Errorf("Features = %+v", fs)
	}
}

// -----------------------------------------------------------------------------
// BillingLogStore Tests
// -----------------------------------------------------------------------------

func TestBillingLogStore_AppendGate(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewBillingLogStore(db)
	ctx := context.Background()

	first := subscription.BillingLog{
		ID:                        "bl-1",
		SubscriptionID:            "sub-1",
		BillingDate:               day(2015, time.March, 1),
		PlanBilledUpTo:            day(2015, time.February, 28),
		MeteredFeaturesBilledUpTo: day(2015, time.January, 31),
		Total:                     decimal.NewFromInt(100),
		CreatedAt:                 day(2015, time.March, 1),
	}
	if err := store.Append(ctx, first); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Re-running the same window must lose the watermark race.
	stale := first
	stale.ID = "bl-2"
	if err := store.Append(ctx, stale); !errors.Is(err, sqlite.ErrStale) {
		t.Errorf("Append(same watermark) = %v, want ErrStale", err)
	}

	next := first
	next.ID = "bl-3"
	next.PlanBilledUpTo = day(2015, time.March, 31)
	if err := store.Append(ctx, next); err != nil {
		t.Errorf("Append(advancing) = %v", err)
	}

	latest, err := store.Latest(ctx, "sub-1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if !latest.PlanBilledUpTo.Equal(day(2015, time.March, 31)) {
		t.Errorf("Latest watermark = %v", latest.PlanBilledUpTo)
	}

	if _, err := store.Latest(ctx, "never-billed"); !errors.Is(err, sqlite.ErrNotFound) {
		t.Errorf("Latest(never billed) = %v, want ErrNotFound", err)
	}
}

// -----------------------------------------------------------------------------
// UnitsLogStore Tests
// -----------------------------------------------------------------------------

func TestUnitsLogStore_UpsertAndConsumed(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewUnitsLogStore(db)
	ctx := context.Background()

	log := subscription.MeteredFeatureUnitsLog{
		ID:               "ul-1",
		MeteredFeatureID: "mf-1",
		SubscriptionID:   "sub-1",
		StartDate:        day(2015, time.February, 1),
		EndDate:          day(2015, time.February, 28),
		ConsumedUnits:    decimal.NewFromInt(10),
		CreatedAt:        day(2015, time.February, 1),
		UpdatedAt:        day(2015, time.February, 1),
	}
	if err := store.Upsert(ctx, log, false); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	add := log
	add.ConsumedUnits = decimal.NewFromInt(7)
	if err := store.Upsert(ctx, add, true); err != nil {
		t.Fatalf("Upsert relative: %v", err)
	}

	got, err := store.Consumed(ctx, "mf-1", "sub-1", day(2015, time.February, 1), day(2015, time.February, 28))
	if err != nil {
		t.Fatalf("Consumed: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(17)) {
		t.Errorf("Consumed = %s, want 17", got)
	}

	overlap := log
	overlap.ID = "ul-2"
	overlap.StartDate = day(2015, time.February, 14)
	overlap.EndDate = day(2015, time.March, 14)
	if err := store.Upsert(ctx, overlap, false); !errors.Is(err, sqlite.ErrDuplicate) {
		t.Errorf("Upsert(overlap) = %v, want ErrDuplicate", err)
	}
}

// -----------------------------------------------------------------------------
// DocumentStore Tests
// -----------------------------------------------------------------------------

func TestDocumentStore_SnapshotRoundTrip(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	customers := sqlite.NewCustomerStore(db)
	providers := sqlite.NewProviderStore(db)
	store := sqlite.NewDocumentStore(db)
	ctx := context.Background()

	cust := account.Customer{ID: "cust-1", Name: "Ada", CreatedAt: day(2015, time.January, 1), UpdatedAt: day(2015, time.January, 1)}
	prov := account.Provider{ID: "prov-1", Name: "Acme", DueDays: 15, CreatedAt: day(2015, time.January, 1), UpdatedAt: day(2015, time.January, 1)}
	if err := customers.Create(ctx, cust); err != nil {
		t.Fatalf("Create customer: %v", err)
	}
	if err := providers.Create(ctx, prov); err != nil {
		t.Fatalf("Create provider: %v", err)
	}

	d := document.Document{
		ID:           "doc-1",
		Kind:         document.KindInvoice,
		CustomerID:   "cust-1",
		ProviderID:   "prov-1",
		State:        document.StateDraft,
		Currency:     "USD",
		CurrencyRate: decimal.NewFromInt(1),
		CreatedAt:    day(2015, time.March, 1),
		UpdatedAt:    day(2015, time.March, 1),
	}
	if err := store.Create(ctx, d); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Draft lookup finds it; issuing removes it from the draft pool.
	if _, err := store.GetDraft(ctx, "prov-1", "cust-1", document.KindInvoice); err != nil {
		t.Fatalf("GetDraft: %v", err)
	}

	got, err := store.Get(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := got.Issue(1, day(2015, time.March, 1), cust, prov); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	got.Series = "INV"
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if _, err := store.GetDraft(ctx, "prov-1", "cust-1", document.KindInvoice); !errors.Is(err, sqlite.ErrNotFound) {
		t.Errorf("GetDraft(after issue) = %v, want ErrNotFound", err)
	}

	reread, err := store.Get(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if reread.ArchivedCustomer == nil || reread.ArchivedCustomer.Name != "Ada" {
		t.Errorf("ArchivedCustomer = %+v", reread.ArchivedCustomer)
	}
	if reread.DueDate == nil || !reread.DueDate.Equal(day(2015, time.March, 16)) {
		t.Errorf("DueDate = %v, want 2015-03-16", reread.DueDate)
	}
}

func TestDocumentStore_NextNumber(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewDocumentStore(db)
	ctx := context.Background()

	for want := int64(100); want < 103; want++ {
		got, err := store.NextNumber(ctx, "prov-1", "INV", 100)
		if err != nil {
			t.Fatalf("NextNumber: %v", err)
		}
		if got != want {
			t.Errorf("NextNumber = %d, want %d", got, want)
		}
	}

	// A different series counts independently.
	got, err := store.NextNumber(ctx, "prov-1", "PF", 1)
	if err != nil {
		t.Fatalf("NextNumber: %v", err)
	}
	if got != 1 {
		t.Errorf("NextNumber(PF) = %d, want 1", got)
	}
}

// -----------------------------------------------------------------------------
// TransactionStore Tests
// -----------------------------------------------------------------------------

func TestTransactionStore_ActivePairIndex(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewTransactionStore(db)
	ctx := context.Background()

	first := transaction.Transaction{
		ID:        "tx-1",
		InvoiceID: "inv-1",
		Amount:    decimal.NewFromInt(100),
		Currency:  "USD",
		State:     transaction.StatePending,
		CreatedAt: day(2015, time.March, 1),
		UpdatedAt: day(2015, time.March, 1),
	}
	if err := store.Create(ctx, first); err != nil {
		t.Fatalf("Create: %v", err)
	}

	second := first
	second.ID = "tx-2"
	second.State = transaction.StateInitial
	if err := store.Create(ctx, second); !errors.Is(err, sqlite.ErrDuplicate) {
		t.Errorf("Create(second active) = %v, want ErrDuplicate", err)
	}

	// Finalizing the first frees the pair.
	if err := first.Fail(day(2015, time.March, 2), "card declined"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if err := store.Update(ctx, first); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := store.Create(ctx, second); err != nil {
		t.Errorf("Create(after finalize) = %v", err)
	}

	failed, err := store.ListFailed(ctx)
	if err != nil {
		t.Fatalf("ListFailed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "tx-1" {
		t.Errorf("ListFailed = %+v", failed)
	}
}

func TestTransactionStore_SingleRetryIndex(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewTransactionStore(db)
	ctx := context.Background()

	failed := transaction.Transaction{
		ID: "tx-1", InvoiceID: "inv-1", Currency: "USD",
		Amount: decimal.NewFromInt(100), State: transaction.StateFailed,
		CreatedAt: day(2015, time.March, 1), UpdatedAt: day(2015, time.March, 1),
	}
	if err := store.Create(ctx, failed); err != nil {
		t.Fatalf("Create: %v", err)
	}

	retry := failed
	retry.ID = "tx-2"
	retry.State = transaction.StateFailed
	retry.RetriedTransactionID = "tx-1"
	retry.RetrialType = transaction.RetrialAutomatic
	if err := store.Create(ctx, retry); err != nil {
		t.Fatalf("Create retry: %v", err)
	}

	dup := retry
	dup.ID = "tx-3"
	if err := store.Create(ctx, dup); !errors.Is(err, sqlite.ErrDuplicate) {
		t.Errorf("Create(second retry) = %v, want ErrDuplicate", err)
	}

	got, err := store.RetryOf(ctx, "tx-1")
	if err != nil {
		t.Fatalf("RetryOf: %v", err)
	}
	if got.ID != "tx-2" || got.RetrialType != transaction.RetrialAutomatic {
		t.Errorf("RetryOf = %+v", got)
	}
}

func TestTransactionStore_SettledAmount(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewTransactionStore(db)
	ctx := context.Background()

	settled := transaction.Transaction{
		ID: "tx-1", InvoiceID: "inv-1", Currency: "USD",
		Amount: decimal.NewFromInt(60), State: transaction.StateSettled,
		CreatedAt: day(2015, time.March, 1), UpdatedAt: day(2015, time.March, 1),
	}
	if err := store.Create(ctx, settled); err != nil {
		t.Fatalf("Create: %v", err)
	}
	pending := transaction.Transaction{
		ID: "tx-2", InvoiceID: "inv-1", Currency: "USD",
		Amount: decimal.NewFromInt(40), State: transaction.StatePending,
		CreatedAt: day(2015, time.March, 2), UpdatedAt: day(2015, time.March, 2),
	}
	if err := store.Create(ctx, pending); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.SettledAmount(ctx, "inv-1")
	if err != nil {
		t.Fatalf("SettledAmount: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(60)) {
		t.Errorf("SettledAmount = %s, want 60", got)
	}
}
