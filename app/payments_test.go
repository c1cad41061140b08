package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/artpar/billgate/domain/account"
	"github.com/artpar/billgate/domain/document"
	"github.com/artpar/billgate/domain/fsm"
	"github.com/artpar/billgate/domain/transaction"
)

// issuedInvoice seeds accounts plus a recurring payment method, then issues
// an invoice for the amount. Issue spawns the collection transaction, which
// is returned alongside the document.
func (f *fixture) issuedInvoice(t *testing.T, methodID string, amount int64) (document.Document, transaction.Transaction) {
	t.Helper()
	ctx := context.Background()

	f.seedAccounts(t, baseProvider("prov-1"), baseCustomer("cust-1"))
	err := f.paymentMethods.Create(ctx, account.PaymentMethod{
		ID:            methodID,
		CustomerID:    "cust-1",
		ProcessorName: "dummy",
		Verified:      true,
		CreatedAt:     f.clock.Now(),
	})
	if err != nil {
		t.Fatalf("create payment method: %v", err)
	}

	draft, err := f.docs.CreateDraft(ctx, "prov-1", "cust-1", "USD", document.KindInvoice)
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	f.addEntry(t, draft.ID, amount)
	issued, err := f.docs.Issue(ctx, draft.ID, f.clock.Now())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	txs, err := f.transactions.ListForDocument(ctx, issued.ID)
	if err != nil {
		t.Fatalf("ListForDocument: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("transactions = %d, want the spawned one", len(txs))
	}
	return issued, txs[0]
}

func TestExecuteSettlesAndPaysInvoice(t *testing.T) {
	f := newFixture(t, day(2015, time.March, 1))
	ctx := context.Background()
	inv, tx := f.issuedInvoice(t, "pm-1", 100)

	settled, err := f.payments.Execute(ctx, tx.ID)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if settled.State != transaction.StateSettled {
		t.Fatalf("state = %s, want settled", settled.State)
	}
	if len(f.dummy.Executed()) != 1 {
		t.Errorf("processor executions = %d, want 1", len(f.dummy.Executed()))
	}

	d, _, err := f.docs.Get(ctx, inv.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.State != document.StatePaid {
		t.Errorf("invoice state = %s, want paid", d.State)
	}

	remaining, err := f.docs.Remaining(ctx, inv.ID)
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	if !remaining.IsZero() {
		t.Errorf("remaining = %s, want 0", remaining)
	}
}

func TestExecuteDeclineFailsTransaction(t *testing.T) {
	f := newFixture(t, day(2015, time.March, 1))
	ctx := context.Background()
	inv, tx := f.issuedInvoice(t, "pm-decline", 100)

	failed, err := f.payments.Execute(ctx, tx.ID)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if failed.State != transaction.StateFailed {
		t.Fatalf("state = %s, want failed", failed.State)
	}
	if failed.FailReason != "declined by processor" {
		t.Errorf("fail reason = %q", failed.FailReason)
	}

	// The document stays issued and collectible.
	d, _, err := f.docs.Get(ctx, inv.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.State != document.StateIssued {
		t.Errorf("invoice state = %s, want issued", d.State)
	}
}

func TestRetryRejectedWhenDocumentSettled(t *testing.T) {
	f := newFixture(t, day(2015, time.March, 1))
	ctx := context.Background()
	f.seedAccounts(t, baseProvider("prov-1"), baseCustomer("cust-1"))

	draft, err := f.docs.CreateDraft(ctx, "prov-1", "cust-1", "USD", document.KindInvoice)
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	f.addEntry(t, draft.ID, 100)
	if _, err := f.docs.Issue(ctx, draft.ID, f.clock.Now()); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	err = f.transactions.Create(ctx, transaction.Transaction{
		ID:        "tx-1",
		InvoiceID: draft.ID,
		Amount:    decimal.NewFromInt(100),
		Currency:  "USD",
		State:     transaction.StateFailed,
		CreatedAt: f.clock.Now(),
		UpdatedAt: f.clock.Now(),
	})
	if err != nil {
		t.Fatalf("create failed transaction: %v", err)
	}

	if _, err := f.docs.Pay(ctx, draft.ID, f.clock.Now()); err != nil {
		t.Fatalf("Pay: %v", err)
	}

	_, err = f.payments.Retry(ctx, "tx-1", transaction.RetrialStaff)
	if !fsm.IsValidation(err) {
		t.Errorf("Retry against a paid invoice = %v, want validation error", err)
	}
}

func TestRetryRejectsAmountAboveRemaining(t *testing.T) {
	f := newFixture(t, day(2015, time.March, 1))
	ctx := context.Background()
	inv, tx := f.issuedInvoice(t, "pm-decline", 100)

	if _, err := f.payments.Execute(ctx, tx.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// A partial settlement leaves 40 payable; the failed transaction still
	// asks for the full 100.
	err := f.transactions.Create(ctx, transaction.Transaction{
		ID:        "tx-partial",
		InvoiceID: inv.ID,
		Amount:    decimal.NewFromInt(60),
		Currency:  "USD",
		State:     transaction.StateSettled,
		CreatedAt: f.clock.Now(),
		UpdatedAt: f.clock.Now(),
	})
	if err != nil {
		t.Fatalf("create settled transaction: %v", err)
	}

	if _, err := f.payments.Retry(ctx, tx.ID, transaction.RetrialStaff); !fsm.IsValidation(err) {
		t.Errorf("Retry above remaining payable = %v, want validation error", err)
	}
}

func TestSettleSkipsCanceledDocument(t *testing.T) {
	f := newFixture(t, day(2015, time.March, 1))
	ctx := context.Background()
	inv, tx := f.issuedInvoice(t, "pm-1", 100)

	now := f.clock.Now()
	if err := tx.Process(now); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if err := f.transactions.Update(ctx, tx); err != nil {
		t.Fatalf("Update: %v", err)
	}

	// The document reached canceled while the processor confirmation was in
	// flight; settlement must not drag it anywhere.
	cancelDate := day(2015, time.March, 2)
	inv.State = document.StateCanceled
	inv.CancelDate = &cancelDate
	if err := f.documents.Update(ctx, inv); err != nil {
		t.Fatalf("Update document: %v", err)
	}

	settled, err := f.payments.Settle(ctx, tx.ID)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if settled.State != transaction.StateSettled {
		t.Errorf("transaction state = %s, want settled", settled.State)
	}
	d, _, err := f.docs.Get(ctx, inv.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.State != document.StateCanceled {
		t.Errorf("document state = %s, want canceled", d.State)
	}
}

func TestRetryRejectedWhenRetryExists(t *testing.T) {
	f := newFixture(t, day(2015, time.March, 1))
	ctx := context.Background()
	_, tx := f.issuedInvoice(t, "pm-decline", 100)

	if _, err := f.payments.Execute(ctx, tx.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	first, err := f.payments.Retry(ctx, tx.ID, transaction.RetrialStaff)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if first.RetriedTransactionID != tx.ID || first.RetrialType != transaction.RetrialStaff {
		t.Errorf("retry = %+v", first)
	}

	if _, err := f.payments.Retry(ctx, tx.ID, transaction.RetrialStaff); !fsm.IsValidation(err) {
		t.Errorf("second Retry = %v, want validation error", err)
	}
}

func TestRetryPassHonorsProviderPolicy(t *testing.T) {
	start := day(2015, time.March, 1)
	f := newFixture(t, start)
	ctx := context.Background()

	// newFixture seeds nothing, so tune the provider before seeding.
	prov := baseProvider("prov-1")
	prov.RetryPattern = transaction.RetryDaily
	prov.MaxAutomaticRetries = 1
	f.seedAccounts(t, prov, baseCustomer("cust-1"))

	err := f.paymentMethods.Create(ctx, account.PaymentMethod{
		ID:            "pm-decline",
		CustomerID:    "cust-1",
		ProcessorName: "dummy",
		Verified:      true,
	})
	if err != nil {
		t.Fatalf("create payment method: %v", err)
	}

	draft, err := f.docs.CreateDraft(ctx, "prov-1", "cust-1", "USD", document.KindInvoice)
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	f.addEntry(t, draft.ID, 100)
	inv, err := f.docs.Issue(ctx, draft.ID, start)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	txs, err := f.transactions.ListForDocument(ctx, inv.ID)
	if err != nil || len(txs) != 1 {
		t.Fatalf("ListForDocument: %v (%d txs)", err, len(txs))
	}
	if _, err := f.payments.Execute(ctx, txs[0].ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// Inside the daily backoff nothing happens.
	f.clock.Set(start.Add(2 * time.Hour))
	if err := f.payments.RetryPass(ctx); err != nil {
		t.Fatalf("RetryPass: %v", err)
	}
	if _, err := f.transactions.RetryOf(ctx, txs[0].ID); err == nil {
		t.Fatal("retry created before the backoff elapsed")
	}

	// Past it the retry is created and executed (and declines again).
	f.clock.Set(start.Add(25 * time.Hour))
	if err := f.payments.RetryPass(ctx); err != nil {
		t.Fatalf("RetryPass: %v", err)
	}
	retry, err := f.transactions.RetryOf(ctx, txs[0].ID)
	if err != nil {
		t.Fatalf("RetryOf: %v", err)
	}
	if retry.RetrialType != transaction.RetrialAutomatic {
		t.Errorf("trigger = %s, want automatic", retry.RetrialType)
	}
	if retry.State != transaction.StateFailed {
		t.Errorf("retry state = %s, want failed after decline", retry.State)
	}

	// The provider allows one automatic retry; the chain stops here.
	f.clock.Set(start.Add(72 * time.Hour))
	if err := f.payments.RetryPass(ctx); err != nil {
		t.Fatalf("RetryPass: %v", err)
	}
	if _, err := f.transactions.RetryOf(ctx, retry.ID); err == nil {
		t.Error("retry created beyond the provider's maximum")
	}
}

func TestAutomaticRetriesCountStopsAtStaff(t *testing.T) {
	f := newFixture(t, day(2015, time.March, 1))
	ctx := context.Background()
	now := f.clock.Now()

	chain := []transaction.Transaction{
		{ID: "t1", InvoiceID: "inv-1", State: transaction.StateFailed},
		{ID: "t2", InvoiceID: "inv-1", State: transaction.StateFailed, RetriedTransactionID: "t1", RetrialType: transaction.RetrialStaff},
		{ID: "t3", InvoiceID: "inv-1", State: transaction.StateFailed, RetriedTransactionID: "t2", RetrialType: transaction.RetrialAutomatic},
		{ID: "t4", InvoiceID: "inv-1", State: transaction.StateFailed, RetriedTransactionID: "t3", RetrialType: transaction.RetrialAutomatic},
	}
	for _, tx := range chain {
		tx.Amount = decimal.NewFromInt(10)
		tx.Currency = "USD"
		tx.CreatedAt = now
		tx.UpdatedAt = now
		if err := f.transactions.Create(ctx, tx); err != nil {
			t.Fatalf("create %s: %v", tx.ID, err)
		}
	}

	count, err := f.payments.AutomaticRetriesCount(ctx, chain[3])
	if err != nil {
		t.Fatalf("AutomaticRetriesCount: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2 (staff retry resets the chain)", count)
	}
}

func TestCancelVoidsPendingTransaction(t *testing.T) {
	f := newFixture(t, day(2015, time.March, 1))
	ctx := context.Background()
	_, tx := f.issuedInvoice(t, "pm-1", 100)

	// Hand it to the processor, then back out before settlement.
	now := f.clock.Now()
	if err := tx.Process(now); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if err := f.transactions.Update(ctx, tx); err != nil {
		t.Fatalf("Update: %v", err)
	}

	canceled, err := f.payments.Cancel(ctx, tx.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if canceled.State != transaction.StateCanceled {
		t.Errorf("state = %s, want canceled", canceled.State)
	}
}

func TestRefundRequiresProcessorCapability(t *testing.T) {
	f := newFixture(t, day(2015, time.March, 1))
	ctx := context.Background()
	f.seedAccounts(t, baseProvider("prov-1"), baseCustomer("cust-1"))

	err := f.paymentMethods.Create(ctx, account.PaymentMethod{
		ID:            "pm-manual",
		CustomerID:    "cust-1",
		ProcessorName: "manual",
		Verified:      true,
	})
	if err != nil {
		t.Fatalf("create payment method: %v", err)
	}
	err = f.transactions.Create(ctx, transaction.Transaction{
		ID:              "tx-manual",
		PaymentMethodID: "pm-manual",
		InvoiceID:       "inv-1",
		Amount:          decimal.NewFromInt(10),
		Currency:        "USD",
		State:           transaction.StatePending,
		CreatedAt:       f.clock.Now(),
		UpdatedAt:       f.clock.Now(),
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	if _, err := f.payments.Refund(ctx, "tx-manual"); err == nil {
		t.Error("refunded through a processor without the capability")
	}
}
