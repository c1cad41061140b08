// Package document provides the billing document state machine. Invoices
// and proformas share one shape and lifecycle; a proforma can generate and
// link to the invoice that finalizes it.
package document

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/artpar/billgate/domain/account"
	"github.com/artpar/billgate/domain/fsm"
)

// Kind distinguishes the two concrete document kinds.
type Kind string

const (
	KindInvoice  Kind = "invoice"
	KindProforma Kind = "proforma"
)

// State represents the lifecycle state of a document.
type State string

const (
	StateDraft    State = "draft"
	StateIssued   State = "issued"
	StatePaid     State = "paid"
	StateCanceled State = "canceled"
)

// Terminal reports whether the document reached a final state.
func (s State) Terminal() bool {
	return s == StatePaid || s == StateCanceled
}

// Document represents an invoice or proforma. Everything but the state is
// frozen once the document leaves draft; the number is assigned exactly
// once, at issue, and is unique and monotonic per (provider, series).
type Document struct {
	ID   string
	Kind Kind

	Series string
	Number int64 // zero until issued

	CustomerID string
	ProviderID string

	// Point-in-time snapshots captured at issue.
	ArchivedCustomer *account.Customer
	ArchivedProvider *account.Provider

	State        State
	Currency     string
	CurrencyRate decimal.Decimal // exchange rate carried, not converted

	SalesTaxPercent decimal.Decimal
	SalesTaxName    string

	IssueDate  *time.Time
	DueDate    *time.Time
	PaidDate   *time.Time
	CancelDate *time.Time

	// RelatedID links a proforma to its generated invoice and vice versa.
	// Set at most once.
	RelatedID string

	PDFPath   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// transitions maps each action to its allowed source states.
var transitions = map[string][]State{
	"issue":  {StateDraft},
	"pay":    {StateIssued},
	"cancel": {StateIssued},
}

// AllowedSources returns the source states permitting the given action.
func AllowedSources(action string) []State {
	return transitions[action]
}

func (d *Document) guard(action string) error {
	for _, s := range transitions[action] {
		if d.State == s {
			return nil
		}
	}
	return &fsm.TransitionError{Entity: string(d.Kind), From: string(d.State), Action: action}
}

// EnsureEditable rejects content edits on a non-draft document.
func (d *Document) EnsureEditable() error {
	if d.State != StateDraft {
		return fsm.Validationf("%s %s is %s; only draft documents can be modified",
			d.Kind, d.ID, d.State)
	}
	return nil
}

// Issue assigns the series number, snapshots the parties and stamps the
// issue and due dates. The number must come from the serialized per-series
// counter; Issue never computes it.
func (d *Document) Issue(number int64, issueDate time.Time, cust account.Customer, prov account.Provider) error {
	if err := d.guard("issue"); err != nil {
		return err
	}
	if number < 1 {
		return fsm.Validationf("document number must be positive, got %d", number)
	}

	d.Number = number
	d.ArchivedCustomer = &cust
	d.ArchivedProvider = &prov
	d.State = StateIssued
	d.IssueDate = &issueDate

	if d.SalesTaxPercent.IsZero() {
		d.SalesTaxPercent = cust.SalesTaxPercent
		d.SalesTaxName = cust.SalesTaxName
	}

	if d.DueDate == nil {
		dueDays := prov.DueDays
		if cust.PaymentDueDays > 0 {
			dueDays = cust.PaymentDueDays
		}
		due := issueDate.AddDate(0, 0, dueDays)
		d.DueDate = &due
	}
	d.UpdatedAt = issueDate
	return nil
}

// Pay marks an issued document paid. Propagation to the linked sibling is
// the orchestration layer's job; the flag lives there to stop the pair from
// paying each other forever.
func (d *Document) Pay(paidDate time.Time) error {
	if err := d.guard("pay"); err != nil {
		return err
	}
	d.State = StatePaid
	d.PaidDate = &paidDate
	d.UpdatedAt = paidDate
	return nil
}

// Cancel marks an issued document canceled.
func (d *Document) Cancel(cancelDate time.Time) error {
	if err := d.guard("cancel"); err != nil {
		return err
	}
	d.State = StateCanceled
	d.CancelDate = &cancelDate
	d.UpdatedAt = cancelDate
	return nil
}

// Link records the proforma/invoice pairing. It is a one-time operation.
func (d *Document) Link(relatedID string) error {
	if d.RelatedID != "" && d.RelatedID != relatedID {
		return fsm.Validationf("%s %s is already linked to %s", d.Kind, d.ID, d.RelatedID)
	}
	d.RelatedID = relatedID
	return nil
}
