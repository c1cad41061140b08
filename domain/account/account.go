// Package account provides customer, provider and payment method value
// types. Documents snapshot these at issue time.
package account

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/artpar/billgate/domain/transaction"
)

// Customer represents a paying customer.
type Customer struct {
	ID             string
	Name           string
	Company        string
	Email          string
	Address        string
	City           string
	Country        string
	Zip            string
	SalesTaxNumber string

	// ConsolidatedBilling combines all of the customer's subscriptions for
	// one provider onto a single document per billing run.
	ConsolidatedBilling bool

	// PaymentDueDays overrides the provider default when positive.
	PaymentDueDays int

	SalesTaxPercent decimal.Decimal
	SalesTaxName    string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Flow determines which document kind a provider issues first.
type Flow string

const (
	FlowInvoice  Flow = "invoice"
	FlowProforma Flow = "proforma"
)

// DocumentState is the state a provider's freshly generated documents take.
type DocumentState string

const (
	DocumentStateDraft  DocumentState = "draft"
	DocumentStateIssued DocumentState = "issued"
)

// Provider represents the billing entity issuing documents.
type Provider struct {
	ID      string
	Name    string
	Company string
	Email   string
	Address string
	City    string
	Country string
	Zip     string

	Flow Flow

	InvoiceSeries          string
	InvoiceStartingNumber  int64
	ProformaSeries         string
	ProformaStartingNumber int64

	// DefaultDocumentState set to issued makes generation auto-issue.
	DefaultDocumentState DocumentState

	// DueDays is the default payment term applied at issue.
	DueDays int

	MaxAutomaticRetries int
	RetryPattern        transaction.RetryPattern

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Series returns the document series for the given flow.
func (p Provider) Series(f Flow) string {
	if f == FlowProforma {
		return p.ProformaSeries
	}
	return p.InvoiceSeries
}

// StartingNumber returns the first number of a fresh series for the flow.
func (p Provider) StartingNumber(f Flow) int64 {
	n := p.InvoiceStartingNumber
	if f == FlowProforma {
		n = p.ProformaStartingNumber
	}
	if n < 1 {
		return 1
	}
	return n
}

// AutoIssues reports whether generated documents are issued immediately.
func (p Provider) AutoIssues() bool {
	return p.DefaultDocumentState == DocumentStateIssued
}

// PaymentMethod represents a stored payment instrument.
type PaymentMethod struct {
	ID            string
	CustomerID    string
	ProcessorName string
	DisplayInfo   string
	Verified      bool
	Canceled      bool
	ValidUntil    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Usable reports whether the method can fund a recurring charge now.
func (m PaymentMethod) Usable(now time.Time) bool {
	if !m.Verified || m.Canceled {
		return false
	}
	if m.ValidUntil != nil && m.ValidUntil.Before(now) {
		return false
	}
	return true
}
