// Package transaction provides the payment transaction state machine and
// the retry backoff calculator.
package transaction

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/artpar/billgate/domain/fsm"
)

// State represents the lifecycle state of a transaction.
type State string

const (
	StateInitial  State = "initial"
	StatePending  State = "pending"
	StateSettled  State = "settled"
	StateFailed   State = "failed"
	StateCanceled State = "canceled"
	StateRefunded State = "refunded"
)

// Terminal reports whether the state permits no further transitions.
// Failed transactions are terminal too: a retry is a new transaction.
func (s State) Terminal() bool {
	switch s {
	case StateSettled, StateFailed, StateCanceled, StateRefunded:
		return true
	}
	return false
}

// RetrialType records how a retry transaction was initiated.
type RetrialType string

const (
	RetrialAutomatic RetrialType = "automatic"
	RetrialStaff     RetrialType = "staff"
)

// Transaction represents one payment attempt against an invoice/proforma
// pair (value type). Retries form a chain through RetriedTransactionID; the
// chain is stored flat and walked by ID lookups.
type Transaction struct {
	ID              string
	PaymentMethodID string
	InvoiceID       string
	ProformaID      string
	Amount          decimal.Decimal
	Currency        string
	State           State

	// RetriedTransactionID points at the transaction this one retries.
	// At most one retry exists per transaction.
	RetriedTransactionID string
	RetrialType          RetrialType

	ValidUntil   *time.Time
	FailReason   string
	ExternalID   string // processor-side reference
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ProcessedAt  *time.Time
	FinalizedAt  *time.Time
}

// transitions maps each action to its allowed source states. Kept as static
// data so the table itself is testable.
var transitions = map[string][]State{
	"process": {StateInitial},
	"settle":  {StatePending},
	"fail":    {StatePending},
	"cancel":  {StateInitial, StatePending},
	"refund":  {StatePending},
}

// AllowedSources returns the source states permitting the given action.
func AllowedSources(action string) []State {
	return transitions[action]
}

func (t *Transaction) transition(action string, to State, at time.Time) error {
	for _, s := range transitions[action] {
		if t.State == s {
			t.State = to
			t.UpdatedAt = at
			return nil
		}
	}
	return &fsm.TransitionError{Entity: "transaction", From: string(t.State), Action: action}
}

// Process moves the transaction to pending once handed to a processor.
func (t *Transaction) Process(at time.Time) error {
	if err := t.transition("process", StatePending, at); err != nil {
		return err
	}
	t.ProcessedAt = &at
	return nil
}

// Settle marks the transaction settled. The caller is responsible for
// propagating payment to the linked documents.
func (t *Transaction) Settle(at time.Time) error {
	if err := t.transition("settle", StateSettled, at); err != nil {
		return err
	}
	t.FinalizedAt = &at
	return nil
}

// Fail marks the transaction failed with the processor's reason.
func (t *Transaction) Fail(at time.Time, reason string) error {
	if err := t.transition("fail", StateFailed, at); err != nil {
		return err
	}
	t.FailReason = reason
	t.FinalizedAt = &at
	return nil
}

// Cancel voids an initial or pending transaction.
func (t *Transaction) Cancel(at time.Time) error {
	if err := t.transition("cancel", StateCanceled, at); err != nil {
		return err
	}
	t.FinalizedAt = &at
	return nil
}

// Refund marks a pending transaction refunded.
func (t *Transaction) Refund(at time.Time) error {
	if err := t.transition("refund", StateRefunded, at); err != nil {
		return err
	}
	t.FinalizedAt = &at
	return nil
}

// Active reports whether the transaction still occupies its document pair.
// At most one active transaction may exist per pair.
func (t Transaction) Active() bool {
	return t.State == StateInitial || t.State == StatePending
}

// IsRetry reports whether this transaction retries an earlier one.
func (t Transaction) IsRetry() bool {
	return t.RetriedTransactionID != ""
}
