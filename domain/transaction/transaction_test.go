package transaction_test

import (
	"errors"
	"testing"
	"time"

	"github.com/artpar/billgate/domain/fsm"
	"github.com/artpar/billgate/domain/transaction"
)

var now = time.Date(2015, 6, 1, 12, 0, 0, 0, time.UTC)

func TestTransaction_Lifecycle(t *testing.T) {
	tx := transaction.Transaction{State: transaction.StateInitial}

	if err := tx.Process(now); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if tx.State != transaction.StatePending {
		t.Errorf("state = %s, want pending", tx.State)
	}
	if err := tx.Settle(now); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if tx.State != transaction.StateSettled || tx.FinalizedAt == nil {
		t.Errorf("state = %s, finalized = %v", tx.State, tx.FinalizedAt)
	}
}

func TestTransaction_GuardedTransitions(t *testing.T) {
	tests := []struct {
		name string
		from transaction.State
		op   func(*transaction.Transaction) error
	}{
		{"settle from initial", transaction.StateInitial, func(tx *transaction.Transaction) error { return tx.Settle(now) }},
		{"process from settled", transaction.StateSettled, func(tx *transaction.Transaction) error { return tx.Process(now) }},
		{"fail from initial", transaction.StateInitial, func(tx *transaction.Transaction) error { return tx.Fail(now, "declined") }},
		{"cancel from settled", transaction.StateSettled, func(tx *transaction.Transaction) error { return tx.Cancel(now) }},
		{"refund from initial", transaction.StateInitial, func(tx *transaction.Transaction) error { return tx.Refund(now) }},
		{"refund from settled", transaction.StateSettled, func(tx *transaction.Transaction) error { return tx.Refund(now) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := transaction.Transaction{State: tt.from}
			err := tt.op(&tx)
			var te *fsm.TransitionError
			if !errors.As(err, &te) {
				t.Fatalf("expected TransitionError, got %v", err)
			}
			if tx.State != tt.from {
				t.Errorf("state mutated to %s on failed transition", tx.State)
			}
		})
	}
}

func TestTransaction_CancelFromInitial(t *testing.T) {
	tx := transaction.Transaction{State: transaction.StateInitial}
	if err := tx.Cancel(now); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if tx.State != transaction.StateCanceled {
		t.Errorf("state = %s", tx.State)
	}
}

func TestState_Terminal(t *testing.T) {
	terminal := []transaction.State{
		transaction.StateSettled, transaction.StateFailed,
		transaction.StateCanceled, transaction.StateRefunded,
	}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	if transaction.StateInitial.Terminal() || transaction.StatePending.Terminal() {
		t.Error("initial/pending must not be terminal")
	}
}

func TestBackoff(t *testing.T) {
	day := 24 * time.Hour
	tests := []struct {
		pattern transaction.RetryPattern
		n       int
		want    time.Duration
	}{
		{transaction.RetryDaily, 0, day},
		{transaction.RetryDaily, 5, day},
		{transaction.RetryExponential, 0, day},
		{transaction.RetryExponential, 3, 8 * day},
		{transaction.RetryFibonacci, 0, 0},
		{transaction.RetryFibonacci, 1, day},
		{transaction.RetryFibonacci, 2, day},
		{transaction.RetryFibonacci, 3, 2 * day},
		{transaction.RetryFibonacci, 7, 13 * day},
	}

	for _, tt := range tests {
		if got := transaction.Backoff(tt.pattern, tt.n); got != tt.want {
			t.Errorf("Backoff(%s, %d) = %v, want %v", tt.pattern, tt.n, got, tt.want)
		}
	}
}

func TestNextRetryAt(t *testing.T) {
	created := time.Date(2015, 6, 1, 0, 0, 0, 0, time.UTC)
	got := transaction.NextRetryAt(created, transaction.RetryExponential, 3)
	want := time.Date(2015, 6, 9, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("NextRetryAt = %v, want %v", got, want)
	}
}
