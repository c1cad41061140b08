package payment

import (
	"context"
	"strings"
	"sync"

	"github.com/artpar/billgate/domain/account"
	"github.com/artpar/billgate/domain/transaction"
	"github.com/artpar/billgate/ports"
)

// DummyProcessor is a test/demo processor that simulates charges without
// moving money. Use it for development when real processor credentials
// aren't available. Transactions whose payment method display info contains
// "decline" are declined, so failure paths stay testable end to end.
type DummyProcessor struct {
	mu       sync.Mutex
	executed []string
	refunded []string
	voided   []string
}

// NewDummyProcessor creates a new dummy processor.
func NewDummyProcessor() *DummyProcessor {
	return &DummyProcessor{}
}

// Name returns the processor name.
func (p *DummyProcessor) Name() string {
	return "dummy"
}

// Type classifies the processor.
func (p *DummyProcessor) Type() ports.ProcessorType {
	return ports.ProcessorTriggered
}

// ExecuteTransaction simulates a charge. It declines transactions marked
// for decline and accepts everything else.
func (p *DummyProcessor) ExecuteTransaction(ctx context.Context, t transaction.Transaction) (bool, error) {
	p.mu.Lock()
	p.executed = append(p.executed, t.ID)
	p.mu.Unlock()
	if strings.Contains(t.FailReason, "decline") || strings.Contains(t.PaymentMethodID, "decline") {
		return false, nil
	}
	return true, nil
}

// RefundTransaction simulates a refund.
func (p *DummyProcessor) RefundTransaction(ctx context.Context, t transaction.Transaction, m account.PaymentMethod) error {
	p.mu.Lock()
	p.refunded = append(p.refunded, t.ID)
	p.mu.Unlock()
	return nil
}

// VoidTransaction simulates a void.
func (p *DummyProcessor) VoidTransaction(ctx context.Context, t transaction.Transaction, m account.PaymentMethod) error {
	p.mu.Lock()
	p.voided = append(p.voided, t.ID)
	p.mu.Unlock()
	return nil
}

// Executed returns the IDs of transactions this processor executed.
func (p *DummyProcessor) Executed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.executed...)
}

// Ensure interface compliance.
var (
	_ ports.Processor = (*DummyProcessor)(nil)
	_ ports.Executor  = (*DummyProcessor)(nil)
	_ ports.Refunder  = (*DummyProcessor)(nil)
	_ ports.Voider    = (*DummyProcessor)(nil)
)
