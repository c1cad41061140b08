// Package payment provides payment processor adapters.
package payment

import (
	"github.com/artpar/billgate/ports"
)

// ManualProcessor models payments settled outside the system (bank
// transfer, cash). It exposes no execution capabilities; transactions
// against it are settled by staff.
type ManualProcessor struct {
	name string
}

// NewManualProcessor creates a manual processor under the given name.
func NewManualProcessor(name string) *ManualProcessor {
	if name == "" {
		name = "manual"
	}
	return &ManualProcessor{name: name}
}

// Name returns the processor name.
func (p *ManualProcessor) Name() string {
	return p.name
}

// Type classifies the processor.
func (p *ManualProcessor) Type() ports.ProcessorType {
	return ports.ProcessorManual
}

// Ensure interface compliance.
var _ ports.Processor = (*ManualProcessor)(nil)
