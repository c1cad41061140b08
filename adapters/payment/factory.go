package payment

import (
	"fmt"
	"sync"

	"github.com/artpar/billgate/ports"
)

// ProcessorConfig declares one processor instance to construct.
type ProcessorConfig struct {
	// Name is the registry key payment methods reference.
	Name string `yaml:"name"`

	// Kind selects the implementation: manual, dummy or stripe.
	Kind string `yaml:"kind"`

	// StripeSecretKey configures the stripe kind.
	StripeSecretKey string `yaml:"stripe_secret_key"`
}

// Registry holds named processors and implements ports.ProcessorRegistry.
type Registry struct {
	mu         sync.RWMutex
	processors map[string]ports.Processor
}

// NewRegistry builds a registry from configuration.
func NewRegistry(configs []ProcessorConfig) (*Registry, error) {
	r := &Registry{processors: make(map[string]ports.Processor)}

	for _, c := range configs {
		var p ports.Processor
		switch c.Kind {
		case "manual", "":
			p = NewManualProcessor(c.Name)

		case "dummy", "test":
			// Dummy processor for development/testing - simulates charges
			p = NewDummyProcessor()

		case "stripe":
			if c.StripeSecretKey == "" {
				return nil, fmt.Errorf("stripe secret key is required")
			}
			p = NewStripeProcessor(StripeConfig{SecretKey: c.StripeSecretKey})

		default:
			return nil, fmt.Errorf("unknown processor kind: %s", c.Kind)
		}

		name := c.Name
		if name == "" {
			name = p.Name()
		}
		if err := r.Register(name, p); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Register adds a processor under the given name.
func (r *Registry) Register(name string, p ports.Processor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.processors[name]; ok {
		return fmt.Errorf("processor %s already registered", name)
	}
	r.processors[name] = p
	return nil
}

// Get returns the named processor.
func (r *Registry) Get(name string) (ports.Processor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processors[name]
	if !ok {
		return nil, fmt.Errorf("unknown processor: %s", name)
	}
	return p, nil
}

// Ensure interface compliance.
var _ ports.ProcessorRegistry = (*Registry)(nil)
