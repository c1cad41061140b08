package bootstrap

import (
	"fmt"

	"github.com/artpar/billgate/adapters/memory"
	"github.com/artpar/billgate/adapters/sqlite"
	"github.com/artpar/billgate/config"
	"github.com/artpar/billgate/ports"
)

// Stores groups the persistence ports behind one struct so both database
// drivers produce the same wiring surface.
type Stores struct {
	Customers      ports.CustomerStore
	Providers      ports.ProviderStore
	Plans          ports.PlanStore
	Subscriptions  ports.SubscriptionStore
	BillingLogs    ports.BillingLogStore
	UnitsLogs      ports.UnitsLogStore
	Documents      ports.DocumentStore
	Transactions   ports.TransactionStore
	PaymentMethods ports.PaymentMethodStore
}

// openStores builds the store set for the configured driver. For sqlite the
// returned DB handle must be closed by the caller; for memory it is nil.
func openStores(cfg config.DatabaseConfig, clock ports.Clock) (Stores, *sqlite.DB, error) {
	switch cfg.Driver {
	case "memory":
		return Stores{
			Customers:      memory.NewCustomerStore(),
			Providers:      memory.NewProviderStore(),
			Plans:          memory.NewPlanStore(),
			Subscriptions:  memory.NewSubscriptionStore(),
			BillingLogs:    memory.NewBillingLogStore(),
			UnitsLogs:      memory.NewUnitsLogStore(),
			Documents:      memory.NewDocumentStore(),
			Transactions:   memory.NewTransactionStore(),
			PaymentMethods: memory.NewPaymentMethodStore(clock),
		}, nil, nil

	case "sqlite":
		db, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return Stores{}, nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return Stores{}, nil, fmt.Errorf("migrate database: %w", err)
		}
		return Stores{
			Customers:      sqlite.NewCustomerStore(db),
			Providers:      sqlite.NewProviderStore(db),
			Plans:          sqlite.NewPlanStore(db),
			Subscriptions:  sqlite.NewSubscriptionStore(db),
			BillingLogs:    sqlite.NewBillingLogStore(db),
			UnitsLogs:      sqlite.NewUnitsLogStore(db),
			Documents:      sqlite.NewDocumentStore(db),
			Transactions:   sqlite.NewTransactionStore(db),
			PaymentMethods: sqlite.NewPaymentMethodStore(db, clock),
		}, db, nil

	default:
		return Stores{}, nil, fmt.Errorf("unknown database driver: %s", cfg.Driver)
	}
}
