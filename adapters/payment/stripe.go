package payment

import (
	"context"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/refund"

	"github.com/artpar/billgate/domain/account"
	"github.com/artpar/billgate/domain/transaction"
	"github.com/artpar/billgate/ports"
)

// StripeConfig holds Stripe configuration.
type StripeConfig struct {
	SecretKey string
}

// StripeProcessor executes transactions through Stripe payment intents.
type StripeProcessor struct {
	config StripeConfig
}

// NewStripeProcessor creates a new Stripe processor.
func NewStripeProcessor(config StripeConfig) *StripeProcessor {
	stripe.Key = config.SecretKey
	return &StripeProcessor{config: config}
}

// Name returns the processor name.
func (p *StripeProcessor) Name() string {
	return "stripe"
}

// Type classifies the processor.
func (p *StripeProcessor) Type() ports.ProcessorType {
	return ports.ProcessorTriggered
}

// ExecuteTransaction charges the transaction amount by creating and
// confirming a payment intent against the stored payment method. A card
// error is a decline, not a system failure.
func (p *StripeProcessor) ExecuteTransaction(ctx context.Context, t transaction.Transaction) (bool, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(minorUnits(t)),
		Currency:      stripe.String(t.Currency),
		PaymentMethod: stripe.String(t.PaymentMethodID),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	params.AddMetadata("transaction_id", t.ID)

	pi, err := paymentintent.New(params)
	if err != nil {
		if stripeErr, ok := err.(*stripe.Error); ok && stripeErr.Type == stripe.ErrorTypeCard {
			return false, nil
		}
		return false, err
	}
	return pi.Status == stripe.PaymentIntentStatusSucceeded, nil
}

// RefundTransaction refunds the transaction's payment intent.
func (p *StripeProcessor) RefundTransaction(ctx context.Context, t transaction.Transaction, m account.PaymentMethod) error {
	_, err := refund.New(&stripe.RefundParams{
		PaymentIntent: stripe.String(t.ExternalID),
	})
	return err
}

// VoidTransaction cancels the transaction's not-yet-captured payment
// intent.
func (p *StripeProcessor) VoidTransaction(ctx context.Context, t transaction.Transaction, m account.PaymentMethod) error {
	_, err := paymentintent.Cancel(t.ExternalID, nil)
	return err
}

// minorUnits converts the decimal amount to the currency's minor unit as
// Stripe expects. Two decimal places covers the supported currencies.
func minorUnits(t transaction.Transaction) int64 {
	return t.Amount.Shift(2).IntPart()
}

// Ensure interface compliance.
var (
	_ ports.Processor = (*StripeProcessor)(nil)
	_ ports.Executor  = (*StripeProcessor)(nil)
	_ ports.Refunder  = (*StripeProcessor)(nil)
	_ ports.Voider    = (*StripeProcessor)(nil)
)
