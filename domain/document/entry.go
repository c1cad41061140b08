package document

import (
	"time"

	"github.com/shopspring/decimal"
)

// Entry is one line item on a document. Entries are immutable once the
// owning document leaves draft.
type Entry struct {
	ID         string
	DocumentID string

	Description string
	Unit        string
	UnitPrice   decimal.Decimal
	Quantity    decimal.Decimal
	ProductCode string

	// Prorated marks entries billed for a fraction of a full interval.
	Prorated bool

	// StartDate and EndDate bound the billed window this entry represents.
	StartDate *time.Time
	EndDate   *time.Time

	SubscriptionID string
	CreatedAt      time.Time
}

// Total returns quantity times unit price.
func (e Entry) Total() decimal.Decimal {
	return e.Quantity.Mul(e.UnitPrice)
}

// Subtotal sums entry totals.
func Subtotal(entries []Entry) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Total())
	}
	return sum
}

// Totals returns subtotal, sales tax and grand total for a document,
// applying the document's flat tax percentage. Amounts are rounded to two
// places at the document level, never per entry.
func (d Document) Totals(entries []Entry) (subtotal, tax, total decimal.Decimal) {
	subtotal = Subtotal(entries)
	if !d.SalesTaxPercent.IsZero() {
		tax = subtotal.Mul(d.SalesTaxPercent).Div(decimal.NewFromInt(100)).Round(2)
	} else {
		tax = decimal.Zero
	}
	total = subtotal.Add(tax).Round(2)
	return subtotal.Round(2), tax, total
}
