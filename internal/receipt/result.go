package receipt

import (
	"encoding/json"
	"slices"

	"github.com/shopspring/decimal"
)

// Result is the validated outcome of normalizing one receipt
type Result struct {
	date          string
	items         []LineItem
	declaredTotal decimal.Decimal
}

// Date returns the receipt date shared by every line item
func (r *Result) Date() string { return r.date }

// LineItems returns the line items in payload order
func (r *Result) LineItems() []LineItem { return slices.Clone(r.items) }

// DeclaredTotal returns the total stated on the receipt
func (r *Result) DeclaredTotal() decimal.Decimal { return r.declaredTotal }

// Equal reports whether two results hold the same values
func (r *Result) Equal(o *Result) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.date != o.date || !r.declaredTotal.Equal(o.declaredTotal) {
		return false
	}
	return slices.EqualFunc(r.items, o.items, LineItem.Equal)
}

// Payload re-expresses the result in the raw payload shape
func (r *Result) Payload() Payload {
	products := make([]any, 0, len(r.items))
	for _, item := range r.items {
		products = append(products, map[string]any{
			KeyName:      item.Product(),
			KeyQuantity:  item.Quantity(),
			KeyUnitPrice: item.UnitPrice().InexactFloat64(),
		})
	}
	return Payload{
		KeyDate:     r.date,
		KeyProducts: products,
		KeyTotal:    r.declaredTotal.InexactFloat64(),
	}
}

// MarshalJSON renders the result for API responses and traces
func (r *Result) MarshalJSON() ([]byte, error) {
	items := r.items
	if items == nil {
		items = []LineItem{}
	}
	return json.Marshal(struct {
		Date          string          `json:"date"`
		LineItems     []LineItem      `json:"line_items"`
		DeclaredTotal decimal.Decimal `json:"declared_total"`
	}{
		Date:          r.date,
		LineItems:     items,
		DeclaredTotal: r.declaredTotal,
	})
}
