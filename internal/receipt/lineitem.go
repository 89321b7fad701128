package receipt

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidLineItem is returned when a line item violates its invariants
var ErrInvalidLineItem = errors.New("invalid line item")

// LineItem is one purchased product on a receipt. It is immutable once built.
type LineItem struct {
	date      string
	product   string
	quantity  int
	unitPrice decimal.Decimal
	discount  decimal.Decimal
}

// NewLineItem validates the fields and builds a LineItem
func NewLineItem(date, product string, quantity int, unitPrice, discount decimal.Decimal) (LineItem, error) {
	if quantity < 0 {
		return LineItem{}, fmt.Errorf("%w: quantity %d is negative", ErrInvalidLineItem, quantity)
	}
	if unitPrice.IsNegative() {
		return LineItem{}, fmt.Errorf("%w: unit price %s is negative", ErrInvalidLineItem, unitPrice)
	}
	if discount.IsNegative() {
		return LineItem{}, fmt.Errorf("%w: discount %s is negative", ErrInvalidLineItem, discount)
	}

	return LineItem{
		date:      date,
		product:   product,
		quantity:  quantity,
		unitPrice: unitPrice.Round(2),
		discount:  discount.Round(2),
	}, nil
}

// Date returns the receipt date in dd/mm/yyyy form
func (l LineItem) Date() string { return l.date }

// Product returns the product name
func (l LineItem) Product() string { return l.product }

// Quantity returns the purchased quantity
func (l LineItem) Quantity() int { return l.quantity }

// UnitPrice returns the price of one unit
func (l LineItem) UnitPrice() decimal.Decimal { return l.unitPrice }

// Discount returns the discount applied to the line
func (l LineItem) Discount() decimal.Decimal { return l.discount }

// LineTotal returns unit_price * quantity - discount
func (l LineItem) LineTotal() decimal.Decimal {
	return l.unitPrice.Mul(decimal.NewFromInt(int64(l.quantity))).Sub(l.discount)
}

// Equal reports whether two line items hold the same values
func (l LineItem) Equal(o LineItem) bool {
	return l.date == o.date &&
		l.product == o.product &&
		l.quantity == o.quantity &&
		l.unitPrice.Equal(o.unitPrice) &&
		l.discount.Equal(o.discount)
}

type lineItemJSON struct {
	Date      string          `json:"date"`
	Product   string          `json:"product"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal `json:"discount"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// MarshalJSON renders the line item for API responses
func (l LineItem) MarshalJSON() ([]byte, error) {
	return json.Marshal(lineItemJSON{
		Date:      l.date,
		Product:   l.product,
		Quantity:  l.quantity,
		UnitPrice: l.unitPrice,
		Discount:  l.discount,
		LineTotal: l.LineTotal(),
	})
}
