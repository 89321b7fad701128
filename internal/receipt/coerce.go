package receipt

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Product holds the coerced fields of one raw product entry
type Product struct {
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// CoerceProduct turns a raw product entry into safe typed fields. It never
// fails: quantity falls back to 1 and unit price to 0.00.
func CoerceProduct(raw any) Product {
	entry, _ := raw.(map[string]any)

	return Product{
		Name:      coerceName(entry[KeyName]),
		Quantity:  coerceQuantity(entry[KeyQuantity]),
		UnitPrice: coercePrice(entry[KeyUnitPrice]),
	}
}

func coerceName(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return strings.TrimSpace(t.String())
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

func coerceQuantity(v any) int {
	n, ok := toNumber(v)
	if !ok {
		return 1
	}
	q := math.Trunc(n)
	if q <= 0 || q > math.MaxInt32 {
		return 1
	}
	return int(q)
}

func coercePrice(v any) decimal.Decimal {
	d, ok := toDecimal(v)
	if !ok || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// maxAmount bounds prices and totals; anything larger is treated as unreadable
const maxAmount = 1e12

// maxScale bounds the digits kept after the point before rounding to cents
const maxScale = 16

// toDecimal coerces v to a decimal rounded to 2 places. Text is range checked
// as a float first so huge exponents never reach decimal rescaling.
func toDecimal(v any) (decimal.Decimal, bool) {
	n, ok := toNumber(v)
	if !ok || math.Abs(n) > maxAmount {
		return decimal.Zero, false
	}

	var text string
	switch t := v.(type) {
	case json.Number:
		text = t.String()
	case string:
		text = t
	default:
		return decimal.NewFromFloat(n).Round(2), true
	}

	d, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return decimal.Zero, false
	}
	if d.Exponent() < -maxScale {
		return decimal.NewFromFloat(n).Round(2), true
	}
	return d.Round(2), true
}
