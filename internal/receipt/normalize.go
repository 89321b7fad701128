package receipt

import (
	"log/slog"

	"github.com/shopspring/decimal"
)

// Normalizer converts raw LLM payloads into validated results
type Normalizer struct {
	logger *slog.Logger
	coerce func(any) Product
}

// NewNormalizer creates a Normalizer. A nil logger uses slog.Default().
func NewNormalizer(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger, coerce: CoerceProduct}
}

// Normalize validates a raw payload. The receipt date is mandatory and
// ErrDateMissing is the only error returned; malformed products are coerced
// or skipped individually.
func (n *Normalizer) Normalize(p Payload) (*Result, error) {
	date, err := NormalizeDate(p[KeyDate])
	if err != nil {
		n.logger.Warn("Could not resolve receipt date", "raw_date", p[KeyDate])
		return nil, err
	}

	raw := p.products()
	items := make([]LineItem, 0, len(raw))
	for i, entry := range raw {
		if _, ok := entry.(map[string]any); !ok {
			n.logger.Warn("Skipping product that is not an object", "index", i, "product", entry)
			continue
		}

		prod := n.coerce(entry)
		item, err := NewLineItem(date, prod.Name, prod.Quantity, prod.UnitPrice, decimal.Zero)
		if err != nil {
			n.logger.Warn("Skipping invalid product", "index", i, "product", entry, "error", err)
			continue
		}
		items = append(items, item)
	}

	total, ok := toDecimal(p.total())
	if !ok {
		total = decimal.Zero
	}

	return &Result{
		date:          date,
		items:         items,
		declaredTotal: total,
	}, nil
}
