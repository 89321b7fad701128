package receipt

// Payload is the raw structured receipt returned by the LLM collaborator.
// Values are untrusted and may be of any JSON type.
type Payload map[string]any

// Payload keys. The LLM is prompted to answer with these field names.
const (
	KeyDate        = "fecha"
	KeyProducts    = "productos"
	KeyTotal       = "total_general"
	KeyLegacyTotal = "total"
	KeyName        = "nombre"
	KeyQuantity    = "cantidad"
	KeyUnitPrice   = "precio_unitario"
)

func (p Payload) products() []any {
	list, _ := p[KeyProducts].([]any)
	return list
}

func (p Payload) total() any {
	if v, ok := p[KeyTotal]; ok && v != nil {
		return v
	}
	return p[KeyLegacyTotal]
}
