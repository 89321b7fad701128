package sheets

import (
	"github.com/zombor/ticketapp/internal/receipt"
)

// SheetName is the tab every receipt is appended to
const SheetName = "Gastos"

// Header is written once to an empty sheet
var Header = []any{"fecha", "producto", "cantidad", "precio unitario"}

// Store keeps the spreadsheet each user writes to
type Store interface {
	GetSpreadsheetID(email string) (string, error)
	SetSpreadsheetID(email, spreadsheetID string) error
}

// rows renders one row per line item followed by the total row
func rows(result *receipt.Result) [][]any {
	items := result.LineItems()
	out := make([][]any, 0, len(items)+1)
	for _, item := range items {
		out = append(out, []any{
			item.Date(),
			item.Product(),
			item.Quantity(),
			item.UnitPrice().InexactFloat64(),
		})
	}
	return append(out, []any{"", "", "total", result.DeclaredTotal().InexactFloat64()})
}
