package scanning

import "context"

// Image is an uploaded receipt image
type Image struct {
	Data        []byte
	ContentType string
	// Path is where the image is stored on disk, if anywhere
	Path string
}

// TextExtractor reads the raw text printed on a receipt image
type TextExtractor interface {
	// ExtractText runs OCR on the image and returns its text
	ExtractText(ctx context.Context, img Image) (string, error)
	// Close releases resources held by the extractor
	Close() error
}

// Structurer turns raw receipt text into the structured payload contract
// (fecha, productos[nombre, cantidad, precio_unitario], total_general)
type Structurer interface {
	// StructureText asks the model to structure the text and returns the decoded payload
	StructureText(ctx context.Context, text string) (map[string]any, error)
	// Close releases resources held by the structurer
	Close() error
}
