package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// payloadSchemaJSON describes the payload contract. Types are loose on
// purpose: the normalizer coerces values, so only structural drift is reported.
const payloadSchemaJSON = `{
  "type": "object",
  "required": ["fecha", "productos"],
  "properties": {
    "fecha": {"type": ["string", "number", "null"]},
    "productos": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "nombre": {"type": ["string", "null"]},
          "cantidad": {"type": ["number", "string", "null"]},
          "precio_unitario": {"type": ["number", "string", "null"]}
        }
      }
    },
    "total_general": {"type": ["number", "string", "null"]}
  }
}`

var payloadSchema = jsonschema.MustCompileString("payload.json", payloadSchemaJSON)

// cleanModelJSON strips markdown fences and any text around the outer JSON object
func cleanModelJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return "", fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return "", fmt.Errorf("invalid JSON object in response")
	}
	return text[startIdx : endIdx+1], nil
}

// parsePayloadJSON decodes an LLM answer into a raw payload. Numbers are kept
// as json.Number so prices keep their exact decimal text.
func parsePayloadJSON(text string, logger *slog.Logger) (map[string]any, error) {
	if logger == nil {
		logger = slog.Default()
	}

	clean, err := cleanModelJSON(text)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(strings.NewReader(clean))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	if err := validatePayload([]byte(clean)); err != nil {
		logger.Warn("LLM payload does not match contract", "error", err)
	}

	return payload, nil
}

func validatePayload(data []byte) error {
	var v any
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := payloadSchema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
