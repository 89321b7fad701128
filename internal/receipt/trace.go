package receipt

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Tracer receives intermediate pipeline output for debugging
type Tracer interface {
	// Trace records the output of one pipeline stage
	Trace(processID, stage string, v any)
}

// Pipeline stages reported to a Tracer
const (
	StageRawText    = "raw_text"
	StageLLMOutput  = "llm_output"
	StageNormalized = "normalized_output"
)

type nopTracer struct{}

func (nopTracer) Trace(string, string, any) {}

// StorageTracer writes every stage to a file in storage. Strings are written
// as text, everything else as indented JSON.
type StorageTracer struct {
	storage Storage
	logger  *slog.Logger
}

// NewStorageTracer creates a tracer writing into storage
func NewStorageTracer(storage Storage, logger *slog.Logger) *StorageTracer {
	if logger == nil {
		logger = slog.Default()
	}
	return &StorageTracer{storage: storage, logger: logger}
}

// Trace writes <processID>_<stage>.txt or .json
func (t *StorageTracer) Trace(processID, stage string, v any) {
	var (
		name string
		data []byte
	)
	if s, ok := v.(string); ok {
		name = fmt.Sprintf("%s_%s.txt", processID, stage)
		data = []byte(s)
	} else {
		var err error
		data, err = json.MarshalIndent(v, "", "  ")
		if err != nil {
			t.logger.Warn("Failed to encode trace", "process_id", processID, "stage", stage, "error", err)
			return
		}
		name = fmt.Sprintf("%s_%s.json", processID, stage)
	}

	if _, err := t.storage.Save(name, data); err != nil {
		t.logger.Warn("Failed to write trace", "process_id", processID, "stage", stage, "error", err)
		return
	}
	t.logger.Debug("Trace written", "process_id", processID, "stage", stage, "file", name)
}
