package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/ticketapp/internal/scanning"
)

// ErrNoText is returned when OCR finds no text on the image
var ErrNoText = errors.New("no text found on receipt")

// Exporter persists a normalized receipt for its owner
type Exporter interface {
	Export(ctx context.Context, owner Owner, result *Result) (*Export, error)
}

// Export describes where a receipt was written
type Export struct {
	SpreadsheetID string `json:"spreadsheet_id"`
	UpdatedCells  int64  `json:"updated_cells"`
}

// Outcome is everything produced while processing one upload
type Outcome struct {
	Process   *Process
	Result    *Result
	Export    *Export
	ExportErr error
}

// IDGenerator generates unique process IDs
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service runs the receipt pipeline: OCR, LLM structuring, normalization and export
type Service struct {
	db          DB
	storage     Storage
	ocr         scanning.TextExtractor
	structurer  scanning.Structurer
	normalizer  *Normalizer
	exporter    Exporter
	tracer      Tracer
	logger      *slog.Logger
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, storage Storage, ocr scanning.TextExtractor, structurer scanning.Structurer, exporter Exporter) *Service {
	return NewServiceWithDeps(db, storage, ocr, structurer, exporter, uuidGenerator{}, defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, storage Storage, ocr scanning.TextExtractor, structurer scanning.Structurer, exporter Exporter, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		storage:     storage,
		ocr:         ocr,
		structurer:  structurer,
		normalizer:  NewNormalizer(nil),
		exporter:    exporter,
		tracer:      nopTracer{},
		logger:      slog.Default(),
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// WithTracer sets the sink for intermediate pipeline output
func (s *Service) WithTracer(t Tracer) *Service {
	if t == nil {
		t = nopTracer{}
	}
	s.tracer = t
	return s
}

// WithLogger sets the logger used by the service and its normalizer
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s.logger = logger
	s.normalizer = NewNormalizer(logger)
	return s
}

var (
	filenameCharsRe  = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	filenameSpacesRe = regexp.MustCompile(`\s+`)
)

// sanitizeFilename strips special characters and truncates long phone-generated names
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filepath.Base(filename), ext)

	base = filenameCharsRe.ReplaceAllString(base, "")
	base = filenameSpacesRe.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "receipt"
	}

	ext = filenameCharsRe.ReplaceAllString(strings.TrimPrefix(ext, "."), "")
	if ext == "" {
		return base
	}
	return base + "." + strings.ToLower(ext)
}

// IsUnprocessable reports whether err means the receipt itself could not be
// read, as opposed to a collaborator failing
func IsUnprocessable(err error) bool {
	return errors.Is(err, ErrDateMissing) || errors.Is(err, ErrNoText)
}

// ProcessReceipt stores the upload, extracts and normalizes the receipt and
// exports it for the owner. The upload is removed once processing ends.
// Export failures are reported in the Outcome and do not fail the process.
func (s *Service) ProcessReceipt(ctx context.Context, owner Owner, filename string, data []byte, contentType string) (*Outcome, error) {
	now := s.timeSource.Now()
	cleanFilename := sanitizeFilename(filename)
	process := &Process{
		ID:        s.idGenerator.Generate(),
		Status:    StatusPending,
		Email:     owner.Email,
		Filename:  cleanFilename,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.SaveProcess(process); err != nil {
		return nil, fmt.Errorf("saving process: %w", err)
	}
	outcome := &Outcome{Process: process}

	result, err := s.extract(ctx, process, data, contentType)
	if err != nil {
		s.logger.Error("Failed to process receipt",
			"process_id", process.ID,
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		process.Status = StatusFailed
		process.Error = err.Error()
		process.UpdatedAt = s.timeSource.Now()
		if saveErr := s.db.SaveProcess(process); saveErr != nil {
			s.logger.Warn("Failed to save process", "process_id", process.ID, "error", saveErr)
		}
		return outcome, err
	}
	outcome.Result = result

	process.Status = StatusCompleted
	process.ItemCount = len(result.items)

	if s.exporter != nil {
		export, err := s.exporter.Export(ctx, owner, result)
		if err != nil {
			s.logger.Error("Failed to export receipt", "process_id", process.ID, "email", owner.Email, "error", err)
			outcome.ExportErr = err
			process.Error = fmt.Sprintf("exporting receipt: %v", err)
		} else {
			outcome.Export = export
			process.SpreadsheetID = export.SpreadsheetID
		}
	}

	process.UpdatedAt = s.timeSource.Now()
	if err := s.db.SaveProcess(process); err != nil {
		return outcome, fmt.Errorf("saving process: %w", err)
	}
	return outcome, nil
}

func (s *Service) extract(ctx context.Context, process *Process, data []byte, contentType string) (*Result, error) {
	key, err := s.storage.Save(fmt.Sprintf("%s_%s", process.ID, process.Filename), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}
	defer func() {
		if err := s.storage.Delete(key); err != nil {
			s.logger.Warn("Failed to delete upload", "file", key, "error", err)
		}
	}()

	text, err := s.ocr.ExtractText(ctx, scanning.Image{
		Data:        data,
		ContentType: contentType,
		Path:        s.storage.Path(key),
	})
	if err != nil {
		return nil, fmt.Errorf("extracting text: %w", err)
	}
	s.tracer.Trace(process.ID, StageRawText, text)
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoText
	}

	payload, err := s.structurer.StructureText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("structuring text: %w", err)
	}
	s.tracer.Trace(process.ID, StageLLMOutput, payload)

	result, err := s.normalizer.Normalize(Payload(payload))
	if err != nil {
		return nil, err
	}
	s.tracer.Trace(process.ID, StageNormalized, result)

	return result, nil
}

// GetProcess retrieves a process by ID
func (s *Service) GetProcess(id string) (*Process, error) {
	process, err := s.db.GetProcess(id)
	if err != nil {
		return nil, fmt.Errorf("getting process: %w", err)
	}
	return process, nil
}
