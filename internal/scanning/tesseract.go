package scanning

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Runner lets tests stub external commands
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	if err != nil {
		slog.Error("Command failed",
			"cmd", name,
			"args", strings.Join(args, " "),
			"duration_ms", time.Since(start).Milliseconds(),
			"stderr", errb.String(),
			"error", err,
		)
	}
	return out.Bytes(), errb.Bytes(), err
}

// TesseractConfig configures the local tesseract OCR engine
type TesseractConfig struct {
	Binary      string // default "tesseract"
	Language    string // default "spa"
	TessdataDir string
}

// Tesseract implements TextExtractor by running the tesseract binary
type Tesseract struct {
	cfg    TesseractConfig
	runner Runner
}

// NewTesseract creates a Tesseract extractor
func NewTesseract(cfg TesseractConfig) *Tesseract {
	return NewTesseractWithRunner(cfg, execRunner{})
}

// NewTesseractWithRunner creates a Tesseract extractor with a custom command runner
func NewTesseractWithRunner(cfg TesseractConfig, runner Runner) *Tesseract {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Language == "" {
		cfg.Language = "spa"
	}
	return &Tesseract{cfg: cfg, runner: runner}
}

// ExtractText runs tesseract on the image. Images tesseract can not read
// (HEIC, PDF, GIF) or that are not on disk are written to a temporary PNG first.
func (t *Tesseract) ExtractText(ctx context.Context, img Image) (string, error) {
	path := img.Path
	if path == "" || needsConversion(img.Data, img.ContentType) {
		tmpPath, cleanup, err := writeTempPNG(img)
		if err != nil {
			return "", err
		}
		defer cleanup()
		path = tmpPath
	}

	args := []string{path, "stdout", "-l", t.cfg.Language}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}

	out, errb, err := t.runner.Run(ctx, t.cfg.Binary, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(string(errb)))
	}
	return strings.TrimSpace(string(out)), nil
}

func writeTempPNG(img Image) (string, func(), error) {
	pngData, err := toPNG(img.Data, img.ContentType)
	if err != nil {
		return "", nil, err
	}

	dir, err := os.MkdirTemp("", "ticketapp-ocr-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating temp dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	path := filepath.Join(dir, "receipt.png")
	if err := os.WriteFile(path, pngData, 0600); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("writing temp image: %w", err)
	}
	return path, cleanup, nil
}

// Close is a no-op
func (t *Tesseract) Close() error {
	return nil
}
