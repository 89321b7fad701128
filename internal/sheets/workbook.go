package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/zombor/ticketapp/internal/receipt"
)

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9@._-]`)

// Workbook appends receipts to a local XLSX file per user
type Workbook struct {
	dir    string
	store  Store
	logger *slog.Logger
	mu     sync.Mutex
}

// NewWorkbook creates an exporter writing workbooks into dir
func NewWorkbook(dir string, store Store, logger *slog.Logger) (*Workbook, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating workbook directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Workbook{dir: dir, store: store, logger: logger}, nil
}

// Export appends the receipt to the owner's workbook. The spreadsheet id is the file path.
func (w *Workbook) Export(_ context.Context, owner receipt.Owner, result *receipt.Result) (*receipt.Export, error) {
	if owner.Email == "" {
		return nil, errors.New("no user for workbook")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	path, err := w.pathFor(owner.Email)
	if err != nil {
		return nil, err
	}

	f, err := openOrCreate(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	existing, err := f.GetRows(SheetName)
	if err != nil {
		return nil, fmt.Errorf("reading workbook: %w", err)
	}

	next := len(existing) + 1
	write := func(values []any) error {
		cell, err := excelize.CoordinatesToCellName(1, next)
		if err != nil {
			return err
		}
		next++
		return f.SetSheetRow(SheetName, cell, &values)
	}

	if len(existing) == 0 {
		if err := write(Header); err != nil {
			return nil, fmt.Errorf("writing header: %w", err)
		}
	}
	var updated int64
	for _, row := range rows(result) {
		if err := write(row); err != nil {
			return nil, fmt.Errorf("writing row: %w", err)
		}
		updated += int64(len(row))
	}

	if err := f.SaveAs(path); err != nil {
		return nil, fmt.Errorf("saving workbook: %w", err)
	}

	w.logger.Info("Receipt appended to workbook", "email", owner.Email, "path", path, "updated_cells", updated)
	return &receipt.Export{SpreadsheetID: path, UpdatedCells: updated}, nil
}

func (w *Workbook) pathFor(email string) (string, error) {
	path, err := w.store.GetSpreadsheetID(email)
	if err != nil {
		return "", fmt.Errorf("getting workbook path: %w", err)
	}
	if path != "" {
		return path, nil
	}

	path = filepath.Join(w.dir, fmt.Sprintf("ticketapp-%s.xlsx", unsafeFileChars.ReplaceAllString(email, "_")))
	if err := w.store.SetSpreadsheetID(email, path); err != nil {
		return "", fmt.Errorf("saving workbook path: %w", err)
	}
	return path, nil
}

func openOrCreate(path string) (*excelize.File, error) {
	if _, err := os.Stat(path); err == nil {
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("opening workbook: %w", err)
		}
		if idx, _ := f.GetSheetIndex(SheetName); idx == -1 {
			if _, err := f.NewSheet(SheetName); err != nil {
				f.Close()
				return nil, fmt.Errorf("adding sheet: %w", err)
			}
		}
		return f, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("checking workbook: %w", err)
	}

	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		f.Close()
		return nil, fmt.Errorf("naming sheet: %w", err)
	}
	return f, nil
}
