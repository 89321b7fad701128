package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/zombor/ticketapp/internal/receipt"
)

// TokenSourcer turns a stored user token into a refreshing token source
type TokenSourcer interface {
	TokenSource(ctx context.Context, token *oauth2.Token) oauth2.TokenSource
}

// Google appends receipts to a per-user Google Sheets spreadsheet
type Google struct {
	store  Store
	tokens TokenSourcer
	logger *slog.Logger
	opts   []option.ClientOption

	creating sync.Map // email -> *sync.Mutex
}

// NewGoogle creates a Google Sheets exporter. Extra client options are
// passed to every Sheets client.
func NewGoogle(store Store, tokens TokenSourcer, logger *slog.Logger, opts ...option.ClientOption) *Google {
	if logger == nil {
		logger = slog.Default()
	}
	return &Google{store: store, tokens: tokens, logger: logger, opts: opts}
}

// Export appends the receipt to the owner's spreadsheet, creating it on first use
func (g *Google) Export(ctx context.Context, owner receipt.Owner, result *receipt.Result) (*receipt.Export, error) {
	if owner.Email == "" || owner.Token == nil {
		return nil, errors.New("no credentials available for the user's spreadsheet")
	}

	opts := append([]option.ClientOption{option.WithTokenSource(g.tokens.TokenSource(ctx, owner.Token))}, g.opts...)
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets client: %w", err)
	}

	spreadsheetID, err := g.spreadsheetFor(ctx, svc, owner.Email)
	if err != nil {
		return nil, err
	}

	empty, err := g.isEmpty(ctx, svc, spreadsheetID)
	if err != nil {
		return nil, err
	}
	if empty {
		_, err := svc.Spreadsheets.Values.Append(spreadsheetID, appendRange(), &gsheets.ValueRange{
			Values: [][]any{Header},
		}).ValueInputOption("USER_ENTERED").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("writing header: %w", err)
		}
	}

	resp, err := svc.Spreadsheets.Values.Append(spreadsheetID, appendRange(), &gsheets.ValueRange{
		Values: rows(result),
	}).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("appending rows: %w", err)
	}

	var updated int64
	if resp.Updates != nil {
		updated = resp.Updates.UpdatedCells
	}
	g.logger.Info("Receipt appended to spreadsheet",
		"email", owner.Email,
		"spreadsheet_id", spreadsheetID,
		"updated_cells", updated,
	)
	return &receipt.Export{SpreadsheetID: spreadsheetID, UpdatedCells: updated}, nil
}

func appendRange() string {
	return fmt.Sprintf("'%s'!A1", SheetName)
}

// spreadsheetFor returns the user's spreadsheet, creating and recording a new one if needed
func (g *Google) spreadsheetFor(ctx context.Context, svc *gsheets.Service, email string) (string, error) {
	// Serialized per user so concurrent first uploads create one spreadsheet
	lock, _ := g.creating.LoadOrStore(email, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	id, err := g.store.GetSpreadsheetID(email)
	if err != nil {
		return "", fmt.Errorf("getting spreadsheet id: %w", err)
	}
	if id != "" {
		return id, nil
	}

	created, err := svc.Spreadsheets.Create(&gsheets.Spreadsheet{
		Properties: &gsheets.SpreadsheetProperties{Title: "ticketapp - " + email},
		Sheets: []*gsheets.Sheet{
			{Properties: &gsheets.SheetProperties{Title: SheetName}},
		},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("creating spreadsheet: %w", err)
	}

	if err := g.store.SetSpreadsheetID(email, created.SpreadsheetId); err != nil {
		return "", fmt.Errorf("saving spreadsheet id: %w", err)
	}
	g.logger.Info("Created spreadsheet", "email", email, "spreadsheet_id", created.SpreadsheetId)
	return created.SpreadsheetId, nil
}

// isEmpty reports whether A1 holds no value. A 400 from the API means the
// sheet has no data at all.
func (g *Google) isEmpty(ctx context.Context, svc *gsheets.Service, spreadsheetID string) (bool, error) {
	resp, err := svc.Spreadsheets.Values.Get(spreadsheetID, fmt.Sprintf("'%s'!A1:A1", SheetName)).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest {
			return true, nil
		}
		return false, fmt.Errorf("reading header: %w", err)
	}
	return len(resp.Values) == 0, nil
}
