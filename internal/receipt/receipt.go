package receipt

import (
	"time"

	"golang.org/x/oauth2"
)

// ProcessStatus is the lifecycle state of one uploaded receipt
type ProcessStatus string

const (
	StatusPending   ProcessStatus = "pending"
	StatusCompleted ProcessStatus = "completed"
	StatusFailed    ProcessStatus = "failed"
)

// Process tracks the processing of one uploaded receipt image
type Process struct {
	ID            string        `json:"id"`
	Status        ProcessStatus `json:"status"`
	Email         string        `json:"email"`
	Filename      string        `json:"filename"`
	ItemCount     int           `json:"item_count"`
	SpreadsheetID string        `json:"spreadsheet_id,omitempty"`
	Error         string        `json:"error,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Session is the server side state behind a browser session cookie
type Session struct {
	ID        string        `json:"id"`
	State     string        `json:"state,omitempty"` // pending OAuth state
	Email     string        `json:"email,omitempty"`
	Token     *oauth2.Token `json:"token,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Authenticated reports whether the OAuth flow completed for this session
func (s *Session) Authenticated() bool {
	return s != nil && s.Email != "" && s.Token != nil
}

// Owner identifies the user a receipt is processed for
type Owner struct {
	Email string
	Token *oauth2.Token
}
