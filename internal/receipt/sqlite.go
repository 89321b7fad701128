package receipt

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS user_sheets (
  email TEXT PRIMARY KEY,
  spreadsheet_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS processes (
  id TEXT PRIMARY KEY,
  status TEXT NOT NULL,
  email TEXT NOT NULL,
  filename TEXT NOT NULL,
  item_count INTEGER NOT NULL DEFAULT 0,
  spreadsheet_id TEXT NOT NULL DEFAULT '',
  error TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
  id TEXT PRIMARY KEY,
  data TEXT NOT NULL
);
`

// SQLiteDB implements the DB interface on a SQLite file
type SQLiteDB struct {
	conn *sql.DB
}

// NewSQLiteDB opens (and migrates) a SQLite database
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enabling wal: %w", err)
	}
	if _, err := conn.Exec(sqliteSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &SQLiteDB{conn: conn}, nil
}

// SaveProcess upserts a process row
func (d *SQLiteDB) SaveProcess(p *Process) error {
	_, err := d.conn.Exec(`
INSERT INTO processes (id, status, email, filename, item_count, spreadsheet_id, error, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  status = excluded.status,
  item_count = excluded.item_count,
  spreadsheet_id = excluded.spreadsheet_id,
  error = excluded.error,
  updated_at = excluded.updated_at`,
		p.ID, string(p.Status), p.Email, p.Filename, p.ItemCount, p.SpreadsheetID, p.Error,
		p.CreatedAt.UTC().Format(time.RFC3339Nano), p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving process: %w", err)
	}
	return nil
}

// GetProcess retrieves a process by ID
func (d *SQLiteDB) GetProcess(id string) (*Process, error) {
	var (
		p                    Process
		status               string
		createdAt, updatedAt string
	)
	err := d.conn.QueryRow(`
SELECT id, status, email, filename, item_count, spreadsheet_id, error, created_at, updated_at
FROM processes WHERE id = ?`, id).Scan(
		&p.ID, &status, &p.Email, &p.Filename, &p.ItemCount, &p.SpreadsheetID, &p.Error, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("process %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting process: %w", err)
	}
	p.Status = ProcessStatus(status)
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &p, nil
}

// SaveSession upserts a session; the token is kept as JSON
func (d *SQLiteDB) SaveSession(s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	_, err = d.conn.Exec(`
INSERT INTO sessions (id, data) VALUES (?, ?)
ON CONFLICT(id) DO UPDATE SET data = excluded.data`, s.ID, string(data))
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID
func (d *SQLiteDB) GetSession(id string) (*Session, error) {
	var data string
	err := d.conn.QueryRow(`SELECT data FROM sessions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	var s Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("unmarshaling session: %w", err)
	}
	return &s, nil
}

// DeleteSession removes a session
func (d *SQLiteDB) DeleteSession(id string) error {
	if _, err := d.conn.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// GetSpreadsheetID returns the spreadsheet of a user, or "" when none exists
func (d *SQLiteDB) GetSpreadsheetID(email string) (string, error) {
	var id string
	err := d.conn.QueryRow(`SELECT spreadsheet_id FROM user_sheets WHERE email = ?`, email).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting spreadsheet id: %w", err)
	}
	return id, nil
}

// SetSpreadsheetID stores or replaces the spreadsheet of a user
func (d *SQLiteDB) SetSpreadsheetID(email, spreadsheetID string) error {
	_, err := d.conn.Exec(`
INSERT INTO user_sheets (email, spreadsheet_id) VALUES (?, ?)
ON CONFLICT(email) DO UPDATE SET spreadsheet_id = excluded.spreadsheet_id`, email, spreadsheetID)
	if err != nil {
		return fmt.Errorf("saving spreadsheet id: %w", err)
	}
	return nil
}

// Close closes the database connection
func (d *SQLiteDB) Close() error {
	return d.conn.Close()
}
