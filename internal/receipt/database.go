package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	processBucketName = "processes"
	sessionBucketName = "sessions"
	sheetBucketName   = "user_sheets"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// DB defines the interface for database operations
type DB interface {
	// SaveProcess saves a process record
	SaveProcess(process *Process) error

	// GetProcess retrieves a process by ID
	GetProcess(id string) (*Process, error)

	// SaveSession saves a browser session
	SaveSession(session *Session) error

	// GetSession retrieves a session by ID
	GetSession(id string) (*Session, error)

	// DeleteSession removes a session
	DeleteSession(id string) error

	// GetSpreadsheetID returns the spreadsheet of a user, or "" when none exists
	GetSpreadsheetID(email string) (string, error)

	// SetSpreadsheetID stores or replaces the spreadsheet of a user
	SetSpreadsheetID(email, spreadsheetID string) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{processBucketName, sessionBucketName, sheetBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func (b *BoltDB) put(bucketName, key string, v any) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshaling %s: %w", bucketName, err)
		}
		return tx.Bucket([]byte(bucketName)).Put([]byte(key), data)
	})
}

func (b *BoltDB) get(bucketName, key string, v any) error {
	return b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%s %s: %w", bucketName, key, ErrNotFound)
		}
		return json.Unmarshal(data, v)
	})
}

// SaveProcess saves a process to the database
func (b *BoltDB) SaveProcess(process *Process) error {
	return b.put(processBucketName, process.ID, process)
}

// GetProcess retrieves a process by ID
func (b *BoltDB) GetProcess(id string) (*Process, error) {
	var process Process
	if err := b.get(processBucketName, id, &process); err != nil {
		return nil, err
	}
	return &process, nil
}

// SaveSession saves a session to the database
func (b *BoltDB) SaveSession(session *Session) error {
	return b.put(sessionBucketName, session.ID, session)
}

// GetSession retrieves a session by ID
func (b *BoltDB) GetSession(id string) (*Session, error) {
	var session Session
	if err := b.get(sessionBucketName, id, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// DeleteSession removes a session from the database
func (b *BoltDB) DeleteSession(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(sessionBucketName)).Delete([]byte(id))
	})
}

// GetSpreadsheetID returns the spreadsheet ID stored for a user
func (b *BoltDB) GetSpreadsheetID(email string) (string, error) {
	var id string
	err := b.db.View(func(tx *bbolt.Tx) error {
		id = string(tx.Bucket([]byte(sheetBucketName)).Get([]byte(email)))
		return nil
	})
	return id, err
}

// SetSpreadsheetID upserts the spreadsheet ID of a user
func (b *BoltDB) SetSpreadsheetID(email, spreadsheetID string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(sheetBucketName)).Put([]byte(email), []byte(spreadsheetID))
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
