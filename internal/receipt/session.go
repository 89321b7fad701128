package receipt

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// ErrStateMismatch is returned when the OAuth callback state does not match the session
var ErrStateMismatch = errors.New("oauth state mismatch")

// Authenticator runs the external OAuth flow
type Authenticator interface {
	// AuthCodeURL returns the provider URL the user is sent to
	AuthCodeURL(state string) string
	// Exchange trades an authorization code for a token and the user's email
	Exchange(ctx context.Context, code string) (string, *oauth2.Token, error)
}

// Sessions manages login sessions backed by the DB
type Sessions struct {
	db          DB
	auth        Authenticator
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewSessions creates a session manager
func NewSessions(db DB, auth Authenticator) *Sessions {
	return NewSessionsWithDeps(db, auth, uuidGenerator{}, defaultTimeSource{})
}

// NewSessionsWithDeps creates a session manager with custom dependencies for testing
func NewSessionsWithDeps(db DB, auth Authenticator, idGen IDGenerator, timeSrc TimeSource) *Sessions {
	return &Sessions{db: db, auth: auth, idGenerator: idGen, timeSource: timeSrc}
}

// Get returns the session with the given ID
func (m *Sessions) Get(id string) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("session: %w", ErrNotFound)
	}
	return m.db.GetSession(id)
}

// BeginLogin stores a fresh OAuth state on the session (creating one when
// id is unknown) and returns the session and the provider URL
func (m *Sessions) BeginLogin(id string) (*Session, string, error) {
	now := m.timeSource.Now()
	session, err := m.Get(id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, "", err
		}
		session = &Session{ID: m.idGenerator.Generate(), CreatedAt: now}
	}

	session.State = m.idGenerator.Generate()
	session.UpdatedAt = now
	if err := m.db.SaveSession(session); err != nil {
		return nil, "", fmt.Errorf("saving session: %w", err)
	}
	return session, m.auth.AuthCodeURL(session.State), nil
}

// CompleteLogin checks the state, exchanges the code and returns a new signed-in
// session replacing the one that started the login
func (m *Sessions) CompleteLogin(ctx context.Context, id, state, code string) (*Session, error) {
	session, err := m.Get(id)
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	if session.State == "" || session.State != state {
		return nil, ErrStateMismatch
	}

	email, token, err := m.auth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging code: %w", err)
	}

	// The signed-in session gets a new ID; the pre-login one is dropped
	signedIn := &Session{
		ID:        m.idGenerator.Generate(),
		Email:     email,
		Token:     token,
		CreatedAt: session.CreatedAt,
		UpdatedAt: m.timeSource.Now(),
	}
	if err := m.db.SaveSession(signedIn); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}
	if err := m.db.DeleteSession(session.ID); err != nil {
		return nil, fmt.Errorf("deleting pre-login session: %w", err)
	}
	return signedIn, nil
}

// Logout removes the session
func (m *Sessions) Logout(id string) error {
	if id == "" {
		return nil
	}
	return m.db.DeleteSession(id)
}
