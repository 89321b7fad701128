package receipt

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

const sessionCookieName = "ticketapp_session"

// Server handles HTTP requests for receipts
type Server struct {
	service  *Service
	sessions *Sessions
	mux      *http.ServeMux
	http     *http.Server
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, sessions *Sessions) *Server {
	return NewServerWithMux(service, sessions, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, sessions *Sessions, mux *http.ServeMux) *Server {
	s := &Server{
		service:  service,
		sessions: sessions,
		mux:      mux,
	}
	s.registerRoutes()
	return s
}

type sessionKey struct{}

// currentSession returns the session of the request, or nil
func (s *Server) currentSession(r *http.Request) *Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil
	}
	session, err := s.sessions.Get(cookie.Value)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Error("Error loading session", "error", err)
		}
		return nil
	}
	return session
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// requireLogin redirects browsers without a signed-in session to the login page
func (s *Server) requireLogin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := s.currentSession(r)
		if !session.Authenticated() {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, session)))
	}
}

// requireAPIAuth answers 401 for API calls without a signed-in session
func (s *Server) requireAPIAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := s.currentSession(r)
		if !session.Authenticated() {
			writeError(w, http.StatusUnauthorized, "user not authenticated")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, session)))
	}
}

func sessionFrom(ctx context.Context) *Session {
	session, _ := ctx.Value(sessionKey{}).(*Session)
	return session
}

// logRequests logs every request with its status and duration
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		slog.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// registerRoutes registers all routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /static/app.css", s.handleStaticCSS)
	s.mux.HandleFunc("GET /static/app.js", s.handleStaticJS)

	// OAuth login flow
	s.mux.HandleFunc("GET /auth", s.handleAuth)
	s.mux.HandleFunc("GET /oauth2callback", s.handleOAuthCallback)
	s.mux.HandleFunc("POST /logout", s.handleLogout)

	// API endpoints
	s.mux.HandleFunc("POST /api/process", s.requireAPIAuth(s.handleProcessReceipt))
	s.mux.HandleFunc("GET /api/status/{id}", s.handleStatus)

	// Pages
	s.mux.HandleFunc("GET /login", s.handleLogin)
	s.mux.HandleFunc("GET /upload", s.requireLogin(s.handleUpload))
	s.mux.HandleFunc("GET /{$}", s.handleHome)
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           logRequests(s.mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops a started server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
