package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
)

const maxUploadSize = int64(50 << 20) // 50MB

// writeJSON writes v as a JSON response with the given status
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes {"error": message} with the given status
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleHome sends visitors to the login page
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/login", http.StatusFound)
}

// handleLogin serves the login page
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(loginHTML)
}

// handleUpload serves the upload page
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(uploadHTML)
}

// handleAuth starts the OAuth flow
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	var id string
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		id = cookie.Value
	}

	session, authURL, err := s.sessions.BeginLogin(id)
	if err != nil {
		slog.Error("Error starting login", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	setSessionCookie(w, r, session.ID)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// handleOAuthCallback finishes the OAuth flow and signs the session in
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if msg := query.Get("error"); msg != "" {
		slog.Warn("OAuth provider returned an error", "error", msg)
		http.Error(w, "Authorization denied", http.StatusBadRequest)
		return
	}

	code := query.Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		return
	}

	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		http.Error(w, "Missing session", http.StatusBadRequest)
		return
	}

	session, err := s.sessions.CompleteLogin(r.Context(), cookie.Value, query.Get("state"), code)
	switch {
	case errors.Is(err, ErrStateMismatch), errors.Is(err, ErrNotFound):
		slog.Warn("Rejected OAuth callback", "error", err)
		http.Error(w, "Invalid OAuth state", http.StatusBadRequest)
		return
	case err != nil:
		slog.Error("Error completing login", "error", err)
		http.Error(w, "Could not complete sign in", http.StatusBadGateway)
		return
	}

	setSessionCookie(w, r, session.ID)
	slog.Info("User signed in", "email", session.Email)
	http.Redirect(w, r, "/upload", http.StatusFound)
}

// handleLogout ends the session
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if err := s.sessions.Logout(cookie.Value); err != nil {
			slog.Warn("Error deleting session", "error", err)
		}
	}
	clearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// processResponse is the body returned by POST /api/process
type processResponse struct {
	ProcessID     string  `json:"process_id"`
	Data          Payload `json:"data"`
	Message       string  `json:"message"`
	SpreadsheetID *string `json:"spreadsheet_id"`
}

// handleProcessReceipt runs the pipeline on an uploaded receipt image
func (s *Server) handleProcessReceipt(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file is too large, maximum size is 50MB")
			return
		}
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}

	f, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer f.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "no file selected")
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "error reading file")
		return
	}

	owner := Owner{Email: session.Email, Token: session.Token}
	outcome, err := s.service.ProcessReceipt(r.Context(), owner, header.Filename, data, detectContentType(header.Header.Get("Content-Type"), header.Filename))
	if err != nil {
		slog.Error("Error processing receipt", "filename", header.Filename, "error", err)
		status := http.StatusBadGateway
		switch {
		case IsUnprocessable(err):
			status = http.StatusUnprocessableEntity
		case outcome == nil:
			status = http.StatusInternalServerError
		}
		writeError(w, status, err.Error())
		return
	}

	resp := processResponse{
		ProcessID: outcome.Process.ID,
		Data:      outcome.Result.Payload(),
		Message:   "data saved to spreadsheet",
	}
	switch {
	case outcome.ExportErr != nil:
		resp.Message = fmt.Sprintf("data processed, but could not be saved to the spreadsheet: %v", outcome.ExportErr)
	case outcome.Export != nil:
		resp.SpreadsheetID = &outcome.Export.SpreadsheetID
	default:
		resp.Message = "data processed"
	}
	writeJSON(w, http.StatusOK, resp)
}

// detectContentType falls back to the file extension when the client sent no type
func detectContentType(contentType, filename string) string {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// handleStatus reports the status of a process
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	status := "not found"
	process, err := s.service.GetProcess(id)
	switch {
	case err == nil:
		status = string(process.Status)
	case !errors.Is(err, ErrNotFound):
		slog.Error("Error getting process", "process_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"process_id": id, "status": status})
}

// handleStaticCSS serves the CSS file
func (s *Server) handleStaticCSS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Write(appCSS)
}

// handleStaticJS serves the JavaScript file
func (s *Server) handleStaticJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Write(appJS)
}
