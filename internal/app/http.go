package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/Lyf-Planner/lyf-api-sub000/internal/hierarchy"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{"status": "error", "error": err.Error()}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/contacts" {
		s.handleAddContact(w, r, actorID(r))
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" || parts[1] != "notes" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	actor := actorID(r)

	switch len(parts) {
	case 2:
		if r.Method == http.MethodPost {
			s.handleCreateNote(w, r, actor)
			return
		}
	case 3:
		if r.Method == http.MethodDelete {
			s.handleDeleteNote(w, r, parts[2], actor)
			return
		}
	case 4:
		noteID := parts[2]
		switch parts[3] {
		case "children":
			if r.Method == http.MethodGet {
				s.handleGetChildren(w, r, noteID)
				return
			}
		case "move":
			if r.Method == http.MethodPost {
				s.handleMoveNote(w, r, noteID, actor)
				return
			}
		case "sort":
			if r.Method == http.MethodPost {
				s.handleSortNotes(w, r, noteID, actor)
				return
			}
		case "permission":
			if r.Method == http.MethodGet {
				s.handleGetPermission(w, r, noteID, actor)
				return
			}
		case "invites":
			if r.Method == http.MethodPost {
				s.handleInviteUser(w, r, noteID, actor)
				return
			}
		}
	case 5:
		noteID := parts[2]
		if parts[3] == "invites" && parts[4] == "accept" && r.Method == http.MethodPost {
			s.handleAcceptInvite(w, r, noteID, actor)
			return
		}
		if parts[3] == "grants" && r.Method == http.MethodDelete {
			s.handleRevokeGrant(w, r, noteID, parts[4], actor)
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleAddContact(w http.ResponseWriter, r *http.Request, actor string) {
	var body struct {
		UserID string `json:"userId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	if err := s.service.AddContact(r.Context(), actor, body.UserID); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
}

func (s *HTTPServer) handleCreateNote(w http.ResponseWriter, r *http.Request, actor string) {
	var body struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		Kind     string `json:"kind"`
		Content  string `json:"content"`
		ParentID string `json:"parentId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	note, err := s.service.CreateNote(r.Context(), CreateNoteInput{
		ID:       body.ID,
		Title:    body.Title,
		Kind:     body.Kind,
		Content:  body.Content,
		ParentID: body.ParentID,
		OwnerID:  actor,
	})
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":    note.ID,
		"title": note.Title,
		"kind":  note.Kind,
	})
}

func (s *HTTPServer) handleDeleteNote(w http.ResponseWriter, r *http.Request, noteID, actor string) {
	cascade := r.URL.Query().Get("cascade") == "true"
	if err := s.service.DeleteNote(r.Context(), noteID, actor, cascade); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleGetChildren(w http.ResponseWriter, r *http.Request, noteID string) {
	children, err := s.service.GetChildren(r.Context(), noteID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"children": children})
}

func (s *HTTPServer) handleMoveNote(w http.ResponseWriter, r *http.Request, noteID, actor string) {
	var body struct {
		ParentID string `json:"parentId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	if body.ParentID == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "parentId is required", nil)
		return
	}
	if err := s.service.MoveNote(r.Context(), noteID, body.ParentID, actor); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleSortNotes(w http.ResponseWriter, r *http.Request, noteID, actor string) {
	var body struct {
		Order []string `json:"order"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	children, err := s.service.SortNotes(r.Context(), noteID, body.Order, actor)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"children": children})
}

func (s *HTTPServer) handleGetPermission(w http.ResponseWriter, r *http.Request, noteID, actor string) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		userID = actor
	}
	if userID == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "A user is required", nil)
		return
	}
	permission, err := s.service.GetEffectivePermission(r.Context(), noteID, userID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permission": permission})
}

func (s *HTTPServer) handleInviteUser(w http.ResponseWriter, r *http.Request, noteID, actor string) {
	var body struct {
		UserID     string `json:"userId"`
		Permission string `json:"permission"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	if err := s.service.InviteUser(r.Context(), noteID, body.UserID, actor, body.Permission); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "pending": true})
}

func (s *HTTPServer) handleAcceptInvite(w http.ResponseWriter, r *http.Request, noteID, actor string) {
	if err := s.service.AcceptInvite(r.Context(), noteID, actor); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleRevokeGrant(w http.ResponseWriter, r *http.Request, noteID, subjectID, actor string) {
	if err := s.service.RevokeGrant(r.Context(), noteID, subjectID, actor); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-User-Id, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// actorID identifies the calling user. Authentication happens upstream;
// the gateway forwards the verified user id in this header.
func actorID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-Id"))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, hierarchy.ErrNoteNotFound), errors.Is(err, sql.ErrNoRows):
		domainErr = notFound("Note not found")
	case errors.Is(err, hierarchy.ErrWouldCycle), errors.Is(err, hierarchy.ErrAlreadyAttached), errors.Is(err, hierarchy.ErrNotDirectChild):
		domainErr = invalidStructure(err.Error(), nil)
	case errors.Is(err, hierarchy.ErrConflict):
		domainErr = conflict()
	default:
		return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
	}
	return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
}
