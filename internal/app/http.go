package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"strand/api/internal/store"
	"strand/api/internal/webhook"
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
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/posts/add" {
		s.handleAddPost(w, r)
		return
	}

	if r.Method == http.MethodDelete && r.URL.Path == "/api/posts/delete" {
		s.handleDeletePost(w, r)
		return
	}

	if r.Method == http.MethodPut && r.URL.Path == "/api/posts/edit" {
		s.handleEditPost(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/posts/fetch" {
		posts, err := s.service.ListPosts(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not fetch posts", nil)
			return
		}
		writeJSON(w, http.StatusOK, posts)
		return
	}

	if r.Method == http.MethodPut && r.URL.Path == "/api/posts/like" {
		s.handleToggleLike(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/users/batch" {
		s.handleBatchProfiles(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/webhooks/identity" {
		s.handleIdentityWebhook(w, r)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
		"cache":    map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	}
	if err := s.service.CachePing(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["cache"] = map[string]any{"status": "error", "error": err.Error()}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleAddPost(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content  string  `json:"content"`
		ParentID *string `json:"parentId"`
		UserID   string  `json:"userId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	post, err := s.service.CreatePost(r.Context(), body.Content, body.ParentID, body.UserID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *HTTPServer) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PostID string `json:"postId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if _, err := s.service.DeleteSubtree(r.Context(), body.PostID); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Post and its replies deleted successfully"})
}

func (s *HTTPServer) handleEditPost(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PostID  string `json:"postId"`
		Content string `json:"content"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	post, err := s.service.EditPost(r.Context(), body.PostID, body.Content)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *HTTPServer) handleToggleLike(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PostID string `json:"postId"`
		UserID string `json:"userId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	post, err := s.service.ToggleLike(r.Context(), body.PostID, body.UserID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *HTTPServer) handleBatchProfiles(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AuthorIDs []string `json:"authorIds"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "authorIds must be an array", nil)
		return
	}
	profiles, err := s.service.BatchProfiles(r.Context(), body.AuthorIDs)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (s *HTTPServer) handleIdentityWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.service.WebhookEnabled() {
		writeError(w, http.StatusServiceUnavailable, "WEBHOOK_UNAVAILABLE", "Webhook secret not configured", nil)
		return
	}

	// Verification needs the raw body, not a decoded form.
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Could not read body", nil)
		return
	}
	defer r.Body.Close()

	event, err := s.service.VerifyWebhook(r.Header, payload)
	if err != nil {
		if errors.Is(err, webhook.ErrMissingHeaders) {
			writeError(w, http.StatusBadRequest, "MISSING_HEADERS", "Missing webhook headers", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "Webhook verification failed", nil)
		return
	}

	if err := s.service.ApplyIdentityEvent(r.Context(), event); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Webhook received and processed"})
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
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
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

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Post not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
