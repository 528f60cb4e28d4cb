package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"inkwell/api/internal/auth"
	"inkwell/api/internal/metrics"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	log        *zap.Logger
	metrics    *metrics.Registry
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		log:        service.log,
		metrics:    service.metrics,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
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

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.WriteHeader(http.StatusOK)
		s.metrics.WritePrometheus(w)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[1] {
	case "auth":
		s.handleAuth(w, r, parts)
		return
	case "documents":
		identity, ok := s.requireIdentity(w, r)
		if !ok {
			return
		}
		s.handleDocuments(w, r, identity, parts)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	statusCode := http.StatusOK
	checks := map[string]any{}
	for name, ping := range map[string]func(context.Context) error{
		"metadata": s.service.PingMetadata,
		"content":  s.service.PingContent,
	} {
		if err := ping(ctx); err != nil {
			statusCode = http.StatusServiceUnavailable
			s.log.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			checks[name] = map[string]any{"status": "error"}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}

	status := "ready"
	if statusCode != http.StatusOK {
		status = "not_ready"
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     statusCode == http.StatusOK,
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleAuth(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) != 3 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch {
	case parts[2] == "signup" && r.Method == http.MethodPost:
		var body struct {
			Name     string `json:"name"`
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeInvalidBody(w, err)
			return
		}
		profile, err := s.service.SignUp(r.Context(), body.Name, body.Email, body.Password)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, profile)

	case parts[2] == "login" && r.Method == http.MethodPost:
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeInvalidBody(w, err)
			return
		}
		session, err := s.service.Login(r.Context(), body.Email, body.Password)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session))

	case parts[2] == "refresh" && r.Method == http.MethodPost:
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeInvalidBody(w, err)
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session))

	case parts[2] == "logout" && r.Method == http.MethodPost:
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		if err := s.service.Logout(r.Context(), body.RefreshToken); err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	case parts[2] == "me" && r.Method == http.MethodGet:
		identity, ok := s.requireIdentity(w, r)
		if !ok {
			return
		}
		profile, err := s.service.Me(r.Context(), identity)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)

	case parts[2] == "password" && r.Method == http.MethodPost:
		identity, ok := s.requireIdentity(w, r)
		if !ok {
			return
		}
		var body struct {
			CurrentPassword string `json:"currentPassword"`
			NewPassword     string `json:"newPassword"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeInvalidBody(w, err)
			return
		}
		if err := s.service.ChangePassword(r.Context(), identity, body.CurrentPassword, body.NewPassword); err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"expiresAt":    formatTime(session.ExpiresAt),
		"userId":       session.User.UserID,
		"name":         session.User.Name,
		"email":        session.User.Email,
	}
}

func (s *HTTPServer) handleDocuments(w http.ResponseWriter, r *http.Request, identity Identity, parts []string) {
	ctx := r.Context()

	if len(parts) == 2 && r.Method == http.MethodPost {
		var body struct {
			Title string `json:"title"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeInvalidBody(w, err)
			return
		}
		summary, err := s.service.CreateDocument(ctx, identity, body.Title)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, summary)
		return
	}

	if len(parts) == 3 && parts[2] == "owned" && r.Method == http.MethodGet {
		items, err := s.service.ListOwned(ctx, identity)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, items)
		return
	}

	if len(parts) == 3 && parts[2] == "shared" && r.Method == http.MethodGet {
		items, err := s.service.ListShared(ctx, identity)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, items)
		return
	}

	if len(parts) < 3 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	docID := parts[2]

	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			doc, err := s.service.GetDocument(ctx, identity, docID)
			if err != nil {
				s.writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, doc)
		case http.MethodPut:
			var input UpdateDocumentInput
			if err := decodeBody(r, &input); err != nil {
				writeInvalidBody(w, err)
				return
			}
			result, err := s.service.UpdateDocument(ctx, identity, docID, input)
			if err != nil {
				s.writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, result)
		case http.MethodDelete:
			if err := s.service.DeleteDocument(ctx, identity, docID); err != nil {
				s.writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	switch parts[3] {
	case "share":
		s.handleShare(w, r, identity, docID, parts)
		return
	case "collaborators":
		if len(parts) == 4 && r.Method == http.MethodGet {
			items, err := s.service.ListCollaborators(ctx, identity, docID)
			if err != nil {
				s.writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, items)
			return
		}
	case "versions":
		s.handleVersions(w, r, identity, docID, parts)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleShare(w http.ResponseWriter, r *http.Request, identity Identity, docID string, parts []string) {
	ctx := r.Context()

	if len(parts) == 4 && r.Method == http.MethodPost {
		var body struct {
			Email      string `json:"email"`
			Permission string `json:"permission"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeInvalidBody(w, err)
			return
		}
		collaborator, err := s.service.ShareDocument(ctx, identity, docID, body.Email, body.Permission)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, collaborator)
		return
	}

	if len(parts) == 5 {
		userID := parts[4]
		switch r.Method {
		case http.MethodPut:
			var body struct {
				Permission string `json:"permission"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeInvalidBody(w, err)
				return
			}
			if err := s.service.UpdateCollaboratorPermission(ctx, identity, docID, userID, body.Permission); err != nil {
				s.writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
			return
		case http.MethodDelete:
			if err := s.service.RemoveCollaborator(ctx, identity, docID, userID); err != nil {
				s.writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleVersions(w http.ResponseWriter, r *http.Request, identity Identity, docID string, parts []string) {
	ctx := r.Context()

	if len(parts) == 4 {
		switch r.Method {
		case http.MethodPost:
			snapshot, err := s.service.CreateSnapshot(ctx, identity, docID)
			if err != nil {
				s.writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, snapshot)
			return
		case http.MethodGet:
			items, err := s.service.ListSnapshots(ctx, identity, docID)
			if err != nil {
				s.writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, items)
			return
		}
	}

	if len(parts) == 5 && r.Method == http.MethodGet {
		number, err := strconv.Atoi(parts[4])
		if err != nil || number < 1 {
			writeError(w, http.StatusBadRequest, string(KindInvalidArgument), "Version must be a positive integer.", nil)
			return
		}
		snapshot, err := s.service.GetSnapshot(ctx, identity, docID, number)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snapshot)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) requireIdentity(w http.ResponseWriter, r *http.Request) (Identity, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Identity{}, false
	}
	identity, err := s.service.IdentityFromToken(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Identity{}, false
	}
	return identity, true
}

func (s *HTTPServer) writeDomainError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		var domainErr *DomainError
		if !errors.As(err, &domainErr) {
			s.log.Error("unhandled error", zap.Error(err))
		}
	}
	writeError(w, status, code, message, details)
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

		s.metrics.ObserveRequest(r.Method, writer.status, started)
		s.log.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
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
		"code":    code,
		"message": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeInvalidBody(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, string(KindInvalidArgument), err.Error(), nil)
}

// decodeBody leaves target untouched for an empty body so the operation's
// own validation reports what is missing.
func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// mapError turns an error into a response. Store causes stay in the logs.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
