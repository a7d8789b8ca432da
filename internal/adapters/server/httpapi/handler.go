// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/evanschultz/sift/internal/adapters/server/common"
	"github.com/evanschultz/sift/internal/auth"
	"github.com/evanschultz/sift/internal/domain"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	todos       common.TodoService
	gateway     auth.Gateway
	callbackURL string
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter. callbackURL is the absolute URL
// that emailed sign-in links point at.
func NewHandler(todos common.TodoService, gateway auth.Gateway, callbackURL string) *Handler {
	return &Handler{
		todos:       todos,
		gateway:     gateway,
		callbackURL: strings.TrimSpace(callbackURL),
	}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := normalizePath(r.URL.Path)
	switch {
	case path == "sign_in":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleSignIn(w, r)
	case path == "sessions":
		switch r.Method {
		case http.MethodPost:
			h.handleExchangeCode(w, r)
		case http.MethodDelete:
			h.handleSignOut(w, r)
		default:
			writeMethodNotAllowed(w, http.MethodPost, http.MethodDelete)
		}
	case path == "me":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.withUser(w, r, h.handleMe)
	case path == "todos":
		switch r.Method {
		case http.MethodGet:
			h.withUser(w, r, h.handleListTodos)
		case http.MethodPost:
			h.withUser(w, r, h.handleAddTodo)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	default:
		todoID, ok := resolveTodoID(path)
		if !ok {
			writeJSONError(w, http.StatusNotFound, APIError{
				Code:    "not_found",
				Message: "endpoint not found",
			})
			return
		}
		switch r.Method {
		case http.MethodPatch:
			h.withUser(w, r, func(w http.ResponseWriter, r *http.Request, user domain.User) {
				h.handleUpdateTodo(w, r, user, todoID)
			})
		case http.MethodDelete:
			h.withUser(w, r, func(w http.ResponseWriter, r *http.Request, user domain.User) {
				h.handleDeleteTodo(w, r, user, todoID)
			})
		default:
			writeMethodNotAllowed(w, http.MethodPatch, http.MethodDelete)
		}
	}
}

// withUser authenticates the request before calling next.
func (h *Handler) withUser(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request, domain.User)) {
	user, err := common.Authenticate(r.Context(), h.gateway, r)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	next(w, r.WithContext(common.WithUser(r.Context(), user)), user)
}

// handleSignIn serves POST `/sign_in`.
func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req common.SignInRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	if h.gateway == nil || h.callbackURL == "" {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: "sign-in is not configured",
		})
		return
	}
	if err := h.gateway.RequestSignInLink(r.Context(), req.Email, h.callbackURL); err != nil {
		if errors.Is(err, domain.ErrInvalidEmail) {
			writeErrorFrom(w, fmt.Errorf("sign in: %w", errors.Join(common.ErrInvalidRequest, err)))
			return
		}
		writeErrorFrom(w, fmt.Errorf("sign in: %w", errors.Join(common.ErrSignInFailed, err)))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// handleExchangeCode serves POST `/sessions`.
func (h *Handler) handleExchangeCode(w http.ResponseWriter, r *http.Request) {
	var req common.ExchangeCodeRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	if h.gateway == nil {
		writeErrorFrom(w, common.ErrUnauthenticated)
		return
	}
	sess, err := h.gateway.ExchangeCode(r.Context(), req.Code)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCode) {
			writeErrorFrom(w, fmt.Errorf("exchange code: %w", errors.Join(common.ErrUnauthenticated, err)))
			return
		}
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, common.Session{
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
		User:      common.UserFromDomain(sess.User),
	})
}

// handleSignOut serves DELETE `/sessions`.
func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if h.gateway != nil {
		if err := h.gateway.SignOut(r.Context(), common.RequestToken(r)); err != nil {
			writeErrorFrom(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMe serves GET `/me`.
func (h *Handler) handleMe(w http.ResponseWriter, _ *http.Request, user domain.User) {
	writeJSON(w, http.StatusOK, common.UserFromDomain(user))
}

// handleListTodos serves GET `/todos`.
func (h *Handler) handleListTodos(w http.ResponseWriter, r *http.Request, user domain.User) {
	todos, err := h.todos.ListTodos(r.Context(), user.ID, r.URL.Query().Get("pane"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"todos": todos})
}

// handleAddTodo serves POST `/todos`.
func (h *Handler) handleAddTodo(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req common.AddTodoRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	todo, err := h.todos.AddTodo(r.Context(), user.ID, req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, todo)
}

// handleUpdateTodo serves PATCH `/todos/{id}`.
func (h *Handler) handleUpdateTodo(w http.ResponseWriter, r *http.Request, user domain.User, todoID string) {
	var req common.UpdateTodoRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	todo, err := h.todos.UpdateTodo(r.Context(), user.ID, todoID, req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, todo)
}

// handleDeleteTodo serves DELETE `/todos/{id}`.
func (h *Handler) handleDeleteTodo(w http.ResponseWriter, r *http.Request, user domain.User, todoID string) {
	if err := h.todos.DeleteTodo(r.Context(), user.ID, todoID); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// resolveTodoID parses `/todos/{id}` and returns `{id}`.
func resolveTodoID(path string) (string, bool) {
	const prefix = "todos/"
	if !strings.HasPrefix(path, prefix) {
		return "", false
	}
	id := strings.TrimSpace(strings.TrimPrefix(path, prefix))
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// normalizePath canonicalizes one request path for route matching.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	return path
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, common.ErrUnauthenticated):
		writeJSONError(w, http.StatusUnauthorized, APIError{
			Code:    "unauthenticated",
			Message: err.Error(),
			Hint:    "Sign in with `sift login` and retry.",
		})
	case errors.Is(err, common.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrInvalidRequest):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrSignInFailed):
		writeJSONError(w, http.StatusBadGateway, APIError{
			Code:    "sign_in_failed",
			Message: err.Error(),
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}
