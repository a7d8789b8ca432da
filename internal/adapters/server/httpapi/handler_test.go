package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/evanschultz/sift/internal/adapters/server/common"
	"github.com/evanschultz/sift/internal/adapters/storage/sqlite"
	"github.com/evanschultz/sift/internal/app"
	"github.com/evanschultz/sift/internal/auth"
	"github.com/evanschultz/sift/internal/domain"
	"github.com/google/uuid"
)

// stubTodoService provides deterministic todo responses for handler tests.
type stubTodoService struct {
	todos      []common.Todo
	added      common.Todo
	err        error
	lastUserID string
	lastPane   string
	lastAdd    common.AddTodoRequest
	lastUpdate common.UpdateTodoRequest
	lastID     string
}

// ListTodos records the request and returns fixture todos.
func (s *stubTodoService) ListTodos(_ context.Context, userID, pane string) ([]common.Todo, error) {
	s.lastUserID, s.lastPane = userID, pane
	if s.err != nil {
		return nil, s.err
	}
	return append([]common.Todo(nil), s.todos...), nil
}

// AddTodo records the request and returns the fixture todo.
func (s *stubTodoService) AddTodo(_ context.Context, userID string, req common.AddTodoRequest) (common.Todo, error) {
	s.lastUserID, s.lastAdd = userID, req
	if s.err != nil {
		return common.Todo{}, s.err
	}
	return s.added, nil
}

// UpdateTodo records the request and returns the fixture todo.
func (s *stubTodoService) UpdateTodo(_ context.Context, userID, id string, req common.UpdateTodoRequest) (common.Todo, error) {
	s.lastUserID, s.lastID, s.lastUpdate = userID, id, req
	if s.err != nil {
		return common.Todo{}, s.err
	}
	return s.added, nil
}

// DeleteTodo records the request.
func (s *stubTodoService) DeleteTodo(_ context.Context, userID, id string) error {
	s.lastUserID, s.lastID = userID, id
	return s.err
}

// stubGateway resolves a fixed token table.
type stubGateway struct {
	users      map[string]domain.User
	signInErr  error
	lastEmail  string
	lastReturn string
	signedOut  []string
}

func (s *stubGateway) CurrentUser(_ context.Context, token string) (domain.User, error) {
	user, ok := s.users[token]
	if !ok {
		return domain.User{}, auth.ErrUnauthenticated
	}
	return user, nil
}

func (s *stubGateway) RequestSignInLink(_ context.Context, email, returnURL string) error {
	s.lastEmail, s.lastReturn = email, returnURL
	return s.signInErr
}

func (s *stubGateway) ExchangeCode(_ context.Context, code string) (auth.Session, error) {
	if code != "good" {
		return auth.Session{}, auth.ErrInvalidCode
	}
	return auth.Session{Token: "tok", User: s.users["tok"], ExpiresAt: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)}, nil
}

func (s *stubGateway) SignOut(_ context.Context, token string) error {
	s.signedOut = append(s.signedOut, token)
	return nil
}

func newStubGateway() *stubGateway {
	return &stubGateway{users: map[string]domain.User{"tok": {ID: "u1", Email: "ada@example.com"}}}
}

func serve(t *testing.T, h http.Handler, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var env ErrorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return env.Error
}

// TestHandlerRequiresSession verifies todo routes reject missing and unknown tokens.
func TestHandlerRequiresSession(t *testing.T) {
	handler := NewHandler(&stubTodoService{}, newStubGateway(), "http://localhost/auth/callback")
	for _, token := range []string{"", "nope"} {
		rec := serve(t, handler, http.MethodGet, "/todos", token, "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("token %q status = %d, want 401", token, rec.Code)
		}
		if got := decodeError(t, rec); got.Code != "unauthenticated" {
			t.Fatalf("code = %q, want unauthenticated", got.Code)
		}
	}
}

// TestHandlerTodoRoutes verifies request mapping for the todo routes.
func TestHandlerTodoRoutes(t *testing.T) {
	todos := &stubTodoService{
		todos: []common.Todo{{ID: "t1", Content: "plan", Pane: "work"}},
		added: common.Todo{ID: "t2", Content: "ship", Pane: "today"},
	}
	handler := NewHandler(todos, newStubGateway(), "http://localhost/auth/callback")

	rec := serve(t, handler, http.MethodGet, "/todos?pane=work", "tok", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if todos.lastUserID != "u1" || todos.lastPane != "work" {
		t.Fatalf("list request = %q/%q", todos.lastUserID, todos.lastPane)
	}
	var listed struct {
		Todos []common.Todo `json:"todos"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&listed); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(listed.Todos) != 1 || listed.Todos[0].ID != "t1" {
		t.Fatalf("unexpected todos %#v", listed.Todos)
	}

	rec = serve(t, handler, http.MethodPost, "/todos", "tok", `{"content":"ship"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d", rec.Code)
	}
	if todos.lastAdd.Content != "ship" {
		t.Fatalf("add content = %q", todos.lastAdd.Content)
	}

	rec = serve(t, handler, http.MethodPatch, "/todos/t2", "tok", `{"completed":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d", rec.Code)
	}
	if todos.lastID != "t2" || todos.lastUpdate.Completed == nil || !*todos.lastUpdate.Completed {
		t.Fatalf("patch request = %q %#v", todos.lastID, todos.lastUpdate)
	}

	rec = serve(t, handler, http.MethodDelete, "/todos/t2/", "tok", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
}

// TestHandlerErrorMapping verifies service errors map to structured statuses.
func TestHandlerErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
		code string
	}{
		{name: "not found", err: common.ErrNotFound, want: http.StatusNotFound, code: "not_found"},
		{name: "invalid", err: common.ErrInvalidRequest, want: http.StatusBadRequest, code: "invalid_request"},
		{name: "internal", err: errors.New("disk on fire"), want: http.StatusInternalServerError, code: "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewHandler(&stubTodoService{err: tc.err}, newStubGateway(), "")
			rec := serve(t, handler, http.MethodDelete, "/todos/t1", "tok", "")
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
			if got := decodeError(t, rec); got.Code != tc.code {
				t.Fatalf("code = %q, want %q", got.Code, tc.code)
			}
		})
	}
}

// TestHandlerRejectsMalformedBodies verifies strict JSON decoding.
func TestHandlerRejectsMalformedBodies(t *testing.T) {
	handler := NewHandler(&stubTodoService{}, newStubGateway(), "")
	for _, body := range []string{`{"content":`, `{"content":"x","extra":1}`, `{"content":"x"}{}`} {
		rec := serve(t, handler, http.MethodPost, "/todos", "tok", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q status = %d, want 400", body, rec.Code)
		}
	}
}

// TestHandlerMethodAndRouteErrors verifies 405 and 404 responses.
func TestHandlerMethodAndRouteErrors(t *testing.T) {
	handler := NewHandler(&stubTodoService{}, newStubGateway(), "")

	rec := serve(t, handler, http.MethodPut, "/todos", "tok", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != "GET, POST" {
		t.Fatalf("Allow = %q", allow)
	}

	rec = serve(t, handler, http.MethodGet, "/projects", "tok", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

// TestHandlerSessionRoutes verifies sign-in, exchange, me, and sign-out routes.
func TestHandlerSessionRoutes(t *testing.T) {
	gw := newStubGateway()
	handler := NewHandler(&stubTodoService{}, gw, "http://localhost:8080/auth/callback")

	rec := serve(t, handler, http.MethodPost, "/sign_in", "", `{"email":"ada@example.com"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("sign_in status = %d", rec.Code)
	}
	if gw.lastEmail != "ada@example.com" || gw.lastReturn != "http://localhost:8080/auth/callback" {
		t.Fatalf("sign_in request = %q %q", gw.lastEmail, gw.lastReturn)
	}

	gw.signInErr = domain.ErrInvalidEmail
	rec = serve(t, handler, http.MethodPost, "/sign_in", "", `{"email":"nope"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid email status = %d", rec.Code)
	}
	gw.signInErr = errors.New("smtp down")
	rec = serve(t, handler, http.MethodPost, "/sign_in", "", `{"email":"ada@example.com"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("mailer failure status = %d", rec.Code)
	}

	rec = serve(t, handler, http.MethodPost, "/sessions", "", `{"code":"bad"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad code status = %d", rec.Code)
	}
	rec = serve(t, handler, http.MethodPost, "/sessions", "", `{"code":"good"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("exchange status = %d", rec.Code)
	}
	var sess common.Session
	if err := json.NewDecoder(rec.Body).Decode(&sess); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if sess.Token != "tok" || sess.User.Email != "ada@example.com" {
		t.Fatalf("unexpected session %#v", sess)
	}

	rec = serve(t, handler, http.MethodGet, "/me", sess.Token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d", rec.Code)
	}

	rec = serve(t, handler, http.MethodDelete, "/sessions", sess.Token, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("sign out status = %d", rec.Code)
	}
	if len(gw.signedOut) != 1 || gw.signedOut[0] != "tok" {
		t.Fatalf("signed out = %#v", gw.signedOut)
	}
}

// linkMailer captures the most recent sign-in link.
type linkMailer struct {
	mu   sync.Mutex
	link string
}

func (m *linkMailer) Send(_ context.Context, msg auth.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.link = msg.Link
	return nil
}

// TestHandlerEndToEndWithSQLite verifies the sign-in flow and todo CRUD against real storage.
func TestHandlerEndToEndWithSQLite(t *testing.T) {
	repo, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	mailer := &linkMailer{}
	gw := auth.NewMagicLinkGateway(repo, mailer, uuid.NewString, time.Now, auth.Config{})
	svc := app.NewService(repo, uuid.NewString, time.Now)
	handler := NewHandler(common.NewAppServiceAdapter(svc), gw, "http://localhost:8080/auth/callback")

	rec := serve(t, handler, http.MethodPost, "/sign_in", "", `{"email":"Ada@Example.com"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("sign_in status = %d body=%s", rec.Code, rec.Body.String())
	}
	link, err := url.Parse(mailer.link)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	code := link.Query().Get("code")
	if code == "" {
		t.Fatalf("expected code in link %q", mailer.link)
	}

	rec = serve(t, handler, http.MethodPost, "/sessions", "", `{"code":"`+code+`"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("exchange status = %d body=%s", rec.Code, rec.Body.String())
	}
	var sess common.Session
	if err := json.NewDecoder(rec.Body).Decode(&sess); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if sess.User.Email != "ada@example.com" {
		t.Fatalf("email = %q", sess.User.Email)
	}

	rec = serve(t, handler, http.MethodPost, "/todos", sess.Token, `{"content":"call bank","pane":"waiting","waiting_for":"bank"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d body=%s", rec.Code, rec.Body.String())
	}
	var added common.Todo
	if err := json.NewDecoder(rec.Body).Decode(&added); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if added.Pane != "waiting" || added.WaitingFor != "bank" {
		t.Fatalf("unexpected todo %#v", added)
	}

	rec = serve(t, handler, http.MethodPatch, "/todos/"+added.ID, sess.Token, `{"content":"call the bank"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = serve(t, handler, http.MethodPost, "/sessions", "", `{"code":"`+code+`"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("reused code status = %d", rec.Code)
	}

	rec = serve(t, handler, http.MethodDelete, "/sessions", sess.Token, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("sign out status = %d", rec.Code)
	}
	rec = serve(t, handler, http.MethodGet, "/todos", sess.Token, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("post sign-out status = %d", rec.Code)
	}
}
