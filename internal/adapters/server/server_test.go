package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
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
	"github.com/google/uuid"
)

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

func (m *linkMailer) code(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := url.Parse(m.link)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return u.Query().Get("code")
}

func newDeps(t *testing.T) (Dependencies, *linkMailer) {
	t.Helper()
	repo, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	mailer := &linkMailer{}
	svc := app.NewService(repo, uuid.NewString, time.Now)
	return Dependencies{
		Todos:   common.NewAppServiceAdapter(svc),
		Gateway: auth.NewMagicLinkGateway(repo, mailer, uuid.NewString, time.Now, auth.Config{}),
		Ready:   repo.Ping,
	}, mailer
}

// TestNormalizeConfigDefaults verifies serve defaults and endpoint validation.
func TestNormalizeConfigDefaults(t *testing.T) {
	cfg, err := normalizeConfig(Config{})
	if err != nil {
		t.Fatalf("normalizeConfig() error = %v", err)
	}
	if cfg.HTTPBind != defaultBindAddress || cfg.APIEndpoint != "/api/v1" || cfg.MCPEndpoint != "/mcp" {
		t.Fatalf("unexpected defaults %#v", cfg)
	}
	if cfg.BaseURL != "http://127.0.0.1:8080" || cfg.ServerName != "sift" {
		t.Fatalf("unexpected defaults %#v", cfg)
	}
	if _, err := normalizeConfig(Config{APIEndpoint: "/x", MCPEndpoint: "x/"}); err == nil {
		t.Fatal("expected error for colliding endpoints")
	}
	if _, err := normalizeConfig(Config{MCPEndpoint: "/login"}); err == nil {
		t.Fatal("expected error for endpoint colliding with sign-in routes")
	}
}

// TestHandlerHealthAndReadiness verifies the health and readiness endpoints.
func TestHandlerHealthAndReadiness(t *testing.T) {
	deps, _ := newDeps(t)
	handler, _, err := NewHandler(Config{BaseURL: "http://sift.test"}, deps)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rec.Code)
		}
	}

	deps.Ready = func(context.Context) error { return errors.New("db gone") }
	handler, _, err = NewHandler(Config{BaseURL: "http://sift.test"}, deps)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status = %d, want 503", rec.Code)
	}
}

// TestHandlerRequiresDependencies verifies missing adapters fail fast.
func TestHandlerRequiresDependencies(t *testing.T) {
	deps, _ := newDeps(t)
	gateway := deps.Gateway
	deps.Gateway = nil
	if _, _, err := NewHandler(Config{}, deps); err == nil {
		t.Fatal("expected error without gateway")
	}
	deps.Gateway = gateway
	deps.Todos = nil
	if _, _, err := NewHandler(Config{}, deps); err == nil {
		t.Fatal("expected error without todo service")
	}
}

// TestBrowserSignInFlow verifies login, callback, board, API cookie auth, and logout end to end.
func TestBrowserSignInFlow(t *testing.T) {
	deps, mailer := newDeps(t)
	handler, _, err := NewHandler(Config{BaseURL: "http://sift.test"}, deps)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	srv := httptest.NewServer(handler)
	defer srv.Close()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New() error = %v", err)
	}
	client := srv.Client()
	client.Jar = jar

	resp, err := client.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	body := readBody(t, resp)
	if !strings.Contains(body, `name="email"`) {
		t.Fatalf("expected anonymous visitor to land on login form, got %s", body)
	}

	resp, err = client.PostForm(srv.URL+"/login", url.Values{"email": {"ada@example.com"}})
	if err != nil {
		t.Fatalf("PostForm() error = %v", err)
	}
	if body := readBody(t, resp); !strings.Contains(body, "Check your email") {
		t.Fatalf("expected confirmation, got %s", body)
	}
	code := mailer.code(t)
	if code == "" {
		t.Fatal("expected emailed code")
	}

	if _, err := deps.Todos.AddTodo(context.Background(), "nobody", common.AddTodoRequest{Content: "not yours"}); err != nil {
		t.Fatalf("AddTodo() error = %v", err)
	}

	resp, err = client.Get(srv.URL + "/auth/callback?code=" + url.QueryEscape(code))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	body = readBody(t, resp)
	if !strings.Contains(body, "[1] TODAY") || strings.Contains(body, "not yours") {
		t.Fatalf("expected own empty board after callback, got %s", body)
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/todos", strings.NewReader(`{"content":"water plants"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("api add status = %d body=%s", resp.StatusCode, readBody(t, resp))
	}
	_ = readBody(t, resp)

	resp, err = client.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if body := readBody(t, resp); !strings.Contains(body, "water plants") {
		t.Fatalf("expected new todo on board, got %s", body)
	}

	resp, err = client.Post(srv.URL+"/logout", "application/x-www-form-urlencoded", nil)
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if body := readBody(t, resp); !strings.Contains(body, `name="email"`) {
		t.Fatalf("expected login form after logout, got %s", body)
	}
}

// TestMCPEndpointRequiresSession verifies the MCP mount is behind auth.
func TestMCPEndpointRequiresSession(t *testing.T) {
	deps, _ := newDeps(t)
	handler, _, err := NewHandler(Config{BaseURL: "http://sift.test"}, deps)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

// TestRunStopsOnCancel verifies graceful shutdown when the context is canceled.
func TestRunStopsOnCancel(t *testing.T) {
	deps, _ := newDeps(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{HTTPBind: "127.0.0.1:0", BaseURL: "http://sift.test"}, deps)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	return string(b)
}
