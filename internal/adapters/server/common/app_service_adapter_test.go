package common

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/evanschultz/sift/internal/adapters/storage/sqlite"
	"github.com/evanschultz/sift/internal/app"
	"github.com/evanschultz/sift/internal/auth"
	"github.com/evanschultz/sift/internal/domain"
)

func newTestAdapter(t *testing.T) *AppServiceAdapter {
	t.Helper()
	repo, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	n := 0
	svc := app.NewService(repo, func() string {
		n++
		return "todo-" + string(rune('a'+n-1))
	}, func() time.Time { return time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC) })
	return NewAppServiceAdapter(svc)
}

// TestAppServiceAdapterTodoFlow verifies add, filter, update, and delete mapping.
func TestAppServiceAdapterTodoFlow(t *testing.T) {
	ctx := context.Background()
	adapter := newTestAdapter(t)

	first, err := adapter.AddTodo(ctx, "u1", AddTodoRequest{Content: "plan week"})
	if err != nil {
		t.Fatalf("AddTodo() error = %v", err)
	}
	if first.Pane != "today" {
		t.Fatalf("expected default pane today, got %q", first.Pane)
	}
	if _, err := adapter.AddTodo(ctx, "u1", AddTodoRequest{Content: "report", Pane: "WORK"}); err != nil {
		t.Fatalf("AddTodo() error = %v", err)
	}

	work, err := adapter.ListTodos(ctx, "u1", "work")
	if err != nil {
		t.Fatalf("ListTodos() error = %v", err)
	}
	if len(work) != 1 || work[0].Content != "report" {
		t.Fatalf("unexpected work todos %#v", work)
	}

	done := true
	updated, err := adapter.UpdateTodo(ctx, "u1", first.ID, UpdateTodoRequest{Completed: &done})
	if err != nil {
		t.Fatalf("UpdateTodo() error = %v", err)
	}
	if updated.CompletedAt == nil {
		t.Fatal("expected completed_at")
	}

	if err := adapter.DeleteTodo(ctx, "u1", first.ID); err != nil {
		t.Fatalf("DeleteTodo() error = %v", err)
	}
	if err := adapter.DeleteTodo(ctx, "u1", first.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// TestAppServiceAdapterMapsValidationErrors verifies invalid input maps to ErrInvalidRequest.
func TestAppServiceAdapterMapsValidationErrors(t *testing.T) {
	ctx := context.Background()
	adapter := newTestAdapter(t)
	if _, err := adapter.AddTodo(ctx, "u1", AddTodoRequest{Content: " "}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for blank content, got %v", err)
	}
	if _, err := adapter.AddTodo(ctx, "u1", AddTodoRequest{Content: "x", Pane: "inbox"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for bad pane, got %v", err)
	}
	if _, err := adapter.ListTodos(ctx, "u1", "inbox"); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for bad filter, got %v", err)
	}
	if _, err := adapter.UpdateTodo(ctx, "u1", "missing", UpdateTodoRequest{}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for empty update, got %v", err)
	}
}

type stubGateway struct {
	users map[string]domain.User
}

func (s stubGateway) CurrentUser(_ context.Context, token string) (domain.User, error) {
	user, ok := s.users[token]
	if !ok {
		return domain.User{}, auth.ErrUnauthenticated
	}
	return user, nil
}

func (s stubGateway) RequestSignInLink(context.Context, string, string) error { return nil }

func (s stubGateway) ExchangeCode(context.Context, string) (auth.Session, error) {
	return auth.Session{}, auth.ErrInvalidCode
}

func (s stubGateway) SignOut(context.Context, string) error { return nil }

// TestAuthenticateReadsBearerAndCookie verifies both token carriers resolve the user.
func TestAuthenticateReadsBearerAndCookie(t *testing.T) {
	gw := stubGateway{users: map[string]domain.User{"tok": {ID: "u1", Email: "ada@example.com"}}}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer tok")
	user, err := Authenticate(req.Context(), gw, req)
	if err != nil || user.ID != "u1" {
		t.Fatalf("Authenticate() = %#v, %v", user, err)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "tok"})
	if _, err := Authenticate(req.Context(), gw, req); err != nil {
		t.Fatalf("Authenticate() cookie error = %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic tok")
	if _, err := Authenticate(req.Context(), gw, req); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for non-bearer scheme, got %v", err)
	}

	ctx := WithUser(context.Background(), user)
	if got, ok := UserFromContext(ctx); !ok || got.ID != "u1" {
		t.Fatalf("UserFromContext() = %#v, %t", got, ok)
	}
	if _, ok := UserFromContext(context.Background()); ok {
		t.Fatal("expected no user in empty context")
	}
}
