package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/evanschultz/sift/internal/app"
	"github.com/evanschultz/sift/internal/auth"
	"github.com/evanschultz/sift/internal/domain"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "sift.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	return repo
}

func mustTodo(t *testing.T, id, userID string, pane domain.PaneID, position int, now time.Time) domain.Todo {
	t.Helper()
	todo, err := domain.NewTodo(domain.TodoInput{ID: id, UserID: userID, Content: "todo " + id, Pane: pane, Position: position}, now)
	if err != nil {
		t.Fatalf("NewTodo() error = %v", err)
	}
	return todo
}

func TestRepository_TodoLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	for _, todo := range []domain.Todo{
		mustTodo(t, "t3", "u1", domain.PaneToday, 2, now),
		mustTodo(t, "t1", "u1", domain.PaneToday, 0, now),
		mustTodo(t, "t2", "u1", domain.PaneWork, 1, now),
		mustTodo(t, "x1", "u2", domain.PaneToday, 0, now),
	} {
		if err := repo.InsertTodo(ctx, todo); err != nil {
			t.Fatalf("InsertTodo() error = %v", err)
		}
	}

	list, err := repo.ListTodos(ctx, "u1")
	if err != nil {
		t.Fatalf("ListTodos() error = %v", err)
	}
	if len(list) != 3 || list[0].ID != "t1" || list[1].ID != "t2" || list[2].ID != "t3" {
		t.Fatalf("unexpected list order %#v", list)
	}

	todo := list[0]
	todo.SetCompleted(true, now.Add(time.Minute))
	todo.SetWaitingFor("Sam")
	if err := repo.UpdateTodo(ctx, todo); err != nil {
		t.Fatalf("UpdateTodo() error = %v", err)
	}
	loaded, err := repo.GetTodo(ctx, "u1", "t1")
	if err != nil {
		t.Fatalf("GetTodo() error = %v", err)
	}
	if loaded.CompletedAt == nil || !loaded.CompletedAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected completed_at %v", loaded.CompletedAt)
	}
	if loaded.WaitingFor != "Sam" || !loaded.CreatedAt.Equal(now) {
		t.Fatalf("unexpected loaded todo %#v", loaded)
	}

	if _, err := repo.GetTodo(ctx, "u2", "t1"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign get, got %v", err)
	}
	foreign := loaded
	foreign.UserID = "u2"
	if err := repo.UpdateTodo(ctx, foreign); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign update, got %v", err)
	}
	if err := repo.DeleteTodo(ctx, "u2", "t1"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign delete, got %v", err)
	}
	if err := repo.DeleteTodo(ctx, "u1", "t1"); err != nil {
		t.Fatalf("DeleteTodo() error = %v", err)
	}
	if _, err := repo.GetTodo(ctx, "u1", "t1"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestRepository_ServiceIntegration(t *testing.T) {
	ctx := context.Background()
	repo, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	svc := app.NewService(repo, func() string { return "id-1" }, nil).ForUser("u1")
	added, err := svc.AddTodo(ctx, app.AddTodoInput{Content: "ship it"})
	if err != nil {
		t.Fatalf("AddTodo() error = %v", err)
	}
	toggled, err := svc.SetTodoCompleted(ctx, added.ID, true)
	if err != nil {
		t.Fatalf("SetTodoCompleted() error = %v", err)
	}
	if !toggled.Completed() {
		t.Fatal("expected completed todo")
	}
	list, err := svc.ListTodos(ctx)
	if err != nil {
		t.Fatalf("ListTodos() error = %v", err)
	}
	if len(list) != 1 || !list[0].Completed() {
		t.Fatalf("unexpected list %#v", list)
	}
}

func TestRepository_AuthStore(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	user, err := repo.EnsureUser(ctx, domain.User{ID: "u1", Email: "ada@example.com", CreatedAt: now})
	if err != nil {
		t.Fatalf("EnsureUser() error = %v", err)
	}
	again, err := repo.EnsureUser(ctx, domain.User{ID: "u9", Email: "ada@example.com", CreatedAt: now})
	if err != nil {
		t.Fatalf("EnsureUser() error = %v", err)
	}
	if again.ID != user.ID {
		t.Fatalf("expected existing user %q, got %q", user.ID, again.ID)
	}

	code := auth.SignInCode{Hash: "h1", Email: "ada@example.com", CreatedAt: now, ExpiresAt: now.Add(time.Minute)}
	if err := repo.CreateSignInCode(ctx, code); err != nil {
		t.Fatalf("CreateSignInCode() error = %v", err)
	}
	consumed, err := repo.ConsumeSignInCode(ctx, "h1")
	if err != nil {
		t.Fatalf("ConsumeSignInCode() error = %v", err)
	}
	if consumed.Email != "ada@example.com" || !consumed.ExpiresAt.Equal(code.ExpiresAt) {
		t.Fatalf("unexpected consumed code %#v", consumed)
	}
	if _, err := repo.ConsumeSignInCode(ctx, "h1"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected single-use code, got %v", err)
	}

	sess := auth.SessionRecord{Hash: "s1", UserID: user.ID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := repo.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	loaded, err := repo.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if loaded.UserID != user.ID {
		t.Fatalf("unexpected session %#v", loaded)
	}
	if err := repo.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if _, err := repo.GetSession(ctx, "s1"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := repo.GetUser(ctx, "missing"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing user, got %v", err)
	}
}

func TestRepository_MagicLinkGatewayIntegration(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	var link string
	mailer := mailerFunc(func(_ context.Context, msg auth.Message) error {
		link = msg.Link
		return nil
	})
	g := auth.NewMagicLinkGateway(repo, mailer, func() string { return "user-1" }, nil, auth.Config{})
	if err := g.RequestSignInLink(ctx, "ada@example.com", "http://127.0.0.1:8080/auth/callback"); err != nil {
		t.Fatalf("RequestSignInLink() error = %v", err)
	}
	if link == "" {
		t.Fatal("expected link to be mailed")
	}
	code := link[len("http://127.0.0.1:8080/auth/callback?code="):]
	sess, err := g.ExchangeCode(ctx, code)
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	user, err := g.CurrentUser(ctx, sess.Token)
	if err != nil {
		t.Fatalf("CurrentUser() error = %v", err)
	}
	if user.Email != "ada@example.com" {
		t.Fatalf("unexpected user %#v", user)
	}
}

type mailerFunc func(context.Context, auth.Message) error

func (f mailerFunc) Send(ctx context.Context, msg auth.Message) error {
	return f(ctx, msg)
}
