// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"
	"time"

	"github.com/evanschultz/sift/internal/domain"
)

// ErrInvalidRequest reports malformed or invalid transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound reports missing transport-visible resources.
var ErrNotFound = errors.New("not found")

// ErrUnauthenticated reports a request without a valid session.
var ErrUnauthenticated = errors.New("not signed in")

// ErrSignInFailed reports a sign-in link request that could not be delivered.
var ErrSignInFailed = errors.New("sign-in request failed")

// Todo is the wire shape of one todo.
type Todo struct {
	ID          string     `json:"id"`
	Content     string     `json:"content"`
	Pane        string     `json:"pane"`
	Position    int        `json:"position"`
	WaitingFor  string     `json:"waiting_for,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// User is the wire shape of the signed-in user.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is the wire shape of an issued session.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

// AddTodoRequest captures one add request. An empty pane means today.
type AddTodoRequest struct {
	Content    string `json:"content"`
	Pane       string `json:"pane,omitempty"`
	Position   int    `json:"position,omitempty"`
	WaitingFor string `json:"waiting_for,omitempty"`
}

// UpdateTodoRequest captures one partial update. Omitted fields are left alone.
type UpdateTodoRequest struct {
	Content    *string `json:"content,omitempty"`
	Pane       *string `json:"pane,omitempty"`
	Position   *int    `json:"position,omitempty"`
	WaitingFor *string `json:"waiting_for,omitempty"`
	Completed  *bool   `json:"completed,omitempty"`
}

// ExchangeCodeRequest captures a one-time code redemption.
type ExchangeCodeRequest struct {
	Code string `json:"code"`
}

// SignInRequest captures a sign-in link request.
type SignInRequest struct {
	Email string `json:"email"`
}

// TodoService is the todo surface shared by the HTTP and MCP adapters.
type TodoService interface {
	ListTodos(ctx context.Context, userID string, pane string) ([]Todo, error)
	AddTodo(ctx context.Context, userID string, req AddTodoRequest) (Todo, error)
	UpdateTodo(ctx context.Context, userID, id string, req UpdateTodoRequest) (Todo, error)
	DeleteTodo(ctx context.Context, userID, id string) error
}

// TodoFromDomain maps a domain todo to its wire shape.
func TodoFromDomain(t domain.Todo) Todo {
	return Todo{
		ID:          t.ID,
		Content:     t.Content,
		Pane:        string(t.Pane),
		Position:    t.Position,
		WaitingFor:  t.WaitingFor,
		CreatedAt:   t.CreatedAt,
		CompletedAt: t.CompletedAt,
	}
}

// Domain maps the wire shape back to a domain todo owned by userID.
func (t Todo) Domain(userID string) domain.Todo {
	return domain.Todo{
		ID:          t.ID,
		UserID:      userID,
		Content:     t.Content,
		Pane:        domain.PaneID(t.Pane),
		Position:    t.Position,
		WaitingFor:  t.WaitingFor,
		CreatedAt:   t.CreatedAt,
		CompletedAt: t.CompletedAt,
	}
}

// UserFromDomain maps a domain user to its wire shape.
func UserFromDomain(u domain.User) User {
	return User{ID: u.ID, Email: u.Email}
}
