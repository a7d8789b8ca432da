package app

import (
	"context"

	"github.com/evanschultz/sift/internal/domain"
)

// Repository is the todo store port. Every call is scoped to the owning user;
// rows that belong to another user behave as missing.
type Repository interface {
	InsertTodo(context.Context, domain.Todo) error
	UpdateTodo(context.Context, domain.Todo) error
	GetTodo(ctx context.Context, userID, id string) (domain.Todo, error)
	DeleteTodo(ctx context.Context, userID, id string) error
	// ListTodos returns every todo of the user ordered by position ascending.
	ListTodos(ctx context.Context, userID string) ([]domain.Todo, error)
}

// TodoRepository is the single todo capability handed to a client for one signed-in user.
type TodoRepository interface {
	ListTodos(context.Context) ([]domain.Todo, error)
	AddTodo(context.Context, AddTodoInput) (domain.Todo, error)
	SetTodoCompleted(ctx context.Context, id string, completed bool) (domain.Todo, error)
	EditTodo(ctx context.Context, id, content string) (domain.Todo, error)
	DeleteTodo(ctx context.Context, id string) error
}
