package common

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/evanschultz/sift/internal/app"
	"github.com/evanschultz/sift/internal/domain"
)

// AppServiceAdapter exposes app.Service through the transport TodoService contract.
type AppServiceAdapter struct {
	service *app.Service
}

// NewAppServiceAdapter constructs one adapter around an app service.
func NewAppServiceAdapter(service *app.Service) *AppServiceAdapter {
	return &AppServiceAdapter{service: service}
}

// ListTodos lists the user's todos, optionally restricted to one pane.
func (a *AppServiceAdapter) ListTodos(ctx context.Context, userID string, pane string) ([]Todo, error) {
	var filter domain.PaneID
	if strings.TrimSpace(pane) != "" {
		parsed, err := domain.ParsePaneID(pane)
		if err != nil {
			return nil, mapAppError("list todos", err)
		}
		filter = parsed
	}
	todos, err := a.service.ListTodos(ctx, userID)
	if err != nil {
		return nil, mapAppError("list todos", err)
	}
	out := make([]Todo, 0, len(todos))
	for _, todo := range todos {
		if filter != "" && todo.Pane != filter {
			continue
		}
		out = append(out, TodoFromDomain(todo))
	}
	return out, nil
}

// AddTodo stores a new todo.
func (a *AppServiceAdapter) AddTodo(ctx context.Context, userID string, req AddTodoRequest) (Todo, error) {
	var pane domain.PaneID
	if strings.TrimSpace(req.Pane) != "" {
		parsed, err := domain.ParsePaneID(req.Pane)
		if err != nil {
			return Todo{}, mapAppError("add todo", err)
		}
		pane = parsed
	}
	todo, err := a.service.AddTodo(ctx, userID, app.AddTodoInput{
		Content:    req.Content,
		Pane:       pane,
		Position:   req.Position,
		WaitingFor: req.WaitingFor,
	})
	if err != nil {
		return Todo{}, mapAppError("add todo", err)
	}
	return TodoFromDomain(todo), nil
}

// UpdateTodo applies a partial update.
func (a *AppServiceAdapter) UpdateTodo(ctx context.Context, userID, id string, req UpdateTodoRequest) (Todo, error) {
	patch := app.TodoPatch{
		Content:    req.Content,
		Position:   req.Position,
		WaitingFor: req.WaitingFor,
		Completed:  req.Completed,
	}
	if req.Pane != nil {
		pane, err := domain.ParsePaneID(*req.Pane)
		if err != nil {
			return Todo{}, mapAppError("update todo", err)
		}
		patch.Pane = &pane
	}
	todo, err := a.service.UpdateTodo(ctx, userID, id, patch)
	if err != nil {
		return Todo{}, mapAppError("update todo", err)
	}
	return TodoFromDomain(todo), nil
}

// DeleteTodo removes a todo.
func (a *AppServiceAdapter) DeleteTodo(ctx context.Context, userID, id string) error {
	return mapAppError("delete todo", a.service.DeleteTodo(ctx, userID, id))
}

// mapAppError maps app/domain errors into transport-layer error sentinels.
func mapAppError(operation string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, app.ErrNotFound):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNotFound, err))
	case errors.Is(err, app.ErrEmptyUpdate),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidUserID),
		errors.Is(err, domain.ErrInvalidContent),
		errors.Is(err, domain.ErrInvalidPane),
		errors.Is(err, domain.ErrInvalidPosition):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidRequest, err))
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}
