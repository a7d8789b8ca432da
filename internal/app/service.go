package app

import (
	"context"
	"strings"
	"time"

	"github.com/evanschultz/sift/internal/domain"
)

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service applies todo use cases on top of a Repository.
type Service struct {
	repo  Repository
	idGen IDGenerator
	clock Clock
}

// NewService constructs a new value for this package.
func NewService(repo Repository, idGen IDGenerator, clock Clock) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		repo:  repo,
		idGen: idGen,
		clock: clock,
	}
}

// AddTodoInput holds input values for adding a todo. An empty pane means today.
type AddTodoInput struct {
	Content    string
	Pane       domain.PaneID
	Position   int
	WaitingFor string
}

// TodoPatch holds the optional fields of a todo update. Nil fields are left alone;
// an empty WaitingFor clears the annotation.
type TodoPatch struct {
	Content    *string
	Pane       *domain.PaneID
	Position   *int
	WaitingFor *string
	Completed  *bool
}

func (p TodoPatch) empty() bool {
	return p.Content == nil && p.Pane == nil && p.Position == nil && p.WaitingFor == nil && p.Completed == nil
}

// ListTodos returns the user's todos ordered by position.
func (s *Service) ListTodos(ctx context.Context, userID string) ([]domain.Todo, error) {
	userID, err := normalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTodos(ctx, userID)
}

// AddTodo stores a new todo for the user.
func (s *Service) AddTodo(ctx context.Context, userID string, in AddTodoInput) (domain.Todo, error) {
	userID, err := normalizeUserID(userID)
	if err != nil {
		return domain.Todo{}, err
	}
	if in.Pane == "" {
		in.Pane = domain.PaneToday
	}
	todo, err := domain.NewTodo(domain.TodoInput{
		ID:         s.idGen(),
		UserID:     userID,
		Content:    in.Content,
		Pane:       in.Pane,
		Position:   in.Position,
		WaitingFor: in.WaitingFor,
	}, s.clock())
	if err != nil {
		return domain.Todo{}, err
	}
	if err := s.repo.InsertTodo(ctx, todo); err != nil {
		return domain.Todo{}, err
	}
	return todo, nil
}

// UpdateTodo applies a partial update to one of the user's todos.
func (s *Service) UpdateTodo(ctx context.Context, userID, id string, patch TodoPatch) (domain.Todo, error) {
	if patch.empty() {
		return domain.Todo{}, ErrEmptyUpdate
	}
	todo, err := s.getTodo(ctx, userID, id)
	if err != nil {
		return domain.Todo{}, err
	}
	if patch.Content != nil {
		if err := todo.Edit(*patch.Content); err != nil {
			return domain.Todo{}, err
		}
	}
	if patch.Pane != nil || patch.Position != nil {
		pane, position := todo.Pane, todo.Position
		if patch.Pane != nil {
			pane = *patch.Pane
		}
		if patch.Position != nil {
			position = *patch.Position
		}
		if err := todo.Move(pane, position); err != nil {
			return domain.Todo{}, err
		}
	}
	if patch.WaitingFor != nil {
		todo.SetWaitingFor(*patch.WaitingFor)
	}
	if patch.Completed != nil && *patch.Completed != todo.Completed() {
		todo.SetCompleted(*patch.Completed, s.clock())
	}
	if err := s.repo.UpdateTodo(ctx, todo); err != nil {
		return domain.Todo{}, err
	}
	return todo, nil
}

// SetTodoCompleted marks a todo completed or not completed.
func (s *Service) SetTodoCompleted(ctx context.Context, userID, id string, completed bool) (domain.Todo, error) {
	return s.UpdateTodo(ctx, userID, id, TodoPatch{Completed: &completed})
}

// EditTodo replaces a todo's content.
func (s *Service) EditTodo(ctx context.Context, userID, id, content string) (domain.Todo, error) {
	return s.UpdateTodo(ctx, userID, id, TodoPatch{Content: &content})
}

// DeleteTodo removes one of the user's todos.
func (s *Service) DeleteTodo(ctx context.Context, userID, id string) error {
	userID, err := normalizeUserID(userID)
	if err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ErrInvalidID
	}
	return s.repo.DeleteTodo(ctx, userID, id)
}

// ForUser binds the service to one user as a TodoRepository.
func (s *Service) ForUser(userID string) TodoRepository {
	return userTodos{svc: s, userID: userID}
}

func (s *Service) getTodo(ctx context.Context, userID, id string) (domain.Todo, error) {
	userID, err := normalizeUserID(userID)
	if err != nil {
		return domain.Todo{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Todo{}, domain.ErrInvalidID
	}
	return s.repo.GetTodo(ctx, userID, id)
}

func normalizeUserID(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", domain.ErrInvalidUserID
	}
	return userID, nil
}

type userTodos struct {
	svc    *Service
	userID string
}

func (u userTodos) ListTodos(ctx context.Context) ([]domain.Todo, error) {
	return u.svc.ListTodos(ctx, u.userID)
}

func (u userTodos) AddTodo(ctx context.Context, in AddTodoInput) (domain.Todo, error) {
	return u.svc.AddTodo(ctx, u.userID, in)
}

func (u userTodos) SetTodoCompleted(ctx context.Context, id string, completed bool) (domain.Todo, error) {
	return u.svc.SetTodoCompleted(ctx, u.userID, id, completed)
}

func (u userTodos) EditTodo(ctx context.Context, id, content string) (domain.Todo, error) {
	return u.svc.EditTodo(ctx, u.userID, id, content)
}

func (u userTodos) DeleteTodo(ctx context.Context, id string) error {
	return u.svc.DeleteTodo(ctx, u.userID, id)
}
