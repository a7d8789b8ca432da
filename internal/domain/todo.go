package domain

import (
	"slices"
	"strings"
	"time"
)

// Todo is a single user-owned item living in exactly one pane.
type Todo struct {
	ID          string
	UserID      string
	Content     string
	Pane        PaneID
	Position    int
	WaitingFor  string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// TodoInput holds the values needed to construct a todo.
type TodoInput struct {
	ID         string
	UserID     string
	Content    string
	Pane       PaneID
	Position   int
	WaitingFor string
}

// NewTodo validates input and builds a todo created at now.
func NewTodo(in TodoInput, now time.Time) (Todo, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.UserID = strings.TrimSpace(in.UserID)
	in.Content = strings.TrimSpace(in.Content)
	if in.ID == "" {
		return Todo{}, ErrInvalidID
	}
	if in.UserID == "" {
		return Todo{}, ErrInvalidUserID
	}
	if in.Content == "" {
		return Todo{}, ErrInvalidContent
	}
	if !in.Pane.Valid() {
		return Todo{}, ErrInvalidPane
	}
	if in.Position < 0 {
		return Todo{}, ErrInvalidPosition
	}
	return Todo{
		ID:         in.ID,
		UserID:     in.UserID,
		Content:    in.Content,
		Pane:       in.Pane,
		Position:   in.Position,
		WaitingFor: strings.TrimSpace(in.WaitingFor),
		CreatedAt:  now.UTC(),
	}, nil
}

// Completed reports whether the todo has a completion timestamp.
func (t Todo) Completed() bool {
	return t.CompletedAt != nil
}

// SetCompleted stamps or clears the completion time.
func (t *Todo) SetCompleted(done bool, now time.Time) {
	if !done {
		t.CompletedAt = nil
		return
	}
	ts := now.UTC()
	t.CompletedAt = &ts
}

// Toggle flips completion and returns the new state.
func (t *Todo) Toggle(now time.Time) bool {
	t.SetCompleted(!t.Completed(), now)
	return t.Completed()
}

// Edit replaces the content after trimming.
func (t *Todo) Edit(content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrInvalidContent
	}
	t.Content = content
	return nil
}

// Move places the todo into another pane at a position.
func (t *Todo) Move(pane PaneID, position int) error {
	if !pane.Valid() {
		return ErrInvalidPane
	}
	if position < 0 {
		return ErrInvalidPosition
	}
	t.Pane = pane
	t.Position = position
	return nil
}

// SetWaitingFor records who or what the todo waits on; empty clears it.
func (t *Todo) SetWaitingFor(who string) {
	t.WaitingFor = strings.TrimSpace(who)
}

// TodosForPane filters todos to one pane ordered by position.
// Ties keep their input order.
func TodosForPane(todos []Todo, pane PaneID) []Todo {
	out := make([]Todo, 0, len(todos))
	for _, todo := range todos {
		if todo.Pane == pane {
			out = append(out, todo)
		}
	}
	slices.SortStableFunc(out, func(a, b Todo) int {
		return a.Position - b.Position
	})
	return out
}

// CountInPane returns how many todos belong to pane.
func CountInPane(todos []Todo, pane PaneID) int {
	n := 0
	for _, todo := range todos {
		if todo.Pane == pane {
			n++
		}
	}
	return n
}
