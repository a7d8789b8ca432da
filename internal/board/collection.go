// Package board holds the client-side todo collection and pane selection state.
//
// Mutations are applied locally first. Each one returns a Change that the caller
// either confirms with the stored result or reverts after a store failure. A
// confirm only takes effect while it is still the latest local change to its
// todo, so a slow response never overwrites newer local intent. A failed toggle
// or edit that is overtaken by a newer pending change leaves its rejected value
// behind, and later reverts of that todo resolve through it so the collection
// never keeps a value the store refused.
package board

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/evanschultz/sift/internal/domain"
)

// provisionalPrefix marks ids assigned locally before the store has accepted a todo.
const provisionalPrefix = "local-"

var (
	// ErrUnknownTodo reports a mutation aimed at a todo not in the collection.
	ErrUnknownTodo = errors.New("todo not in collection")
	// ErrProvisional reports a mutation aimed at a todo the store has not stored yet.
	ErrProvisional = errors.New("todo not yet stored")
)

// IsProvisional reports whether id was assigned locally.
func IsProvisional(id string) bool {
	return strings.HasPrefix(id, provisionalPrefix)
}

// ChangeKind identifies the local mutation a Change records.
type ChangeKind string

// ChangeKind values.
const (
	ChangeAdd    ChangeKind = "add"
	ChangeToggle ChangeKind = "toggle"
	ChangeEdit   ChangeKind = "edit"
	ChangeDelete ChangeKind = "delete"
)

// Change records one optimistic mutation so it can be confirmed or reverted.
type Change struct {
	Kind ChangeKind
	ID   string
	Rev  uint64
	// Before is the todo prior to the mutation; nil for an add.
	Before *domain.Todo
	// After is the todo the mutation produced; set for toggle and edit.
	After *domain.Todo
	// Index is the slot the todo occupied, used to reinsert a reverted delete.
	Index int
}

// Collection is the in-memory set of the signed-in user's todos.
type Collection struct {
	todos    []domain.Todo
	revs     map[string]uint64
	nextRev  uint64
	newID    func() string
	rejected map[string]*rejectedValues
}

// rejectedValues maps a value a failed change wrote to the value it replaced.
type rejectedValues struct {
	content    map[string]string
	completion map[string]*time.Time
}

// NewCollection constructs an empty collection.
func NewCollection() *Collection {
	return &Collection{
		revs:     map[string]uint64{},
		newID:    uuid.NewString,
		rejected: map[string]*rejectedValues{},
	}
}

// Load replaces the collection with a full fetch result.
func (c *Collection) Load(todos []domain.Todo) {
	c.todos = slices.Clone(todos)
	clear(c.revs)
	clear(c.rejected)
}

// Len returns the number of todos held.
func (c *Collection) Len() int {
	return len(c.todos)
}

// All returns a copy of every todo in collection order.
func (c *Collection) All() []domain.Todo {
	return slices.Clone(c.todos)
}

// ForPane returns the pane's todos ordered by position.
func (c *Collection) ForPane(pane domain.PaneID) []domain.Todo {
	return domain.TodosForPane(c.todos, pane)
}

// Count returns the number of todos in pane.
func (c *Collection) Count(pane domain.PaneID) int {
	return domain.CountInPane(c.todos, pane)
}

// Get returns the todo with id.
func (c *Collection) Get(id string) (domain.Todo, bool) {
	idx := c.indexOf(id)
	if idx < 0 {
		return domain.Todo{}, false
	}
	return c.todos[idx], true
}

// Add appends a provisional todo to today at the end of the pane.
// Content that is empty after trimming is rejected with domain.ErrInvalidContent.
func (c *Collection) Add(userID, content string, now time.Time) (domain.Todo, Change, error) {
	todo, err := domain.NewTodo(domain.TodoInput{
		ID:       provisionalPrefix + c.newID(),
		UserID:   userID,
		Content:  content,
		Pane:     domain.PaneToday,
		Position: c.Count(domain.PaneToday),
	}, now)
	if err != nil {
		return domain.Todo{}, Change{}, err
	}
	c.todos = append(c.todos, todo)
	return todo, c.record(ChangeAdd, todo.ID, nil, len(c.todos)-1), nil
}

// Toggle flips completion of the todo locally.
func (c *Collection) Toggle(id string, now time.Time) (domain.Todo, Change, error) {
	idx, err := c.mutable(id)
	if err != nil {
		return domain.Todo{}, Change{}, err
	}
	before := c.todos[idx]
	c.todos[idx].Toggle(now)
	after := c.todos[idx]
	ch := c.record(ChangeToggle, id, &before, idx)
	ch.After = &after
	return after, ch, nil
}

// Edit replaces the todo's content locally.
func (c *Collection) Edit(id, content string) (domain.Todo, Change, error) {
	idx, err := c.mutable(id)
	if err != nil {
		return domain.Todo{}, Change{}, err
	}
	before := c.todos[idx]
	if err := c.todos[idx].Edit(content); err != nil {
		return domain.Todo{}, Change{}, err
	}
	after := c.todos[idx]
	ch := c.record(ChangeEdit, id, &before, idx)
	ch.After = &after
	return after, ch, nil
}

// Delete removes the todo locally.
func (c *Collection) Delete(id string) (Change, error) {
	idx, err := c.mutable(id)
	if err != nil {
		return Change{}, err
	}
	before := c.todos[idx]
	c.todos = slices.Delete(c.todos, idx, idx+1)
	return c.record(ChangeDelete, id, &before, idx), nil
}

// Confirm reconciles a change with the store's result. For an add the provisional
// todo is replaced by stored; for toggle and edit the local copy takes the stored
// values. It reports false when the change is stale or its todo is gone.
func (c *Collection) Confirm(ch Change, stored domain.Todo) bool {
	if !c.current(ch) {
		return false
	}
	delete(c.revs, ch.ID)
	delete(c.rejected, ch.ID)
	if ch.Kind == ChangeDelete {
		return true
	}
	idx := c.indexOf(ch.ID)
	if idx < 0 {
		return false
	}
	c.todos[idx] = stored
	return true
}

// Revert undoes a change after the store rejected it and reports whether local
// state changed. Adds and deletes revert only while they are the latest change to
// their todo. A toggle or edit restores just the field it wrote, and only when
// that field still holds the written value; one overtaken by a newer pending
// change is remembered instead and applied when that change settles.
func (c *Collection) Revert(ch Change) bool {
	switch ch.Kind {
	case ChangeAdd, ChangeDelete:
		return c.revertPresence(ch)
	}
	if ch.Before == nil || ch.After == nil {
		return false
	}
	if c.newerPending(ch) {
		c.remember(ch)
		return false
	}
	if c.current(ch) {
		delete(c.revs, ch.ID)
	}
	idx := c.indexOf(ch.ID)
	if idx < 0 {
		return false
	}
	cur := &c.todos[idx]
	switch ch.Kind {
	case ChangeToggle:
		if !sameCompletion(cur.CompletedAt, ch.After.CompletedAt) {
			return false
		}
		cur.CompletedAt = ch.Before.CompletedAt
	case ChangeEdit:
		if cur.Content != ch.After.Content {
			return false
		}
		cur.Content = ch.Before.Content
	default:
		return false
	}
	*cur = c.unreject(*cur)
	return true
}

// revertPresence removes a failed add or reinserts a failed delete.
func (c *Collection) revertPresence(ch Change) bool {
	if !c.current(ch) {
		return false
	}
	delete(c.revs, ch.ID)
	idx := c.indexOf(ch.ID)
	if ch.Kind == ChangeAdd {
		if idx < 0 {
			return false
		}
		c.todos = slices.Delete(c.todos, idx, idx+1)
		return true
	}
	if idx >= 0 || ch.Before == nil {
		return false
	}
	at := min(max(ch.Index, 0), len(c.todos))
	c.todos = slices.Insert(c.todos, at, c.unreject(*ch.Before))
	return true
}

// remember records the value a failed change wrote so later restores skip it.
func (c *Collection) remember(ch Change) {
	rv := c.rejected[ch.ID]
	if rv == nil {
		rv = &rejectedValues{content: map[string]string{}, completion: map[string]*time.Time{}}
		c.rejected[ch.ID] = rv
	}
	switch ch.Kind {
	case ChangeToggle:
		rv.completion[completionKey(ch.After.CompletedAt)] = ch.Before.CompletedAt
	case ChangeEdit:
		rv.content[ch.After.Content] = ch.Before.Content
	}
}

// unreject walks t's fields back past every value a failed change wrote.
func (c *Collection) unreject(t domain.Todo) domain.Todo {
	rv := c.rejected[t.ID]
	if rv == nil {
		return t
	}
	for range len(rv.content) {
		prev, ok := rv.content[t.Content]
		if !ok || prev == t.Content {
			break
		}
		t.Content = prev
	}
	for range len(rv.completion) {
		prev, ok := rv.completion[completionKey(t.CompletedAt)]
		if !ok || sameCompletion(prev, t.CompletedAt) {
			break
		}
		t.CompletedAt = prev
	}
	return t
}

func (c *Collection) newerPending(ch Change) bool {
	rev, ok := c.revs[ch.ID]
	return ok && rev > ch.Rev
}

func completionKey(at *time.Time) string {
	if at == nil {
		return ""
	}
	return at.UTC().Format(time.RFC3339Nano)
}

func sameCompletion(a, b *time.Time) bool {
	return completionKey(a) == completionKey(b)
}

func (c *Collection) record(kind ChangeKind, id string, before *domain.Todo, idx int) Change {
	c.nextRev++
	c.revs[id] = c.nextRev
	return Change{Kind: kind, ID: id, Rev: c.nextRev, Before: before, Index: idx}
}

func (c *Collection) current(ch Change) bool {
	rev, ok := c.revs[ch.ID]
	return ok && rev == ch.Rev
}

func (c *Collection) mutable(id string) (int, error) {
	idx := c.indexOf(id)
	if idx < 0 {
		return -1, ErrUnknownTodo
	}
	if IsProvisional(id) {
		return -1, ErrProvisional
	}
	return idx, nil
}

func (c *Collection) indexOf(id string) int {
	return slices.IndexFunc(c.todos, func(t domain.Todo) bool {
		return t.ID == id
	})
}
