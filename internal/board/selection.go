package board

import (
	"github.com/evanschultz/sift/internal/domain"
)

// Selection tracks the active pane and the selected row of every pane.
type Selection struct {
	active domain.PaneID
	index  map[domain.PaneID]int
}

// NewSelection starts on today with every pane at row 0.
func NewSelection() *Selection {
	index := make(map[domain.PaneID]int, len(domain.Panes()))
	for _, pane := range domain.Panes() {
		index[pane.ID] = 0
	}
	return &Selection{active: domain.PaneToday, index: index}
}

// Active returns the active pane.
func (s *Selection) Active() domain.PaneID {
	return s.active
}

// Index returns the selected row of pane.
func (s *Selection) Index(pane domain.PaneID) int {
	return s.index[pane]
}

// Switch activates pane, keeping its remembered row.
func (s *Selection) Switch(pane domain.PaneID) bool {
	if !pane.Valid() {
		return false
	}
	s.active = pane
	return true
}

// MoveUp selects the previous row of the active pane; no-op at the top.
func (s *Selection) MoveUp() {
	s.index[s.active] = max(s.index[s.active]-1, 0)
}

// MoveDown selects the next row of the active pane; no-op at the last row.
func (s *Selection) MoveDown(count int) {
	s.index[s.active] = clampIndex(s.index[s.active]+1, count)
}

// Reconcile clamps every pane's row to its current todo count.
func (s *Selection) Reconcile(c *Collection) {
	for _, pane := range domain.Panes() {
		s.index[pane.ID] = clampIndex(s.index[pane.ID], c.Count(pane.ID))
	}
}

// Current returns the selected todo of the active pane.
func (s *Selection) Current(c *Collection) (domain.Todo, bool) {
	todos := c.ForPane(s.active)
	idx := s.index[s.active]
	if idx < 0 || idx >= len(todos) {
		return domain.Todo{}, false
	}
	return todos[idx], true
}

func clampIndex(idx, count int) int {
	if count <= 0 {
		return 0
	}
	return min(max(idx, 0), count-1)
}
