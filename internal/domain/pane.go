package domain

import "strings"

// PaneID identifies one of the fixed todo panes.
type PaneID string

// Pane identifiers.
const (
	PaneToday    PaneID = "today"
	PaneWork     PaneID = "work"
	PanePersonal PaneID = "personal"
	PaneWaiting  PaneID = "waiting"
)

// Pane describes a fixed pane: its identifier, display title, and number-key shortcut.
type Pane struct {
	ID       PaneID
	Title    string
	Shortcut string
}

// panes is the single definition of the pane table.
var panes = [...]Pane{
	{ID: PaneToday, Title: "TODAY", Shortcut: "1"},
	{ID: PaneWork, Title: "WORK", Shortcut: "2"},
	{ID: PanePersonal, Title: "PERSONAL", Shortcut: "3"},
	{ID: PaneWaiting, Title: "WAITING FOR", Shortcut: "4"},
}

// Panes returns the fixed pane table in display order.
func Panes() []Pane {
	out := make([]Pane, len(panes))
	copy(out, panes[:])
	return out
}

// Valid reports whether the pane id is one of the fixed panes.
func (p PaneID) Valid() bool {
	for _, pane := range panes {
		if pane.ID == p {
			return true
		}
	}
	return false
}

// Pane returns the table entry for the id.
func (p PaneID) Pane() (Pane, bool) {
	for _, pane := range panes {
		if pane.ID == p {
			return pane, true
		}
	}
	return Pane{}, false
}

// ParsePaneID normalizes and validates a pane identifier.
func ParsePaneID(raw string) (PaneID, error) {
	id := PaneID(strings.ToLower(strings.TrimSpace(raw)))
	if !id.Valid() {
		return "", ErrInvalidPane
	}
	return id, nil
}

// PaneByShortcut resolves a number-key shortcut to its pane.
func PaneByShortcut(shortcut string) (Pane, bool) {
	for _, pane := range panes {
		if pane.Shortcut == shortcut {
			return pane, true
		}
	}
	return Pane{}, false
}
