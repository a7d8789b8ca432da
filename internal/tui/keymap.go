package tui

import "charm.land/bubbles/v2/key"

// keyMap holds every binding the dispatcher resolves.
type keyMap struct {
	quit       key.Binding
	forceQuit  key.Binding
	toggleHelp key.Binding
	closeModal key.Binding
	submit     key.Binding
	moveUp     key.Binding
	moveDown   key.Binding
	switchPane key.Binding
	quickAdd   key.Binding
	toggleDone key.Binding
	deleteTodo key.Binding
	editTodo   key.Binding
	yankTodo   key.Binding

	// navigate only appears in the footer.
	navigate key.Binding
}

// newKeyMap constructs the default bindings.
func newKeyMap() keyMap {
	return keyMap{
		quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		forceQuit:  key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
		toggleHelp: key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "for help")),
		closeModal: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "close overlay")),
		submit:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "save")),
		moveUp:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "select previous")),
		moveDown:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "select next")),
		switchPane: key.NewBinding(key.WithKeys("1", "2", "3", "4"), key.WithHelp("1-4", "switch pane")),
		quickAdd:   key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "to add")),
		toggleDone: key.NewBinding(key.WithKeys("space", " "), key.WithHelp("space", "toggle complete")),
		deleteTodo: key.NewBinding(key.WithKeys("d", "backspace"), key.WithHelp("d/backspace", "delete")),
		editTodo:   key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit")),
		yankTodo:   key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy text")),
		navigate:   key.NewBinding(key.WithKeys("up", "down"), key.WithHelp("↑↓", "navigate")),
	}
}

// ShortHelp returns the footer bindings.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.navigate, k.switchPane}
}

// FullHelp returns every advertised binding grouped for the help overlay.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.moveUp, k.moveDown, k.switchPane},
		{k.quickAdd, k.toggleDone, k.editTodo, k.deleteTodo, k.yankTodo},
		{k.toggleHelp, k.closeModal, k.quit},
	}
}

// headerHelp is the hint row shown next to the title.
type headerHelp struct {
	keys keyMap
}

// ShortHelp returns the header bindings.
func (h headerHelp) ShortHelp() []key.Binding {
	return []key.Binding{h.keys.quickAdd, h.keys.toggleHelp}
}

// FullHelp returns the header bindings as one group.
func (h headerHelp) FullHelp() [][]key.Binding {
	return [][]key.Binding{h.ShortHelp()}
}
