// Package tui renders the four-pane todo board and dispatches its keyboard shortcuts.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/atotto/clipboard"

	"github.com/evanschultz/sift/internal/app"
	"github.com/evanschultz/sift/internal/board"
	"github.com/evanschultz/sift/internal/domain"
)

// inputMode is the modal state the dispatcher keys on.
type inputMode int

// modeBoard and related constants define the modal states.
const (
	modeBoard inputMode = iota
	modeQuickAdd
	modeEdit
	modeHelp
)

// String returns the mode name used in diagnostics.
func (m inputMode) String() string {
	switch m {
	case modeQuickAdd:
		return "quick-add"
	case modeEdit:
		return "edit"
	case modeHelp:
		return "help"
	default:
		return "board"
	}
}

// defaultWidth is used until the terminal reports its size.
const defaultWidth = 100

// contentLimit bounds prompt input length.
const contentLimit = 500

// quickAddPlaceholder is shown in the empty quick-add prompt.
const quickAddPlaceholder = "What needs to be done?"

// helpMarkdown is the shortcut table shown by the help overlay.
const helpMarkdown = `
| Key | Action |
| --- | --- |
| ↑ / ↓ | move the selection |
| 1-4 | switch pane |
| / | add a todo to today |
| space | toggle complete |
| e | edit the selected todo |
| d / backspace | delete the selected todo |
| y | copy the selected todo |
| ? | toggle this help |
| esc | close the overlay |
| q / ctrl+c | quit |
`

// Model is the board program state.
type Model struct {
	repo   app.TodoRepository
	userID string

	loaded bool
	width  int
	height int
	status string

	help     help.Model
	keys     keyMap
	dispatch dispatchTable
	markdown *markdownRenderer

	todos     *board.Collection
	selection *board.Selection

	mode      inputMode
	input     textinput.Model
	editingID string

	logger         Logger
	clipboard      ClipboardFunc
	requestTimeout time.Duration
	now            func() time.Time
}

// loadedMsg carries the start-up fetch result.
type loadedMsg struct {
	todos []domain.Todo
	err   error
}

// storedMsg carries the store's answer to one optimistic change.
type storedMsg struct {
	change board.Change
	todo   domain.Todo
	err    error
}

// copiedMsg reports the outcome of a clipboard write.
type copiedMsg struct {
	err error
}

// NewModel constructs a board over repo.
func NewModel(repo app.TodoRepository, opts ...Option) Model {
	h := help.New()
	h.ShowAll = false
	h.ShortSeparator = "  "
	m := Model{
		repo:           repo,
		userID:         "me",
		help:           h,
		keys:           newKeyMap(),
		markdown:       &markdownRenderer{},
		todos:          board.NewCollection(),
		selection:      board.NewSelection(),
		input:          newModalInput("", quickAddPlaceholder, "", contentLimit),
		logger:         nopLogger{},
		clipboard:      clipboard.WriteAll,
		requestTimeout: defaultRequestTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	m.dispatch = newDispatchTable(m.keys)
	return m
}

// Init starts the full fetch.
func (m Model) Init() tea.Cmd {
	return m.loadTodos
}

// Update applies one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case loadedMsg:
		m.loaded = true
		if msg.err != nil {
			m.logger.Error("load todos failed", "err", msg.err)
			return m, nil
		}
		m.todos.Load(msg.todos)
		m.selection.Reconcile(m.todos)
		m.logger.Info("todos loaded", "count", len(msg.todos))
		return m, nil

	case storedMsg:
		return m.applyStored(msg), nil

	case copiedMsg:
		if msg.err != nil {
			m.logger.Warn("copy to clipboard failed", "err", msg.err)
			return m, nil
		}
		m.status = "copied"
		return m, nil

	case tea.KeyPressMsg:
		m.status = ""
		if !m.loaded && !key.Matches(msg, m.keys.quit) {
			return m, nil
		}
		return m.dispatch.run(m, msg)

	default:
		if m.mode == modeQuickAdd || m.mode == modeEdit {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
		return m, nil
	}
}

// applyStored confirms or reverts one change and re-derives the selection.
func (m Model) applyStored(msg storedMsg) Model {
	ch := msg.change
	switch {
	case msg.err != nil:
		reverted := m.todos.Revert(ch)
		m.logger.Error("store rejected change", "kind", ch.Kind, "id", ch.ID, "reverted", reverted, "err", msg.err)
	case !m.todos.Confirm(ch, msg.todo):
		m.logger.Debug("stale store result dropped", "kind", ch.Kind, "id", ch.ID)
	}
	m.selection.Reconcile(m.todos)
	return m
}

// loadTodos fetches every todo once.
func (m Model) loadTodos() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), m.requestTimeout)
	defer cancel()
	todos, err := m.repo.ListTodos(ctx)
	return loadedMsg{todos: todos, err: err}
}

// storeCmd runs one store call for change under the request timeout.
func (m Model) storeCmd(change board.Change, call func(context.Context) (domain.Todo, error)) tea.Cmd {
	timeout := m.requestTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		todo, err := call(ctx)
		return storedMsg{change: change, todo: todo, err: err}
	}
}

// action runs one dispatched key against the model.
type action func(Model, tea.KeyPressMsg) (Model, tea.Cmd)

// route binds a key to its action.
type route struct {
	binding key.Binding
	run     action
}

// dispatchTable maps each modal state to its routes. Keys without a route go to
// the mode's fallback, or are dropped when the mode has none.
type dispatchTable struct {
	routes   map[inputMode][]route
	fallback map[inputMode]action
}

// newDispatchTable constructs the dispatcher for k.
func newDispatchTable(k keyMap) dispatchTable {
	return dispatchTable{
		routes: map[inputMode][]route{
			modeBoard: {
				{k.quit, Model.quit},
				{k.moveUp, Model.moveUp},
				{k.moveDown, Model.moveDown},
				{k.switchPane, Model.switchPane},
				{k.quickAdd, Model.openQuickAdd},
				{k.toggleHelp, Model.openHelp},
				{k.toggleDone, Model.toggleSelected},
				{k.deleteTodo, Model.deleteSelected},
				{k.editTodo, Model.openEdit},
				{k.yankTodo, Model.yankSelected},
				{k.closeModal, Model.closeOverlay},
			},
			modeHelp: {
				{k.forceQuit, Model.quit},
				{k.toggleHelp, Model.closeOverlay},
				{k.closeModal, Model.closeOverlay},
			},
			modeQuickAdd: {
				{k.forceQuit, Model.quit},
				{k.submit, Model.submitQuickAdd},
				{k.closeModal, Model.closeOverlay},
			},
			modeEdit: {
				{k.forceQuit, Model.quit},
				{k.submit, Model.submitEdit},
				{k.closeModal, Model.closeOverlay},
			},
		},
		fallback: map[inputMode]action{
			modeQuickAdd: Model.typeInput,
			modeEdit:     Model.typeInput,
		},
	}
}

// run resolves msg in the model's current mode.
func (d dispatchTable) run(m Model, msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	for _, r := range d.routes[m.mode] {
		if key.Matches(msg, r.binding) {
			return r.run(m, msg)
		}
	}
	if fallback, ok := d.fallback[m.mode]; ok {
		return fallback(m, msg)
	}
	return m, nil
}

func (m Model) quit(tea.KeyPressMsg) (Model, tea.Cmd) {
	return m, tea.Quit
}

func (m Model) moveUp(tea.KeyPressMsg) (Model, tea.Cmd) {
	m.selection.MoveUp()
	return m, nil
}

func (m Model) moveDown(tea.KeyPressMsg) (Model, tea.Cmd) {
	m.selection.MoveDown(m.todos.Count(m.selection.Active()))
	return m, nil
}

func (m Model) switchPane(msg tea.KeyPressMsg) (Model, tea.Cmd) {
	if pane, ok := domain.PaneByShortcut(msg.String()); ok {
		m.selection.Switch(pane.ID)
	}
	return m, nil
}

func (m Model) openHelp(tea.KeyPressMsg) (Model, tea.Cmd) {
	m.mode = modeHelp
	return m, nil
}

// openQuickAdd shows an empty, focused prompt.
func (m Model) openQuickAdd(tea.KeyPressMsg) (Model, tea.Cmd) {
	m.mode = modeQuickAdd
	m.editingID = ""
	m.input = newModalInput("", quickAddPlaceholder, "", contentLimit)
	return m, m.input.Focus()
}

// openEdit shows the prompt pre-filled with the selected todo.
func (m Model) openEdit(tea.KeyPressMsg) (Model, tea.Cmd) {
	todo, ok := m.selection.Current(m.todos)
	if !ok {
		return m, nil
	}
	if board.IsProvisional(todo.ID) {
		m.logger.Warn("edit refused", "id", todo.ID, "err", board.ErrProvisional)
		return m, nil
	}
	m.mode = modeEdit
	m.editingID = todo.ID
	m.input = newModalInput("", "", todo.Content, contentLimit)
	m.input.CursorEnd()
	return m, m.input.Focus()
}

// closeOverlay returns to the board and clears the prompt.
func (m Model) closeOverlay(tea.KeyPressMsg) (Model, tea.Cmd) {
	m.mode = modeBoard
	m.editingID = ""
	m.input.Reset()
	m.input.Blur()
	return m, nil
}

func (m Model) typeInput(msg tea.KeyPressMsg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submitQuickAdd adds the typed todo to today. Blank input keeps the prompt open.
func (m Model) submitQuickAdd(msg tea.KeyPressMsg) (Model, tea.Cmd) {
	content := strings.TrimSpace(m.input.Value())
	if content == "" {
		return m, nil
	}
	todo, change, err := m.todos.Add(m.userID, content, m.now())
	if err != nil {
		m.logger.Warn("add refused", "err", err)
		return m, nil
	}
	m, _ = m.closeOverlay(msg)
	m.selection.Reconcile(m.todos)
	repo := m.repo
	return m, m.storeCmd(change, func(ctx context.Context) (domain.Todo, error) {
		return repo.AddTodo(ctx, app.AddTodoInput{
			Content:  todo.Content,
			Pane:     todo.Pane,
			Position: todo.Position,
		})
	})
}

// submitEdit replaces the edited todo's content. Blank or unchanged input closes the prompt.
func (m Model) submitEdit(msg tea.KeyPressMsg) (Model, tea.Cmd) {
	id := m.editingID
	content := strings.TrimSpace(m.input.Value())
	m, _ = m.closeOverlay(msg)
	current, ok := m.todos.Get(id)
	if !ok || content == "" || content == current.Content {
		return m, nil
	}
	todo, change, err := m.todos.Edit(id, content)
	if err != nil {
		m.logger.Warn("edit refused", "id", id, "err", err)
		return m, nil
	}
	repo := m.repo
	return m, m.storeCmd(change, func(ctx context.Context) (domain.Todo, error) {
		return repo.EditTodo(ctx, id, todo.Content)
	})
}

// toggleSelected flips completion of the selected todo.
func (m Model) toggleSelected(tea.KeyPressMsg) (Model, tea.Cmd) {
	current, ok := m.selection.Current(m.todos)
	if !ok {
		return m, nil
	}
	todo, change, err := m.todos.Toggle(current.ID, m.now())
	if err != nil {
		m.logRefusal("toggle", current.ID, err)
		return m, nil
	}
	repo := m.repo
	done := todo.Completed()
	return m, m.storeCmd(change, func(ctx context.Context) (domain.Todo, error) {
		return repo.SetTodoCompleted(ctx, todo.ID, done)
	})
}

// deleteSelected removes the selected todo.
func (m Model) deleteSelected(tea.KeyPressMsg) (Model, tea.Cmd) {
	current, ok := m.selection.Current(m.todos)
	if !ok {
		return m, nil
	}
	change, err := m.todos.Delete(current.ID)
	if err != nil {
		m.logRefusal("delete", current.ID, err)
		return m, nil
	}
	m.selection.Reconcile(m.todos)
	repo := m.repo
	id := current.ID
	return m, m.storeCmd(change, func(ctx context.Context) (domain.Todo, error) {
		return domain.Todo{}, repo.DeleteTodo(ctx, id)
	})
}

// yankSelected copies the selected todo's content.
func (m Model) yankSelected(tea.KeyPressMsg) (Model, tea.Cmd) {
	current, ok := m.selection.Current(m.todos)
	if !ok {
		return m, nil
	}
	write := m.clipboard
	content := current.Content
	return m, func() tea.Msg {
		return copiedMsg{err: write(content)}
	}
}

func (m Model) logRefusal(op, id string, err error) {
	if errors.Is(err, board.ErrProvisional) {
		m.logger.Warn(op+" refused", "id", id, "err", err)
		return
	}
	m.logger.Error(op+" failed", "id", id, "err", err)
}

// View renders the board and any open overlay.
func (m Model) View() tea.View {
	if !m.loaded {
		v := tea.NewView("loading...")
		v.AltScreen = true
		return v
	}
	width := m.width
	if width <= 0 {
		width = defaultWidth
	}
	st := newStyles()

	header := st.title.Render("Sift") + "  " + m.helpLine(headerHelp{keys: m.keys}, width)
	footer := m.helpLine(m.keys, width)
	if m.status != "" {
		footer += "  " + st.status.Render(m.status)
	}

	todayRows, bottomRows := 0, 0
	if m.height > 0 {
		avail := m.height - lipgloss.Height(header) - lipgloss.Height(footer)
		todayRows = max(1, avail/2-3)
		bottomRows = max(1, avail-(todayRows+3)-3)
	}
	content := strings.Join([]string{header, m.renderBoard(st, width, todayRows, bottomRows), footer}, "\n")

	if overlay := m.renderModeOverlay(st, width); overlay != "" {
		height := lipgloss.Height(content)
		if m.height > 0 {
			height = m.height
		}
		content = overlayOnContent(content, overlay, width, height)
	}
	v := tea.NewView(content)
	v.AltScreen = true
	return v
}

// helpLine renders a single help row.
func (m Model) helpLine(keys help.KeyMap, width int) string {
	hb := m.help
	hb.ShowAll = false
	hb.SetWidth(max(0, width-2))
	return hb.View(keys)
}

// styles groups the board's lipgloss styles.
type styles struct {
	title    lipgloss.Style
	status   lipgloss.Style
	pane     lipgloss.Style
	paneHead lipgloss.Style
	count    lipgloss.Style
	empty    lipgloss.Style
	row      lipgloss.Style
	selected lipgloss.Style
	done     lipgloss.Style
	pending  lipgloss.Style
	modal    lipgloss.Style
	accent   lipgloss.Style
	muted    lipgloss.Style
}

func newStyles() styles {
	accent := lipgloss.Color("62")
	muted := lipgloss.Color("241")
	dim := lipgloss.Color("239")
	return styles{
		title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252")),
		status:   lipgloss.NewStyle().Foreground(dim),
		pane:     lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(dim).Padding(0, 1),
		paneHead: lipgloss.NewStyle().Bold(true).Foreground(accent),
		count:    lipgloss.NewStyle().Foreground(muted),
		empty:    lipgloss.NewStyle().Foreground(muted).Italic(true),
		row:      lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		selected: lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true),
		done:     lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Faint(true).Strikethrough(true),
		pending:  lipgloss.NewStyle().Foreground(muted).Italic(true),
		modal:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(dim).Padding(0, 1),
		accent:   lipgloss.NewStyle().Bold(true).Foreground(accent),
		muted:    lipgloss.NewStyle().Foreground(muted),
	}
}

// renderBoard lays out today on top and the other panes side by side below it.
// Zero row limits render every todo.
func (m Model) renderBoard(st styles, width, todayRows, bottomRows int) string {
	panes := domain.Panes()
	top := m.renderPane(st, panes[0], width, todayRows)

	rest := panes[1:]
	gap := 1
	colWidth := max(12, (width-gap*(len(rest)-1))/len(rest))
	cols := make([]string, 0, len(rest))
	for i, pane := range rest {
		w := colWidth
		if i == len(rest)-1 {
			w = max(12, width-(colWidth+gap)*(len(rest)-1))
		}
		col := m.renderPane(st, pane, w, bottomRows)
		if i < len(rest)-1 {
			col = lipgloss.NewStyle().MarginRight(gap).Render(col)
		}
		cols = append(cols, col)
	}
	return top + "\n" + lipgloss.JoinHorizontal(lipgloss.Top, cols...)
}

// renderPane renders one bordered pane at width, showing at most rows todos.
func (m Model) renderPane(st styles, pane domain.Pane, width, rows int) string {
	todos := m.todos.ForPane(pane.ID)
	active := m.selection.Active() == pane.ID
	selected := m.selection.Index(pane.ID)
	inner := max(1, width-4)

	lines := []string{
		st.paneHead.Render(fmt.Sprintf("[%s] %s", pane.Shortcut, pane.Title)) + " " + st.count.Render(fmt.Sprintf("(%d)", len(todos))),
	}
	if len(todos) == 0 {
		lines = append(lines, st.empty.Render("No items"))
	} else {
		start, end := visibleRange(len(todos), selected, rows)
		for i := start; i < end; i++ {
			lines = append(lines, renderRow(st, todos[i], active && i == selected, inner))
		}
	}
	body := strings.Join(lines, "\n")
	if rows > 0 {
		body = fitLines(body, rows+1)
	}

	style := st.pane.Width(width)
	if active {
		style = style.BorderForeground(lipgloss.Color("62"))
	}
	return style.Render(body)
}

// renderRow renders one todo line with its selection marker.
func renderRow(st styles, todo domain.Todo, selected bool, width int) string {
	marker := "  "
	if selected {
		marker = "› "
	}
	text := todo.Content
	if todo.WaitingFor != "" {
		text += " (waiting for " + todo.WaitingFor + ")"
	}
	text = truncate(text, max(1, width-2))

	style := st.row
	switch {
	case todo.Completed():
		style = st.done
	case board.IsProvisional(todo.ID):
		style = st.pending
	}
	if selected {
		style = style.Inherit(st.selected).Foreground(lipgloss.Color("212"))
	}
	return marker + style.Render(text)
}

// visibleRange returns the window of rows to draw so that selected stays visible.
func visibleRange(count, selected, limit int) (int, int) {
	if limit <= 0 || count <= limit {
		return 0, count
	}
	start := clamp(selected-limit/2, 0, count-limit)
	return start, start + limit
}

// renderModeOverlay renders the overlay for the active modal state.
func (m Model) renderModeOverlay(st styles, width int) string {
	boxWidth := clamp(width-8, 30, 72)
	switch m.mode {
	case modeQuickAdd, modeEdit:
		title := "Add to today"
		if m.mode == modeEdit {
			title = "Edit todo"
		}
		in := m.input
		in.SetWidth(max(10, boxWidth-6-lipgloss.Width(in.Prompt)))
		lines := []string{
			st.accent.Render(title),
			in.View(),
			st.muted.Render("enter to save  esc to cancel"),
		}
		return st.modal.Width(boxWidth).Render(strings.Join(lines, "\n"))
	case modeHelp:
		return m.renderHelpOverlay(st, boxWidth)
	default:
		return ""
	}
}

// renderHelpOverlay renders the shortcut table.
func (m Model) renderHelpOverlay(st styles, width int) string {
	lines := []string{
		st.accent.Render("Keyboard shortcuts"),
		m.markdown.render(helpMarkdown, width-4),
		st.muted.Render("press ? or esc to close"),
	}
	return st.modal.Width(width).Render(strings.Join(lines, "\n"))
}

// newModalInput constructs modal input.
func newModalInput(prompt, placeholder, value string, limit int) textinput.Model {
	in := textinput.New()
	in.Prompt = prompt
	in.Placeholder = placeholder
	in.CharLimit = limit
	if value != "" {
		in.SetValue(value)
	}
	return in
}

// clamp clamps v into [minV, maxV].
func clamp(v, minV, maxV int) int {
	if maxV < minV {
		return minV
	}
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}

// fitLines pads or cuts content to exactly maxLines lines.
func fitLines(content string, maxLines int) string {
	if maxLines <= 0 {
		return ""
	}
	lines := strings.Split(content, "\n")
	switch {
	case len(lines) > maxLines:
		if maxLines == 1 {
			lines = []string{"…"}
		} else {
			lines = append(lines[:maxLines-1], "…")
		}
	case len(lines) < maxLines:
		padding := make([]string, maxLines-len(lines))
		lines = append(lines, padding...)
	}
	return strings.Join(lines, "\n")
}

// overlayOnContent centers overlay above base.
func overlayOnContent(base, overlay string, width, height int) string {
	if width <= 0 || height <= 0 {
		if strings.TrimSpace(overlay) == "" {
			return base
		}
		return overlay + "\n\n" + base
	}

	base = fitLines(base, height)
	canvas := lipgloss.NewCanvas(width, height)
	baseLayer := lipgloss.NewLayer(base).X(0).Y(0).Z(0)
	centeredOverlay := lipgloss.Place(
		width,
		height,
		lipgloss.Center,
		lipgloss.Center,
		overlay,
	)
	overlayLayer := lipgloss.NewLayer(centeredOverlay).X(0).Y(0).Z(10)

	canvas.Compose(baseLayer)
	canvas.Compose(overlayLayer)
	return canvas.Render()
}

// truncate shortens s to max runes, marking the cut with an ellipsis.
func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= max {
		return s
	}
	if max <= 1 {
		return string(rs[:max])
	}
	return string(rs[:max-1]) + "…"
}
