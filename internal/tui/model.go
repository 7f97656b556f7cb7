// Package tui is the terminal rendering of the chat panel. All state lives
// in widget.Widget; the model only maps keys to transitions and runs
// network calls as tea.Cmds.
package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/taskchat/taskchat/internal/auth"
	"github.com/taskchat/taskchat/internal/dispatch"
	"github.com/taskchat/taskchat/internal/observability"
	"github.com/taskchat/taskchat/internal/widget"
)

// Options configure Run.
type Options struct {
	// Expired is closed when the stored credentials have been invalidated.
	Expired <-chan struct{}
	Logger  *observability.Logger
	// StartOpen opens the panel immediately.
	StartOpen bool
}

type replyMsg struct {
	pending *widget.Pending
	out     dispatch.Outcome
}

type tasksLoadedMsg struct {
	err error
}

type sessionExpiredMsg struct{}

type model struct {
	ctx     context.Context
	w       *widget.Widget
	log     *observability.Logger
	expired <-chan struct{}

	input   textinput.Model
	spinner spinner.Model
	width   int
	height  int

	cursor  int
	loading bool
	status  string

	sessionExpired bool
	quitting       bool
}

// Run starts the panel and blocks until the user quits. It returns
// auth.ErrSessionExpired when the panel closed because of a 401.
func Run(ctx context.Context, w *widget.Widget, opts Options) error {
	m := newModel(ctx, w, opts)
	if opts.StartOpen {
		if err := w.Open(); err != nil {
			return err
		}
	}

	final, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil {
		return err
	}
	if fm, ok := final.(*model); ok && fm.sessionExpired {
		return auth.ErrSessionExpired
	}
	return nil
}

func newModel(ctx context.Context, w *widget.Widget, opts Options) *model {
	log := opts.Logger
	if log == nil {
		log = observability.Discard()
	}

	input := textinput.New()
	input.Prompt = "› "
	input.CharLimit = 2000
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = thinkingStyle

	m := &model{
		ctx:     ctx,
		w:       w,
		log:     log,
		expired: opts.Expired,
		input:   input,
		spinner: sp,
		width:   80,
	}
	m.refreshPlaceholder()
	return m
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForExpiry())
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	defer m.refreshPlaceholder()

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = max(10, msg.Width-4)
		return m, nil

	case spinner.TickMsg:
		if !m.w.InFlight() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case replyMsg:
		m.w.Complete(msg.pending, msg.out)
		return m, nil

	case tasksLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.status = "Could not load tasks: " + dispatch.Describe(msg.err)
		}
		m.resetCursor()
		return m, nil

	case sessionExpiredMsg:
		m.sessionExpired = true
		m.quitting = true
		return m, tea.Quit

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.quitting = true
			return m, tea.Quit
		}
		m.status = ""
		switch m.w.State() {
		case widget.StateClosed:
			return m.updateClosed(msg)
		case widget.StatePicker:
			return m.updatePicker(msg)
		default:
			return m.updateChat(msg)
		}
	}
	return m, nil
}

func (m *model) updateClosed(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "o", "enter":
		m.report(m.w.Open())
	case "q":
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *model) updatePicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	tasks := m.w.Snapshot().Tasks
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(tasks)-1 {
			m.cursor++
		}
	case "enter":
		if m.cursor < len(tasks) {
			m.report(m.w.SelectTask(m.ctx, tasks[m.cursor]))
		}
	case "esc":
		m.report(m.w.DismissPicker())
	case "ctrl+g":
		m.report(m.w.ReturnToAppGuide(m.ctx))
	case "ctrl+r":
		return m, m.loadTasks(true)
	}
	return m, nil
}

func (m *model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.report(m.w.Close())
		return m, nil
	case "ctrl+t":
		needsFetch, err := m.w.RequestTaskMode()
		if m.report(err) {
			return m, nil
		}
		m.resetCursor()
		if needsFetch {
			return m, m.loadTasks(false)
		}
		return m, nil
	case "ctrl+g":
		if m.w.State() == widget.StateTask {
			m.report(m.w.ReturnToAppGuide(m.ctx))
		}
		return m, nil
	case "ctrl+r":
		return m, m.loadTasks(true)
	case "enter":
		p, err := m.w.BeginSend(m.input.Value())
		if errors.Is(err, widget.ErrNoTaskSelected) {
			m.input.SetValue("")
			return m, nil
		}
		if m.report(err) || p == nil {
			return m, nil
		}
		m.input.SetValue("")
		return m, tea.Batch(m.send(p), m.spinner.Tick)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) send(p *widget.Pending) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return replyMsg{pending: p, out: p.Run(ctx)}
	}
}

func (m *model) loadTasks(refresh bool) tea.Cmd {
	if m.loading {
		return nil
	}
	m.loading = true
	ctx, w := m.ctx, m.w
	return func() tea.Msg {
		if refresh {
			return tasksLoadedMsg{err: w.RefreshTasks(ctx)}
		}
		return tasksLoadedMsg{err: w.LoadTasks(ctx)}
	}
}

func (m *model) waitForExpiry() tea.Cmd {
	if m.expired == nil {
		return nil
	}
	ch := m.expired
	return func() tea.Msg {
		<-ch
		return sessionExpiredMsg{}
	}
}

// resetCursor points the picker at the remembered task, or the first row.
func (m *model) resetCursor() {
	s := m.w.Snapshot()
	m.cursor = 0
	if s.PickerDefault == nil {
		return
	}
	for i, t := range s.Tasks {
		if t.ID == s.PickerDefault.ID {
			m.cursor = i
			return
		}
	}
}

func (m *model) refreshPlaceholder() {
	m.input.Placeholder = m.w.Snapshot().Placeholder
}

// report shows transition errors on the status line and reports whether
// there was one. Invalid transitions from stray keys are ignored.
func (m *model) report(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, widget.ErrBusy):
		m.status = "Waiting for the previous reply..."
	case errors.Is(err, widget.ErrInvalidTransition):
		m.log.Debug("ignored key", "error", err)
	default:
		m.status = strings.TrimSpace(err.Error())
	}
	return true
}
