package tui

import (
	"context"
	"testing"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/taskchat/taskchat/internal/api"
	"github.com/taskchat/taskchat/internal/directory"
	"github.com/taskchat/taskchat/internal/dispatch"
	"github.com/taskchat/taskchat/internal/localstate"
	"github.com/taskchat/taskchat/internal/storage"
	"github.com/taskchat/taskchat/internal/widget"
)

type stubLister struct {
	tasks []api.Task
	calls int
}

func (s *stubLister) ListTasks(context.Context) ([]api.Task, error) {
	s.calls++
	return s.tasks, nil
}

type stubChatter struct{ reply string }

func (s stubChatter) ChatAppGuide(context.Context, string) ([]byte, error) {
	return []byte(`{"response":"` + s.reply + `"}`), nil
}

func (s stubChatter) ChatTask(context.Context, int, string) ([]byte, error) {
	return []byte(`{"response":"` + s.reply + `"}`), nil
}

func newTestModel(t *testing.T, tasks []api.Task, store storage.Store) (*model, *stubLister) {
	t.Helper()
	if store == nil {
		store = storage.NewMemoryStore()
	}
	ctx := context.Background()
	lister := &stubLister{tasks: tasks}
	w := widget.New(ctx, widget.Deps{
		Directory:  directory.New(lister, nil, nil, nil),
		Dispatcher: dispatch.New(stubChatter{reply: "hi"}, nil, nil, nil),
		Selection:  localstate.NewSelection(store),
		UserName:   "Ada",
	})
	return newModel(ctx, w, Options{}), lister
}

// feed delivers msg and every message its commands produce, skipping
// spinner ticks. It reports whether the model asked to quit.
func feed(m *model, msg tea.Msg) (quit bool) {
	queue := []tea.Msg{msg}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		switch next := next.(type) {
		case nil, spinner.TickMsg:
			continue
		case tea.QuitMsg:
			quit = true
			continue
		case tea.BatchMsg:
			for _, c := range next {
				if c != nil {
					queue = append(queue, c())
				}
			}
			continue
		}

		_, cmd := m.Update(next)
		if cmd != nil {
			queue = append(queue, cmd())
		}
	}
	return quit
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "ctrl+t":
		return tea.KeyMsg{Type: tea.KeyCtrlT}
	case "ctrl+g":
		return tea.KeyMsg{Type: tea.KeyCtrlG}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

var tasks = []api.Task{{ID: 1, Title: "Write report"}, {ID: 7, Title: "Ship release"}}

func TestModel_OpenFromClosed(t *testing.T) {
	m, _ := newTestModel(t, nil, nil)
	require.Contains(t, m.View(), "Chat closed")

	feed(m, key("o"))
	require.Equal(t, widget.StateAppGuide, m.w.State())
	require.Contains(t, m.View(), "App Assistant")
	require.Equal(t, "Ask about app features...", m.input.Placeholder)
}

func TestModel_SendShowsReply(t *testing.T) {
	m, _ := newTestModel(t, nil, nil)
	feed(m, key("o"))

	m.input.SetValue("hello")
	feed(m, key("enter"))

	msgs := m.w.Messages()
	require.Len(t, msgs, 3)
	require.Equal(t, "hello", msgs[1].Text)
	require.Equal(t, "hi", msgs[2].Text)
	require.Empty(t, m.input.Value())
	require.False(t, m.w.InFlight())
	require.Contains(t, m.View(), "hi")
}

func TestModel_BusyShowsStatus(t *testing.T) {
	m, _ := newTestModel(t, nil, nil)
	feed(m, key("o"))
	_, err := m.w.BeginSend("first")
	require.NoError(t, err)

	m.input.SetValue("second")
	feed(m, key("enter"))
	require.Equal(t, "Waiting for the previous reply...", m.status)
	require.Equal(t, "second", m.input.Value())
	require.Len(t, m.w.Messages(), 2)
}

func TestModel_PickTask(t *testing.T) {
	m, lister := newTestModel(t, tasks, nil)
	feed(m, key("o"))

	feed(m, key("ctrl+t"))
	require.Equal(t, widget.StatePicker, m.w.State())
	require.Equal(t, 1, lister.calls)
	view := m.View()
	require.Contains(t, view, "Write report")
	require.Contains(t, view, "Ship release")

	feed(m, key("down"))
	feed(m, key("enter"))
	s := m.w.Snapshot()
	require.Equal(t, widget.StateTask, s.State)
	require.Equal(t, 7, s.SelectedTask.ID)
	require.Contains(t, m.View(), "Task Assistant — Ship release")
	require.Equal(t, "Type message about this task...", m.input.Placeholder)

	feed(m, key("ctrl+g"))
	require.Equal(t, widget.StateAppGuide, m.w.State())
}

func TestModel_PickerStartsAtLastUsed(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, localstate.NewSelection(store).Save(context.Background(), 7))

	m, _ := newTestModel(t, tasks, store)
	feed(m, key("o"))
	feed(m, key("ctrl+t"))

	require.Equal(t, 1, m.cursor)
	require.Contains(t, m.View(), "(last used)")
	require.Nil(t, m.w.Snapshot().SelectedTask)
}

func TestModel_EmptyPicker(t *testing.T) {
	m, _ := newTestModel(t, nil, nil)
	feed(m, key("o"))
	feed(m, key("ctrl+t"))

	require.Contains(t, m.View(), widget.NoTasksNotice)
	feed(m, key("enter"))
	require.Equal(t, widget.StatePicker, m.w.State())

	feed(m, key("esc"))
	require.Equal(t, widget.StateAppGuide, m.w.State())
}

func TestModel_CloseAndQuit(t *testing.T) {
	m, _ := newTestModel(t, nil, nil)
	feed(m, key("o"))

	require.False(t, feed(m, key("esc")))
	require.Equal(t, widget.StateClosed, m.w.State())
	require.True(t, feed(m, key("q")))
}

func TestModel_CtrlCQuits(t *testing.T) {
	m, _ := newTestModel(t, nil, nil)
	feed(m, key("o"))
	require.True(t, feed(m, key("ctrl+c")))
	require.Empty(t, m.View())
}

func TestModel_SessionExpired(t *testing.T) {
	m, _ := newTestModel(t, nil, nil)
	ch := make(chan struct{})
	m.expired = ch
	close(ch)

	msg := m.waitForExpiry()()
	require.True(t, feed(m, msg))
	require.True(t, m.sessionExpired)
}
