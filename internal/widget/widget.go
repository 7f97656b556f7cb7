// Package widget is the chat panel's state machine.
//
// It owns the panel-open flag, the current mode, the selected task, the task
// picker flag, the message log and the in-flight flag. Every transition names
// its side effects directly: greeting resets, selection persistence, task
// fetches. A Widget is safe for concurrent use; network calls run without the
// lock held.
//
// States:
//
//	CLOSED            panel hidden
//	OPEN_APP_GUIDE    talking to the app-guide assistant
//	OPEN_TASK_PICKER  choosing a task (mode is TASK)
//	OPEN_TASK         talking to the assistant of the selected task
package widget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/taskchat/taskchat/internal/api"
	"github.com/taskchat/taskchat/internal/conversation"
	"github.com/taskchat/taskchat/internal/dispatch"
	"github.com/taskchat/taskchat/internal/observability"
)

// State is the derived panel state.
type State string

const (
	StateClosed   State = "CLOSED"
	StateAppGuide State = "OPEN_APP_GUIDE"
	StatePicker   State = "OPEN_TASK_PICKER"
	StateTask     State = "OPEN_TASK"
)

var (
	// ErrBusy is returned when a request is in flight. Only Close is allowed
	// then.
	ErrBusy = errors.New("widget: a request is already in flight")
	// ErrInvalidTransition is returned when an operation is not allowed
	// from the current state.
	ErrInvalidTransition = errors.New("widget: transition not allowed")
	// ErrNoTaskSelected is returned by Send in task mode without a task.
	ErrNoTaskSelected = errors.New("widget: no task selected")
	// ErrUnknownTask is returned by SelectTaskByID for an id not in the
	// task directory.
	ErrUnknownTask = errors.New("widget: task not found")
)

// NoTasksNotice is shown by the picker when the directory is empty.
const NoTasksNotice = "No tasks available. Create a task first!"

// TaskDirectory is the cached task list. *directory.Directory implements it.
type TaskDirectory interface {
	List(ctx context.Context) ([]api.Task, error)
	Refresh(ctx context.Context) ([]api.Task, error)
	Cached() []api.Task
	Empty() bool
	Find(id int) (api.Task, bool)
}

// Dispatcher sends one chat request. *dispatch.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) dispatch.Outcome
}

// SelectionStore persists the last-selected task. *localstate.Selection
// implements it.
type SelectionStore interface {
	Load(ctx context.Context) (int, bool, error)
	Save(ctx context.Context, id int) error
	Clear(ctx context.Context) error
}

// Deps wires a Widget.
type Deps struct {
	Directory  TaskDirectory
	Dispatcher Dispatcher
	Selection  SelectionStore
	// UserName personalises greetings. Empty means anonymous.
	UserName string
	Logger   *observability.Logger
	Metrics  *observability.MetricsCollector
}

// Widget is one chat panel instance.
type Widget struct {
	dir       TaskDirectory
	dispatch  Dispatcher
	selection SelectionStore
	userName  string
	log       *observability.Logger
	metrics   *observability.MetricsCollector

	mu       sync.Mutex
	open     bool
	mode     conversation.Mode
	picker   bool
	task     *api.Task
	messages *conversation.Log
	pending  *Pending
	// gen changes on every log reset and on close; a pending send whose
	// captured gen no longer matches is stale.
	gen uint64
	// defaultID is the persisted selection offered as the picker default.
	defaultID  int
	hasDefault bool
}

// New creates a closed widget and reads the persisted selection once.
// A failing read is logged and treated as no selection.
func New(ctx context.Context, deps Deps) *Widget {
	log := deps.Logger
	if log == nil {
		log = observability.Discard()
	}
	w := &Widget{
		dir:       deps.Directory,
		dispatch:  deps.Dispatcher,
		selection: deps.Selection,
		userName:  deps.UserName,
		log:       log,
		metrics:   deps.Metrics,
		mode:      conversation.ModeAppGuide,
		messages:  conversation.NewLog(),
	}
	if w.selection != nil {
		id, ok, err := w.selection.Load(ctx)
		if err != nil {
			log.Warn("failed to read persisted selection", "error", err)
		}
		w.defaultID, w.hasDefault = id, ok && err == nil
	}
	return w
}

// Open shows the panel in app-guide mode with a fresh greeting.
func (w *Widget) Open() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.guardLocked(StateClosed); err != nil {
		return err
	}
	w.open = true
	w.mode = conversation.ModeAppGuide
	w.picker = false
	w.task = nil
	w.resetLocked()
	w.log.Transition(string(StateClosed), string(StateAppGuide))
	return nil
}

// Close hides the panel and returns it to the app-guide assistant. An
// in-flight request is not cancelled; its reply is discarded on arrival.
func (w *Widget) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	from := w.stateLocked()
	if from == StateClosed {
		return fmt.Errorf("%w: close from %s", ErrInvalidTransition, from)
	}
	w.open = false
	w.mode = conversation.ModeAppGuide
	w.picker = false
	w.task = nil
	w.gen++
	w.log.Transition(string(from), string(StateClosed))
	return nil
}

// RequestTaskMode shows the task picker. It reports whether the task
// directory is empty and should be fetched; see LoadTasks.
func (w *Widget) RequestTaskMode() (needsFetch bool, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	from := w.stateLocked()
	if err := w.guardLocked(StateAppGuide, StateTask); err != nil {
		return false, err
	}
	w.mode = conversation.ModeTask
	w.picker = true
	needsFetch = w.dir.Empty()
	w.log.Transition(string(from), string(StatePicker), "fetch", needsFetch)
	return needsFetch, nil
}

// LoadTasks fetches the task list into the directory. It never changes the
// mode or the selection. On failure the previous list is kept.
func (w *Widget) LoadTasks(ctx context.Context) error {
	_, err := w.dir.List(ctx)
	return err
}

// RefreshTasks overwrites the directory with a fresh fetch.
func (w *Widget) RefreshTasks(ctx context.Context) error {
	_, err := w.dir.Refresh(ctx)
	return err
}

// EnterTaskMode is RequestTaskMode followed by LoadTasks when needed. The
// picker stays visible when the fetch fails.
func (w *Widget) EnterTaskMode(ctx context.Context) error {
	needsFetch, err := w.RequestTaskMode()
	if err != nil {
		return err
	}
	if needsFetch {
		return w.LoadTasks(ctx)
	}
	return nil
}

// SelectTask switches to task's assistant: the log is reset to the task
// greeting, the picker is hidden and the selection is persisted.
func (w *Widget) SelectTask(ctx context.Context, task api.Task) error {
	w.mu.Lock()
	from := w.stateLocked()
	if err := w.guardLocked(StatePicker, StateTask); err != nil {
		w.mu.Unlock()
		return err
	}
	t := task
	w.task = &t
	w.mode = conversation.ModeTask
	w.picker = false
	w.defaultID, w.hasDefault = task.ID, true
	w.resetLocked()
	w.log.Transition(string(from), string(StateTask), "task_id", task.ID)
	w.mu.Unlock()

	if w.selection != nil {
		if err := w.selection.Save(ctx, task.ID); err != nil {
			w.log.Warn("failed to persist selection", "task_id", task.ID, "error", err)
		}
	}
	return nil
}

// SelectTaskByID selects a task from the directory cache.
func (w *Widget) SelectTaskByID(ctx context.Context, id int) error {
	task, ok := w.dir.Find(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTask, id)
	}
	return w.SelectTask(ctx, task)
}

// ReturnToAppGuide leaves task mode: the selection is forgotten, locally and
// in the persisted store, and the log is reset to the app-guide greeting.
func (w *Widget) ReturnToAppGuide(ctx context.Context) error {
	w.mu.Lock()
	from := w.stateLocked()
	if err := w.guardLocked(StateTask, StatePicker); err != nil {
		w.mu.Unlock()
		return err
	}
	w.task = nil
	w.mode = conversation.ModeAppGuide
	w.picker = false
	w.hasDefault = false
	w.resetLocked()
	w.log.Transition(string(from), string(StateAppGuide))
	w.mu.Unlock()

	if w.selection != nil {
		if err := w.selection.Clear(ctx); err != nil {
			w.log.Warn("failed to clear persisted selection", "error", err)
		}
	}
	return nil
}

// DismissPicker hides the picker. With a task selected the panel returns to
// that task; otherwise to the app guide, keeping the current log.
func (w *Widget) DismissPicker() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.guardLocked(StatePicker); err != nil {
		return err
	}
	w.picker = false
	if w.task == nil {
		w.mode = conversation.ModeAppGuide
	}
	w.log.Transition(string(StatePicker), string(w.stateLocked()))
	return nil
}

// guardLocked checks the busy rule and that the current state is one of
// allowed.
func (w *Widget) guardLocked(allowed ...State) error {
	if w.pending != nil {
		w.metrics.Increment(observability.CounterChatRejected)
		return ErrBusy
	}
	s := w.stateLocked()
	for _, a := range allowed {
		if s == a {
			return nil
		}
	}
	return fmt.Errorf("%w from %s", ErrInvalidTransition, s)
}

// resetLocked replaces the log with the greeting for the current mode.
func (w *Widget) resetLocked() {
	c := conversation.Context{UserName: w.userName}
	if w.task != nil {
		c.TaskTitle = w.task.Title
	}
	w.messages.ResetTo(w.mode, c)
	w.gen++
}

func (w *Widget) stateLocked() State {
	switch {
	case !w.open:
		return StateClosed
	case w.picker:
		return StatePicker
	case w.mode == conversation.ModeTask && w.task != nil:
		return StateTask
	default:
		return StateAppGuide
	}
}

// Snapshot is a consistent read of everything a front-end renders.
type Snapshot struct {
	State           State
	Mode            conversation.Mode
	PanelOpen       bool
	PickerVisible   bool
	RequestInFlight bool
	SelectedTask    *api.Task
	Messages        []conversation.Message
	Tasks           []api.Task
	// PickerDefault is the persisted task when it is still in the
	// directory; stale ids yield nil.
	PickerDefault *api.Task
	Title         string
	Placeholder   string
	// PickerNotice is NoTasksNotice when the picker is visible and the
	// directory is empty.
	PickerNotice string
}

// Snapshot returns the current state.
func (w *Widget) Snapshot() Snapshot {
	tasks := w.dir.Cached()

	w.mu.Lock()
	defer w.mu.Unlock()

	s := Snapshot{
		State:           w.stateLocked(),
		Mode:            w.mode,
		PanelOpen:       w.open,
		PickerVisible:   w.picker,
		RequestInFlight: w.pending != nil,
		Messages:        w.messages.Messages(),
		Tasks:           tasks,
	}
	if w.task != nil {
		t := *w.task
		s.SelectedTask = &t
	}
	if w.hasDefault {
		for i := range tasks {
			if tasks[i].ID == w.defaultID {
				t := tasks[i]
				s.PickerDefault = &t
				break
			}
		}
	}

	if w.mode == conversation.ModeTask {
		s.Title = "Task Assistant"
		if w.task != nil {
			s.Title = "Task Assistant — " + w.task.Title
		}
		s.Placeholder = "Type message about this task..."
	} else {
		s.Title = "App Assistant"
		s.Placeholder = "Ask about app features..."
	}
	if w.picker && len(tasks) == 0 {
		s.PickerNotice = NoTasksNotice
	}
	return s
}

// Messages returns a copy of the message log.
func (w *Widget) Messages() []conversation.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.messages.Messages()
}

// State returns the current state.
func (w *Widget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stateLocked()
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }
