package widget

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskchat/taskchat/internal/api"
	"github.com/taskchat/taskchat/internal/conversation"
	"github.com/taskchat/taskchat/internal/directory"
	"github.com/taskchat/taskchat/internal/dispatch"
	"github.com/taskchat/taskchat/internal/localstate"
	"github.com/taskchat/taskchat/internal/observability"
	"github.com/taskchat/taskchat/internal/storage"
)

type fakeLister struct {
	mu    sync.Mutex
	tasks []api.Task
	err   error
	calls int
}

func (f *fakeLister) ListTasks(context.Context) ([]api.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.tasks, f.err
}

type fakeChatter struct {
	mu       sync.Mutex
	payload  []byte
	err      error
	calls    int
	lastTask int
}

func (f *fakeChatter) ChatAppGuide(context.Context, string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.payload, f.err
}

func (f *fakeChatter) ChatTask(_ context.Context, id int, _ string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastTask = id
	return f.payload, f.err
}

type harness struct {
	w       *Widget
	lister  *fakeLister
	chat    *fakeChatter
	store   *storage.MemoryStore
	sel     *localstate.Selection
	metrics *observability.MetricsCollector
}

var sampleTasks = []api.Task{
	{ID: 1, Title: "Write report"},
	{ID: 7, Title: "Ship release"},
}

func newHarness(t *testing.T, tasks []api.Task) *harness {
	t.Helper()
	return newHarnessWithStore(t, tasks, storage.NewMemoryStore())
}

func newHarnessWithStore(t *testing.T, tasks []api.Task, store *storage.MemoryStore) *harness {
	t.Helper()
	h := &harness{
		lister:  &fakeLister{tasks: tasks},
		chat:    &fakeChatter{payload: []byte(`{"response":"ok"}`)},
		store:   store,
		sel:     localstate.NewSelection(store),
		metrics: observability.NewMetricsCollector(100),
	}
	h.w = New(context.Background(), Deps{
		Directory:  directory.New(h.lister, nil, nil, h.metrics),
		Dispatcher: dispatch.New(h.chat, nil, nil, h.metrics),
		Selection:  h.sel,
		UserName:   "Ada",
		Metrics:    h.metrics,
	})
	return h
}

func appGreeting() string {
	return conversation.Greeting(conversation.ModeAppGuide, conversation.Context{UserName: "Ada"})
}

func taskGreeting(title string) string {
	return conversation.Greeting(conversation.ModeTask, conversation.Context{UserName: "Ada", TaskTitle: title})
}

func (h *harness) selectTask(t *testing.T, id int) {
	t.Helper()
	ctx := context.Background()
	if h.w.State() == StateClosed {
		require.NoError(t, h.w.Open())
	}
	require.NoError(t, h.w.EnterTaskMode(ctx))
	require.NoError(t, h.w.SelectTaskByID(ctx, id))
}

func TestNew_StartsClosed(t *testing.T) {
	h := newHarness(t, nil)
	s := h.w.Snapshot()
	require.Equal(t, StateClosed, s.State)
	require.False(t, s.PanelOpen)
	require.Empty(t, s.Messages)
}

func TestOpen_GreetsAppGuide(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.w.Open())

	s := h.w.Snapshot()
	require.Equal(t, StateAppGuide, s.State)
	require.Equal(t, conversation.ModeAppGuide, s.Mode)
	require.Equal(t, []conversation.Message{conversation.AgentMessage(appGreeting())}, s.Messages)
	require.Equal(t, "App Assistant", s.Title)
	require.Equal(t, "Ask about app features...", s.Placeholder)

	require.ErrorIs(t, h.w.Open(), ErrInvalidTransition)
}

func TestClose_FromClosedRejected(t *testing.T) {
	h := newHarness(t, nil)
	require.ErrorIs(t, h.w.Close(), ErrInvalidTransition)
}

func TestClose_ReopenStartsInAppGuide(t *testing.T) {
	h := newHarness(t, sampleTasks)
	h.selectTask(t, 7)
	require.NoError(t, h.w.Close())
	require.NoError(t, h.w.Open())

	s := h.w.Snapshot()
	require.Equal(t, StateAppGuide, s.State)
	require.Nil(t, s.SelectedTask)
	require.Equal(t, appGreeting(), s.Messages[0].Text)

	// The persisted selection survives a close.
	id, ok, err := h.sel.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 7, id)
}

func TestSend_AppGuideRoundTrip(t *testing.T) {
	h := newHarness(t, nil)
	h.chat.payload = []byte(`{"response":"hi"}`)
	require.NoError(t, h.w.Open())

	require.NoError(t, h.w.Send(context.Background(), "hello"))

	require.Equal(t, []conversation.Message{
		conversation.AgentMessage(appGreeting()),
		conversation.UserMessage("hello"),
		conversation.AgentMessage("hi"),
	}, h.w.Messages())
	require.False(t, h.w.InFlight())
	require.Equal(t, 1, h.chat.calls)
}

func TestSend_BlankIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.w.Open())

	p, err := h.w.BeginSend("   \n\t")
	require.NoError(t, err)
	require.Nil(t, p)
	require.Len(t, h.w.Messages(), 1)
	require.False(t, h.w.InFlight())
	require.Zero(t, h.chat.calls)
}

func TestSend_ClosedPanelRejected(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.w.BeginSend("hello")
	require.ErrorIs(t, err, ErrPanelClosed)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestEnterTaskMode_EmptyListShowsNotice(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.w.Open())
	require.NoError(t, h.w.EnterTaskMode(context.Background()))

	s := h.w.Snapshot()
	require.Equal(t, StatePicker, s.State)
	require.Equal(t, conversation.ModeTask, s.Mode)
	require.Equal(t, NoTasksNotice, s.PickerNotice)
	require.Nil(t, s.SelectedTask)
	require.Nil(t, s.PickerDefault)
	require.Equal(t, 1, h.lister.calls)

	// Task mode without a task: notice, no request.
	err := h.w.Send(context.Background(), "x")
	require.ErrorIs(t, err, ErrNoTaskSelected)
	last := h.w.Messages()[len(h.w.Messages())-1]
	require.Equal(t, conversation.AgentMessage(dispatch.NoticeNoTask), last)
	require.Zero(t, h.chat.calls)
	require.False(t, h.w.InFlight())
}

func TestEnterTaskMode_FetchesOnlyWhenEmpty(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sampleTasks)
	require.NoError(t, h.w.Open())

	require.NoError(t, h.w.EnterTaskMode(ctx))
	require.NoError(t, h.w.DismissPicker())
	require.NoError(t, h.w.EnterTaskMode(ctx))
	require.Equal(t, 1, h.lister.calls)

	require.NoError(t, h.w.RefreshTasks(ctx))
	require.Equal(t, 2, h.lister.calls)
}

func TestEnterTaskMode_FetchFailureKeepsPicker(t *testing.T) {
	h := newHarness(t, nil)
	h.lister.err = &api.TransportError{Method: "GET", Path: "/tasks/", Err: errors.New("refused")}
	require.NoError(t, h.w.Open())

	require.Error(t, h.w.EnterTaskMode(context.Background()))
	s := h.w.Snapshot()
	require.Equal(t, StatePicker, s.State)
	require.Equal(t, NoTasksNotice, s.PickerNotice)
	require.Len(t, s.Messages, 1)
}

func TestRequestTaskMode_KeepsLog(t *testing.T) {
	h := newHarness(t, sampleTasks)
	require.NoError(t, h.w.Open())
	require.NoError(t, h.w.Send(context.Background(), "hello"))

	needsFetch, err := h.w.RequestTaskMode()
	require.NoError(t, err)
	require.True(t, needsFetch)
	require.Len(t, h.w.Messages(), 3)
	require.Equal(t, "Task Assistant", h.w.Snapshot().Title)
}

func TestSelectTask_ResetsLogAndPersists(t *testing.T) {
	h := newHarness(t, sampleTasks)
	h.selectTask(t, 7)

	s := h.w.Snapshot()
	require.Equal(t, StateTask, s.State)
	require.False(t, s.PickerVisible)
	require.Equal(t, 7, s.SelectedTask.ID)
	require.Equal(t, []conversation.Message{conversation.AgentMessage(taskGreeting("Ship release"))}, s.Messages)
	require.Equal(t, "Task Assistant — Ship release", s.Title)
	require.Equal(t, "Type message about this task...", s.Placeholder)

	id, ok, err := h.sel.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 7, id)

	require.NoError(t, h.w.Send(context.Background(), "status?"))
	require.Equal(t, 7, h.chat.lastTask)
	require.Len(t, h.w.Messages(), 3)
}

func TestSelectTask_SwitchReplacesLog(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sampleTasks)
	h.selectTask(t, 1)
	require.NoError(t, h.w.Send(ctx, "first"))
	require.Len(t, h.w.Messages(), 3)

	needsFetch, err := h.w.RequestTaskMode()
	require.NoError(t, err)
	require.False(t, needsFetch)
	require.NoError(t, h.w.SelectTaskByID(ctx, 7))

	require.Equal(t, []conversation.Message{conversation.AgentMessage(taskGreeting("Ship release"))}, h.w.Messages())
}

func TestSelectTaskByID_Unknown(t *testing.T) {
	h := newHarness(t, sampleTasks)
	require.NoError(t, h.w.Open())
	require.NoError(t, h.w.EnterTaskMode(context.Background()))
	require.ErrorIs(t, h.w.SelectTaskByID(context.Background(), 42), ErrUnknownTask)
	require.Equal(t, StatePicker, h.w.State())
}

func TestSelectTask_FromAppGuideRejected(t *testing.T) {
	h := newHarness(t, sampleTasks)
	require.NoError(t, h.w.Open())
	err := h.w.SelectTask(context.Background(), sampleTasks[0])
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestReturnToAppGuide_ClearsSelection(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sampleTasks)
	h.selectTask(t, 7)

	require.NoError(t, h.w.ReturnToAppGuide(ctx))
	s := h.w.Snapshot()
	require.Equal(t, StateAppGuide, s.State)
	require.Nil(t, s.SelectedTask)
	require.Equal(t, []conversation.Message{conversation.AgentMessage(appGreeting())}, s.Messages)

	_, ok, err := h.sel.Load(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.ErrorIs(t, h.w.ReturnToAppGuide(ctx), ErrInvalidTransition)
}

func TestDismissPicker(t *testing.T) {
	ctx := context.Background()

	t.Run("without task returns to app guide keeping log", func(t *testing.T) {
		h := newHarness(t, sampleTasks)
		require.NoError(t, h.w.Open())
		require.NoError(t, h.w.Send(ctx, "hello"))
		require.NoError(t, h.w.EnterTaskMode(ctx))

		require.NoError(t, h.w.DismissPicker())
		require.Equal(t, StateAppGuide, h.w.State())
		require.Equal(t, conversation.ModeAppGuide, h.w.Snapshot().Mode)
		require.Len(t, h.w.Messages(), 3)
	})

	t.Run("with task returns to task", func(t *testing.T) {
		h := newHarness(t, sampleTasks)
		h.selectTask(t, 1)
		_, err := h.w.RequestTaskMode()
		require.NoError(t, err)

		require.NoError(t, h.w.DismissPicker())
		s := h.w.Snapshot()
		require.Equal(t, StateTask, s.State)
		require.Equal(t, 1, s.SelectedTask.ID)
		require.Equal(t, taskGreeting("Write report"), s.Messages[0].Text)
	})

	t.Run("not visible", func(t *testing.T) {
		h := newHarness(t, nil)
		require.NoError(t, h.w.Open())
		require.ErrorIs(t, h.w.DismissPicker(), ErrInvalidTransition)
	})
}

func TestPersistedSelection_OfferedAsDefault(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, localstate.NewSelection(store).Save(ctx, 7))

	h := newHarnessWithStore(t, sampleTasks, store)
	require.NoError(t, h.w.Open())
	require.NoError(t, h.w.EnterTaskMode(ctx))

	s := h.w.Snapshot()
	require.NotNil(t, s.PickerDefault)
	require.Equal(t, 7, s.PickerDefault.ID)
	require.Nil(t, s.SelectedTask, "a persisted id must not auto-select")
	require.Equal(t, StatePicker, s.State)
}

func TestPersistedSelection_StaleIDIgnored(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, localstate.NewSelection(store).Save(ctx, 99))

	h := newHarnessWithStore(t, sampleTasks, store)
	require.NoError(t, h.w.Open())
	require.NoError(t, h.w.EnterTaskMode(ctx))

	s := h.w.Snapshot()
	require.Nil(t, s.PickerDefault)
	require.Nil(t, s.SelectedTask)
}

func TestBusy_RejectsSendsAndTransitions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sampleTasks)
	require.NoError(t, h.w.Open())

	p, err := h.w.BeginSend("first")
	require.NoError(t, err)
	require.True(t, h.w.InFlight())
	before := len(h.w.Messages())

	_, err = h.w.BeginSend("second")
	require.ErrorIs(t, err, ErrBusy)
	require.Len(t, h.w.Messages(), before)

	_, err = h.w.RequestTaskMode()
	require.ErrorIs(t, err, ErrBusy)
	require.ErrorIs(t, h.w.EnterTaskMode(ctx), ErrBusy)
	require.Equal(t, StateAppGuide, h.w.State())
	require.Equal(t, int64(3), h.metrics.Counter(observability.CounterChatRejected))

	require.True(t, h.w.Complete(p, p.Run(ctx)))
	require.False(t, h.w.InFlight())
	require.Len(t, h.w.Messages(), before+1)
}

func TestBusy_CloseAllowedAndReplyDiscarded(t *testing.T) {
	h := newHarness(t, sampleTasks)
	h.selectTask(t, 7)

	p, err := h.w.BeginSend("still there?")
	require.NoError(t, err)
	require.Equal(t, 7, p.Request().TaskID)

	require.NoError(t, h.w.Close())
	require.ErrorIs(t, h.w.Open(), ErrBusy)

	require.False(t, h.w.Complete(p, dispatch.Outcome{Reply: "late"}))
	require.False(t, h.w.InFlight())
	require.Equal(t, int64(1), h.metrics.Counter(observability.CounterChatDiscarded))

	require.NoError(t, h.w.Open())
	for _, m := range h.w.Messages() {
		require.NotEqual(t, "late", m.Text)
	}
	require.Equal(t, StateAppGuide, h.w.State())
}

func TestComplete_IgnoresUnknownPending(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.w.Open())

	p, err := h.w.BeginSend("a")
	require.NoError(t, err)
	require.True(t, h.w.Complete(p, dispatch.Outcome{Reply: "b"}))
	// A second completion of the same send is a no-op.
	require.False(t, h.w.Complete(p, dispatch.Outcome{Reply: "c"}))
	require.False(t, h.w.Complete(nil, dispatch.Outcome{}))
	require.Len(t, h.w.Messages(), 3)
}

func TestBeginSend_ConcurrentAtMostOne(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.w.Open())

	const n = 32
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		busy     int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.w.BeginSend("hello")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, ErrBusy):
				busy++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, accepted)
	require.Equal(t, n-1, busy)
	require.Len(t, h.w.Messages(), 2)
}

func TestSend_FailuresBecomeAgentMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "unreachable",
			err:  &api.TransportError{Method: "POST", Path: "/tasks/app-guide/chat", Err: errors.New("connection refused")},
			want: dispatch.NoticeUnreachable,
		},
		{
			name: "server detail",
			err:  &api.StatusError{Method: "POST", Path: "/tasks/app-guide/chat", Code: 500, Body: []byte(`{"detail":"boom"}`)},
			want: "Error 500: boom",
		},
		{
			name: "validation detail",
			err: &api.StatusError{Method: "POST", Path: "/tasks/app-guide/chat", Code: 422,
				Body: []byte(`{"detail":[{"loc":["body","message"],"msg":"too short"}]}`)},
			want: "Error 422: body.message: too short",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.chat.err = tt.err
			require.NoError(t, h.w.Open())
			require.NoError(t, h.w.Send(context.Background(), "hello"))

			msgs := h.w.Messages()
			require.Len(t, msgs, 3)
			require.Equal(t, conversation.AgentMessage(tt.want), msgs[2])
			require.False(t, h.w.InFlight())
		})
	}
}
