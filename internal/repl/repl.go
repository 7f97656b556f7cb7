// Package repl is a line-oriented front-end for the chat panel, for
// terminals where the full-screen panel is unwanted or unavailable.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/taskchat/taskchat/internal/auth"
	"github.com/taskchat/taskchat/internal/conversation"
	"github.com/taskchat/taskchat/internal/widget"
)

const helpText = `Commands:
  /task          choose a task
  /task <id>     talk to the assistant of task <id>
  /guide         back to the app assistant
  /tasks         list tasks
  /refresh       reload the task list
  /cancel        leave the task picker
  /help          this text
  /quit          exit`

// REPL reads lines from a reader and drives a widget with them.
type REPL struct {
	w       *widget.Widget
	reader  io.Reader
	writer  io.Writer
	expired <-chan struct{}

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
}

// New creates a REPL. expired, when non-nil, ends Run with
// auth.ErrSessionExpired once closed.
func New(w *widget.Widget, reader io.Reader, writer io.Writer, expired <-chan struct{}) *REPL {
	return &REPL{w: w, reader: reader, writer: writer, expired: expired}
}

// Run opens the panel and processes lines until /quit, EOF, ctx
// cancellation or session expiry. The panel is closed on return.
func (r *REPL) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer cancel()

	if err := r.w.Open(); err != nil {
		return err
	}
	defer r.w.Close()
	r.header()
	r.printFrom(0)

	scanner := bufio.NewScanner(r.reader)
	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-r.expired:
			return auth.ErrSessionExpired
		default:
		}
		r.prompt()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.expired:
			return auth.ErrSessionExpired
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if line == "/quit" || line == "/exit" {
				return nil
			}
			r.handle(ctx, line)
		}
	}
}

// Stop ends a running Run.
func (r *REPL) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.cancel != nil {
		r.cancel()
	}
	return nil
}

func (r *REPL) handle(ctx context.Context, line string) {
	if !strings.HasPrefix(line, "/") {
		r.send(ctx, line)
		return
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/help":
		r.println(helpText)
	case "/task":
		if arg == "" {
			r.openPicker(ctx)
			return
		}
		id, err := strconv.Atoi(arg)
		if err != nil {
			r.printf("Not a task id: %q\n", arg)
			return
		}
		r.selectTask(ctx, id)
	case "/guide":
		if r.w.State() == widget.StateAppGuide {
			r.println("Already talking to the app assistant.")
			return
		}
		if r.report(r.w.ReturnToAppGuide(ctx)) {
			return
		}
		r.header()
		r.printFrom(0)
	case "/tasks":
		if len(r.w.Snapshot().Tasks) == 0 {
			if err := r.w.LoadTasks(ctx); err != nil {
				r.printf("Could not load tasks: %v\n", err)
			}
		}
		r.listTasks()
	case "/refresh":
		if err := r.w.RefreshTasks(ctx); err != nil {
			r.printf("Could not load tasks: %v\n", err)
		}
		r.listTasks()
	case "/cancel":
		if r.report(r.w.DismissPicker()) {
			return
		}
		r.header()
	default:
		r.printf("Unknown command %s. Type /help.\n", cmd)
	}
}

func (r *REPL) send(ctx context.Context, text string) {
	before := len(r.w.Messages())
	err := r.w.Send(ctx, text)
	if err != nil && !errors.Is(err, widget.ErrNoTaskSelected) {
		r.report(err)
		return
	}
	r.printFrom(before)
}

func (r *REPL) openPicker(ctx context.Context) {
	if r.w.State() != widget.StatePicker {
		if r.report(r.w.EnterTaskMode(ctx)) && r.w.State() != widget.StatePicker {
			return
		}
	}
	r.listTasks()
	r.println("Pick one with /task <id>, or /cancel.")
}

func (r *REPL) selectTask(ctx context.Context, id int) {
	if r.w.State() != widget.StatePicker && r.w.State() != widget.StateTask {
		if r.report(r.w.EnterTaskMode(ctx)) && r.w.State() != widget.StatePicker {
			return
		}
	}
	if err := r.w.SelectTaskByID(ctx, id); err != nil {
		if errors.Is(err, widget.ErrUnknownTask) {
			r.printf("No task #%d.\n", id)
			return
		}
		r.report(err)
		return
	}
	r.header()
	r.printFrom(0)
}

func (r *REPL) listTasks() {
	s := r.w.Snapshot()
	if len(s.Tasks) == 0 {
		r.println(widget.NoTasksNotice)
		return
	}
	for _, t := range s.Tasks {
		mark := " "
		if s.SelectedTask != nil && s.SelectedTask.ID == t.ID {
			mark = "*"
		}
		suffix := ""
		if s.PickerDefault != nil && s.PickerDefault.ID == t.ID {
			suffix = "  (last used)"
		}
		r.printf("%s #%-4d %s%s\n", mark, t.ID, t.Title, suffix)
	}
}

func (r *REPL) header() {
	r.printf("== %s ==\n", r.w.Snapshot().Title)
}

// printFrom writes agent messages from index i onward.
func (r *REPL) printFrom(i int) {
	msgs := r.w.Messages()
	for ; i < len(msgs); i++ {
		if msgs[i].Sender == conversation.SenderAgent {
			r.printf("\n%s\n\n", msgs[i].Text)
		}
	}
}

func (r *REPL) prompt() {
	switch r.w.State() {
	case widget.StatePicker:
		r.printf("task> ")
	case widget.StateTask:
		r.printf("#%d> ", r.w.Snapshot().SelectedTask.ID)
	default:
		r.printf("> ")
	}
}

// report prints err and reports whether there was one.
func (r *REPL) report(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, widget.ErrBusy):
		r.println("Still waiting for the previous reply.")
	case errors.Is(err, widget.ErrInvalidTransition):
		r.println("Not available here. Type /help.")
	default:
		r.printf("Error: %v\n", err)
	}
	return true
}

func (r *REPL) println(s string) { r.printf("%s\n", s) }

func (r *REPL) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	fmt.Fprintf(r.writer, format, args...)
}
