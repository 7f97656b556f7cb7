package widget

import (
	"context"
	"fmt"

	"github.com/taskchat/taskchat/internal/conversation"
	"github.com/taskchat/taskchat/internal/dispatch"
	"github.com/taskchat/taskchat/internal/observability"
)

// ErrPanelClosed is returned by BeginSend while the panel is hidden.
var ErrPanelClosed = fmt.Errorf("%w: panel is closed", ErrInvalidTransition)

// Pending is a send that has been accepted and recorded but whose backend
// call has not completed. It carries the mode, task and generation captured
// at acceptance.
type Pending struct {
	w   *Widget
	req dispatch.Request
	gen uint64
}

// Request is the request bound at acceptance.
func (p *Pending) Request() dispatch.Request { return p.req }

// Run performs the backend call. The widget lock is not held.
func (p *Pending) Run(ctx context.Context) dispatch.Outcome {
	return p.w.dispatch.Dispatch(ctx, p.req)
}

// BeginSend accepts a user message. On success the message is in the log,
// the widget is in flight and the returned Pending must be passed to
// Complete once Run returns.
//
// A blank text is a no-op and returns (nil, nil). In task mode without a
// selected task the no-task notice is appended and ErrNoTaskSelected is
// returned; no request is made.
func (w *Widget) BeginSend(text string) (*Pending, error) {
	if isBlank(text) {
		return nil, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.open {
		return nil, ErrPanelClosed
	}
	if w.pending != nil {
		w.metrics.Increment(observability.CounterChatRejected)
		return nil, ErrBusy
	}
	if w.mode == conversation.ModeTask && w.task == nil {
		w.messages.Append(conversation.AgentMessage(dispatch.NoticeNoTask))
		return nil, ErrNoTaskSelected
	}

	req := dispatch.Request{Mode: w.mode, Text: text}
	if w.task != nil {
		req.TaskID = w.task.ID
	}
	w.messages.Append(conversation.UserMessage(text))
	p := &Pending{w: w, req: req, gen: w.gen}
	w.pending = p
	w.log.Debug("message accepted", "mode", string(req.Mode), "task_id", req.TaskID)
	return p, nil
}

// Complete records the outcome of p and clears the in-flight flag. The
// reply is appended only when the log has not been reset and the panel not
// closed since p was accepted; otherwise it is dropped. Unauthorized
// outcomes append nothing. Complete reports whether a reply was appended.
func (w *Widget) Complete(p *Pending, out dispatch.Outcome) bool {
	if p == nil {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending != p {
		return false
	}
	w.pending = nil

	if out.Unauthorized {
		return false
	}
	if p.gen != w.gen {
		w.metrics.Increment(observability.CounterChatDiscarded)
		w.log.Info("discarding stale reply", "mode", string(p.req.Mode), "task_id", p.req.TaskID)
		return false
	}
	w.messages.Append(conversation.AgentMessage(out.Reply))
	return true
}

// Send is BeginSend, Run and Complete in one blocking call. Backend
// failures are never returned; they show up as agent messages.
func (w *Widget) Send(ctx context.Context, text string) error {
	p, err := w.BeginSend(text)
	if err != nil || p == nil {
		return err
	}
	w.Complete(p, p.Run(ctx))
	return nil
}

// InFlight reports whether a request is pending.
func (w *Widget) InFlight() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending != nil
}
