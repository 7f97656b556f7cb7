// Package dispatch sends one chat message to the right assistant endpoint
// and turns whatever comes back into text the panel can show.
//
// Dispatch never returns an error to its caller: every failure becomes an
// agent-visible reply, except HTTP 401, which is escalated to the auth guard
// and produces no reply at all.
package dispatch

import (
	"context"
	"time"

	"github.com/taskchat/taskchat/internal/api"
	"github.com/taskchat/taskchat/internal/auth"
	"github.com/taskchat/taskchat/internal/conversation"
	"github.com/taskchat/taskchat/internal/observability"
)

// Chatter is the backend surface the dispatcher calls. *api.Client
// implements it.
type Chatter interface {
	ChatAppGuide(ctx context.Context, message string) ([]byte, error)
	ChatTask(ctx context.Context, taskID int, message string) ([]byte, error)
}

// Request is a message bound to the mode and task captured when it was sent.
type Request struct {
	Mode   conversation.Mode
	TaskID int
	Text   string
}

// Outcome is the result of one Dispatch.
type Outcome struct {
	// Reply is the agent text to append. Empty when Unauthorized.
	Reply string
	// Err is the underlying failure, nil on success.
	Err error
	// Unauthorized is set when the backend rejected the token; credentials
	// have already been cleared.
	Unauthorized bool
	Latency      time.Duration
}

// Failed reports whether the call did not produce a backend reply.
func (o Outcome) Failed() bool { return o.Err != nil }

// Dispatcher routes chat requests.
type Dispatcher struct {
	chat    Chatter
	auth    auth.Invalidator
	log     *observability.Logger
	metrics *observability.MetricsCollector
}

// New creates a dispatcher. inv, log and metrics may be nil.
func New(chat Chatter, inv auth.Invalidator, log *observability.Logger, metrics *observability.MetricsCollector) *Dispatcher {
	if log == nil {
		log = observability.Discard()
	}
	return &Dispatcher{chat: chat, auth: inv, log: log, metrics: metrics}
}

// Dispatch performs exactly one backend call for req.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Outcome {
	d.metrics.Increment(observability.CounterChatSent)

	start := time.Now()
	var (
		payload []byte
		err     error
	)
	if req.Mode == conversation.ModeTask {
		payload, err = d.chat.ChatTask(ctx, req.TaskID, req.Text)
	} else {
		payload, err = d.chat.ChatAppGuide(ctx, req.Text)
	}
	latency := time.Since(start)
	d.metrics.Record(observability.MetricChatLatency, float64(latency.Milliseconds()),
		observability.Labels{"mode": string(req.Mode)})

	if err != nil {
		d.metrics.Increment(observability.CounterChatFailed)
		if api.IsUnauthorized(err) {
			if d.auth != nil {
				d.auth.Invalidate(ctx, err)
			}
			return Outcome{Err: err, Unauthorized: true, Latency: latency}
		}
		d.log.Warn("chat request failed", "mode", req.Mode, "task_id", req.TaskID, "error", err)
		return Outcome{Reply: Describe(err), Err: err, Latency: latency}
	}

	d.log.Debug("chat reply received", "mode", req.Mode, "task_id", req.TaskID, "latency_ms", latency.Milliseconds())
	return Outcome{Reply: ExtractReply(payload), Latency: latency}
}
