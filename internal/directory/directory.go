// Package directory caches the signed-in user's task list for the lifetime
// of a chat panel.
package directory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/taskchat/taskchat/internal/api"
	"github.com/taskchat/taskchat/internal/auth"
	"github.com/taskchat/taskchat/internal/observability"
)

// Lister fetches the task list. *api.Client implements it.
type Lister interface {
	ListTasks(ctx context.Context) ([]api.Task, error)
}

// Directory is an in-memory, possibly stale copy of the backend's task list.
type Directory struct {
	lister  Lister
	auth    auth.Invalidator
	log     *observability.Logger
	metrics *observability.MetricsCollector

	mu      sync.RWMutex
	tasks   []api.Task
	loaded  bool
	fetched time.Time
}

// New creates an empty directory. inv, log and metrics may be nil.
func New(lister Lister, inv auth.Invalidator, log *observability.Logger, metrics *observability.MetricsCollector) *Directory {
	if log == nil {
		log = observability.Discard()
	}
	return &Directory{lister: lister, auth: inv, log: log, metrics: metrics}
}

// List issues one read call and replaces the cache with the result, kept in
// server order. On failure the cache is left untouched and the error is
// returned; a 401 additionally invalidates the stored credentials.
func (d *Directory) List(ctx context.Context) ([]api.Task, error) {
	start := time.Now()
	tasks, err := d.lister.ListTasks(ctx)
	d.metrics.Record(observability.MetricFetchLatency, float64(time.Since(start).Milliseconds()), nil)
	if err != nil {
		d.metrics.Increment(observability.CounterTasksFailed)
		d.log.Warn("failed to fetch tasks", "error", err)
		if api.IsUnauthorized(err) && d.auth != nil {
			d.auth.Invalidate(ctx, err)
		}
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	d.mu.Lock()
	d.tasks = append([]api.Task(nil), tasks...)
	d.loaded = true
	d.fetched = time.Now()
	d.mu.Unlock()

	d.metrics.Increment(observability.CounterTasksFetched)
	d.log.Debug("tasks fetched", "count", len(tasks))
	return append([]api.Task(nil), tasks...), nil
}

// Refresh is List used to overwrite the cache on demand.
func (d *Directory) Refresh(ctx context.Context) ([]api.Task, error) {
	return d.List(ctx)
}

// Cached returns a copy of the cached tasks.
func (d *Directory) Cached() []api.Task {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]api.Task(nil), d.tasks...)
}

// Empty reports whether the cache holds no tasks, fetched or not.
func (d *Directory) Empty() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.tasks) == 0
}

// Loaded reports whether at least one fetch has succeeded.
func (d *Directory) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded
}

// FetchedAt is the time of the last successful fetch.
func (d *Directory) FetchedAt() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.fetched
}

// Find returns the cached task with id.
func (d *Directory) Find(id int) (api.Task, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, t := range d.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return api.Task{}, false
}
