// Package auth turns an HTTP 401 from the backend into a global sign-out.
//
// A stale bearer token can never be repaired client-side, so the Guard
// clears every stored credential and asks the host application to reload.
package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/taskchat/taskchat/internal/observability"
)

// ErrSessionExpired is returned by front-ends that stopped because the
// stored credentials were invalidated.
var ErrSessionExpired = errors.New("session expired, sign in again")

// Invalidator is implemented by Guard. Components that observe a 401 call
// Invalidate and otherwise treat the failure as terminal for the request.
type Invalidator interface {
	Invalidate(ctx context.Context, cause error)
}

// CredentialClearer is the part of localstate.Vault the guard needs.
type CredentialClearer interface {
	Clear(ctx context.Context) error
}

// Guard clears credentials and fires the reload hook once.
type Guard struct {
	creds   CredentialClearer
	log     *observability.Logger
	metrics *observability.MetricsCollector

	mu          sync.Mutex
	reload      func()
	invalidated bool
	expired     chan struct{}
}

// NewGuard builds a guard. reload may be nil and set later with OnReload.
func NewGuard(creds CredentialClearer, reload func(), log *observability.Logger, metrics *observability.MetricsCollector) *Guard {
	if log == nil {
		log = observability.Discard()
	}
	return &Guard{creds: creds, reload: reload, log: log, metrics: metrics, expired: make(chan struct{})}
}

// OnReload replaces the reload hook.
func (g *Guard) OnReload(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reload = fn
}

// Invalidate wipes credentials on every call; the reload hook runs only on
// the first.
func (g *Guard) Invalidate(ctx context.Context, cause error) {
	g.log.Warn("authentication rejected, clearing credentials", "cause", errString(cause))
	g.metrics.Increment(observability.CounterAuthInvalidated)

	if err := g.creds.Clear(ctx); err != nil {
		g.log.Error("clear credentials failed", "error", err)
	}

	g.mu.Lock()
	first := !g.invalidated
	g.invalidated = true
	reload := g.reload
	if first {
		close(g.expired)
	}
	g.mu.Unlock()

	if first && reload != nil {
		reload()
	}
}

// Invalidated reports whether Invalidate has been called.
func (g *Guard) Invalidated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.invalidated
}

// Expired is closed by the first Invalidate.
func (g *Guard) Expired() <-chan struct{} { return g.expired }

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
