// Package storage provides the durable key-value layer behind the client's
// local state.
//
// Store is the abstraction; SQLiteStore is the default implementation using
// pure-Go SQLite (modernc.org/sqlite). MemoryStore backs tests and ephemeral
// runs. Only small string-like values (ids, tokens, profile JSON) are stored;
// conversation text never reaches this layer.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("storage: store is closed")

// Entry is a stored value with its last write time.
type Entry struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the durable key-value interface.
type Store interface {
	// Get returns the entry for key, or nil if it does not exist.
	Get(ctx context.Context, key string) (*Entry, error)

	// Put writes value under key (upsert).
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// Keys returns all keys with the given prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases the store.
	Close() error
}
