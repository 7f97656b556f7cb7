package localstate

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/taskchat/taskchat/internal/storage"
)

// SelectionKey is the storage key for the last-selected task id.
const SelectionKey = "selectedTaskId"

// Selection is the persisted selection store: read once at startup, written
// when a task is chosen, cleared when the user leaves task mode.
type Selection struct {
	store storage.Store
}

// NewSelection wraps store.
func NewSelection(store storage.Store) *Selection {
	return &Selection{store: store}
}

// Load returns the persisted task id. ok is false when nothing is stored or
// the stored value is not a task id; such values are treated as absent.
func (s *Selection) Load(ctx context.Context) (id int, ok bool, err error) {
	e, err := s.store.Get(ctx, SelectionKey)
	if err != nil {
		return 0, false, fmt.Errorf("load selection: %w", err)
	}
	if e == nil {
		return 0, false, nil
	}
	id, convErr := strconv.Atoi(strings.TrimSpace(string(e.Value)))
	if convErr != nil {
		return 0, false, nil
	}
	return id, true, nil
}

// Save persists id as the last-selected task.
func (s *Selection) Save(ctx context.Context, id int) error {
	if err := s.store.Put(ctx, SelectionKey, []byte(strconv.Itoa(id))); err != nil {
		return fmt.Errorf("save selection: %w", err)
	}
	return nil
}

// Clear forgets the last-selected task.
func (s *Selection) Clear(ctx context.Context) error {
	if err := s.store.Delete(ctx, SelectionKey); err != nil {
		return fmt.Errorf("clear selection: %w", err)
	}
	return nil
}
