package alert

import (
	"context"
	"sync"

	"stockalert/internal/storage"
)

// cursors serializes access to each source's watermark.
type cursors struct {
	store storage.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newCursors(store storage.Store) *cursors {
	return &cursors{store: store, locks: map[string]*sync.Mutex{}}
}

// lock holds sourceID's cursor until the returned func is called.
func (c *cursors) lock(sourceID string) func() {
	c.mu.Lock()
	l := c.locks[sourceID]
	if l == nil {
		l = &sync.Mutex{}
		c.locks[sourceID] = l
	}
	c.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (c *cursors) get(ctx context.Context, sourceID string) (string, bool, error) {
	return c.store.GetCursor(ctx, sourceID)
}

func (c *cursors) put(ctx context.Context, sourceID, key string) error {
	return c.store.PutCursor(ctx, sourceID, key)
}
