// Package dedup serializes work on the same identity key inside one process.
//
// A Coordinator keeps a registry of reference-counted mutexes. An entry exists
// only while some goroutine holds or waits for its key, so the registry size
// tracks current contention rather than every key ever seen.
//
// The registry is process-local. Separate instances of the service do not
// exclude each other; the database unique indexes arbitrate between them.
package dedup

import (
	"context"
	"sync"

	"bookcatalog/internal/metrics"
)

type entry struct {
	mu   sync.Mutex
	refs int
}

type Coordinator struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewCoordinator() *Coordinator {
	return &Coordinator{entries: make(map[string]*entry)}
}

// Len reports how many keys are currently held or awaited.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Coordinator) acquire(key string) *entry {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
		metrics.LockRegistrySize.Inc()
	}
	e.refs++
	c.mu.Unlock()

	e.mu.Lock()
	metrics.LockAcquisitionsTotal.Inc()
	return e
}

func (c *Coordinator) release(key string, e *entry) {
	e.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(c.entries, key)
		metrics.LockRegistrySize.Dec()
	}
}

// WithLock runs action while holding the lock for key. The lock is released
// on every exit path, including a panic in action, which is re-raised after
// release. Waiting for the lock is not bounded by ctx; ctx is handed to action.
func WithLock[T any](ctx context.Context, c *Coordinator, key string, action func(context.Context) (T, error)) (T, error) {
	e := c.acquire(key)
	defer c.release(key, e)
	return action(ctx)
}
