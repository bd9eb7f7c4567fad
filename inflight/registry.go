// Package inflight tracks work items that are currently executing so a
// shutdown can wait for them.
//
// Entries are added by the supervisor before it spawns the execution goroutine
// and removed by that goroutine's completion hook. IsEmpty and Wait read under
// the same lock as the mutations, so they never report empty while an entry is
// still registered. A stale "not empty" answer corrects itself on the next
// call.
package inflight

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrDuplicateID is returned by Add when an entry with the same ID exists.
var ErrDuplicateID = errors.New("inflight: duplicate entry id")

// Entry is the handle of one executing work item.
type Entry struct {
	ID        string
	Key       string
	StartedAt time.Time

	once sync.Once
	done chan struct{}
}

// NewEntry creates an entry for a work item about to start.
func NewEntry(id, key string) *Entry {
	return &Entry{
		ID:        id,
		Key:       key,
		StartedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// Finish marks the entry completed. Safe to call more than once.
func (e *Entry) Finish() {
	e.once.Do(func() { close(e.done) })
}

// Done is closed when the work item has finished.
func (e *Entry) Done() <-chan struct{} {
	return e.done
}

// Completed reports whether Finish has been called.
func (e *Entry) Completed() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Registry is a concurrency-safe set of executing entries keyed by ID.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry

	// empty is closed while entries is empty and replaced when it fills.
	empty chan struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	empty := make(chan struct{})
	close(empty)
	return &Registry{
		entries: make(map[string]*Entry),
		empty:   empty,
	}
}

// Add registers an entry.
func (r *Registry) Add(e *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[e.ID]; exists {
		return ErrDuplicateID
	}
	if len(r.entries) == 0 {
		r.empty = make(chan struct{})
	}
	r.entries[e.ID] = e
	return nil
}

// Remove deregisters the entry with id. Returns false if it was not present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	r.signalIfEmptyLocked()
	return true
}

// Sweep removes every entry whose work has finished and returns how many were
// removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, e := range r.entries {
		if e.Completed() {
			delete(r.entries, id)
			removed++
		}
	}
	if removed > 0 {
		r.signalIfEmptyLocked()
	}
	return removed
}

func (r *Registry) signalIfEmptyLocked() {
	if len(r.entries) == 0 {
		close(r.empty)
	}
}

// Len returns the number of registered entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// IsEmpty reports whether no entries are registered.
func (r *Registry) IsEmpty() bool {
	return r.Len() == 0
}

// Snapshot returns the registered entries at this instant.
func (r *Registry) Snapshot() []*Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

// Wait blocks until the registry is empty or ctx ends, returning ctx.Err()
// in the latter case.
func (r *Registry) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		if len(r.entries) == 0 {
			r.mu.Unlock()
			return nil
		}
		empty := r.empty
		r.mu.Unlock()

		select {
		case <-empty:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
