package results

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// StoreConfig configures a Store.
type StoreConfig struct {
	// TTL is how long an event is kept after it is recorded.
	// Default: 10 minutes
	TTL time.Duration

	// Capacity caps the number of events kept. The least recently
	// recorded event is evicted first.
	// Default: 10000
	Capacity uint64
}

// DefaultStoreConfig returns configuration with sensible defaults.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		TTL:      10 * time.Minute,
		Capacity: 10000,
	}
}

// Store keeps recent completion events in memory.
type Store struct {
	events *ttlcache.Cache[string, Event]

	mu      sync.Mutex
	waiters map[string][]chan Event
	closed  bool
}

// NewStore creates a store and starts its expiry loop. Call Close to stop it.
func NewStore(cfg StoreConfig) *Store {
	defaults := DefaultStoreConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = defaults.TTL
	}
	if cfg.Capacity == 0 {
		cfg.Capacity = defaults.Capacity
	}

	s := &Store{
		events: ttlcache.New(
			ttlcache.WithTTL[string, Event](cfg.TTL),
			ttlcache.WithCapacity[string, Event](cfg.Capacity),
			ttlcache.WithDisableTouchOnHit[string, Event](),
		),
		waiters: make(map[string][]chan Event),
	}
	go s.events.Start()
	return s
}

// Record stores an event and wakes anyone waiting for it. Invalid events
// and events recorded after Close are ignored.
func (s *Store) Record(ev Event) {
	if ev.Validate() != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events.Set(ev.ID, ev, ttlcache.DefaultTTL)
	for _, ch := range s.waiters[ev.ID] {
		ch <- ev
	}
	delete(s.waiters, ev.ID)
}

// Get returns the event for a work item.
func (s *Store) Get(id string) (*Event, error) {
	item := s.events.Get(id)
	if item == nil {
		return nil, ErrNotFound
	}
	ev := item.Value()
	return &ev, nil
}

// List returns events matching the filter, oldest first.
func (s *Store) List(filter Filter) []*Event {
	var out []*Event
	for _, item := range s.events.Items() {
		if item.IsExpired() {
			continue
		}
		ev := item.Value()
		if filter.Matches(&ev) {
			out = append(out, &ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FinishedAt.Equal(out[j].FinishedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].FinishedAt.Before(out[j].FinishedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

// Len returns the number of stored events.
func (s *Store) Len() int {
	return s.events.Len()
}

// Wait blocks until the event for id is recorded, ctx is done or the store
// is closed.
func (s *Store) Wait(ctx context.Context, id string) (*Event, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if item := s.events.Get(id); item != nil {
		s.mu.Unlock()
		ev := item.Value()
		return &ev, nil
	}
	ch := make(chan Event, 1)
	s.waiters[id] = append(s.waiters[id], ch)
	s.mu.Unlock()

	select {
	case ev, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		return &ev, nil
	case <-ctx.Done():
		s.removeWaiter(id, ch)
		return nil, ctx.Err()
	}
}

func (s *Store) removeWaiter(id string, target chan Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chans := s.waiters[id]
	for i, ch := range chans {
		if ch == target {
			s.waiters[id] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(s.waiters[id]) == 0 {
		delete(s.waiters, id)
	}
}

// Close stops the expiry loop and releases waiters with ErrClosed.
// Safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.events.Stop()
	for id, chans := range s.waiters {
		for _, ch := range chans {
			close(ch)
		}
		delete(s.waiters, id)
	}
	return nil
}
