package queue

import (
	"context"
	"sync"
	"time"

	werrors "github.com/vinayprograms/workkit/errors"
)

// MemoryQueue implements Queue in process memory. Nothing survives a restart.
type MemoryQueue struct {
	config Config

	mu     sync.Mutex
	fifo   []*Item
	keyed  map[string][]*Item
	order  []string // keys in first-enqueue order; mirrors keyed
	count  int
	closed bool

	// wake holds a token exactly while count > 0.
	wake chan struct{}
	done chan struct{}
}

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue(cfg Config) *MemoryQueue {
	return &MemoryQueue{
		config: cfg,
		keyed:  make(map[string][]*Item),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Mode returns the configured delivery mode.
func (q *MemoryQueue) Mode() Mode {
	return q.config.Mode
}

// Submit wraps work in an Item and enqueues it.
func (q *MemoryQueue) Submit(work WorkFunc, key string) error {
	if work == nil {
		return ErrInvalidItem
	}
	return q.Enqueue(&Item{Work: work, Key: key})
}

// Enqueue appends item to its FIFO and wakes a waiting consumer.
func (q *MemoryQueue) Enqueue(item *Item) error {
	if item == nil || item.Work == nil {
		return ErrInvalidItem
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	if item.ID == "" {
		item.ID = generateID()
	}
	item.EnqueuedAt = time.Now()

	switch q.config.Mode {
	case ModeKeyed:
		if item.Key == "" && q.config.KeyFunc != nil {
			item.Key = q.config.KeyFunc(item)
		}
		if _, ok := q.keyed[item.Key]; !ok {
			q.order = append(q.order, item.Key)
		}
		q.keyed[item.Key] = append(q.keyed[item.Key], item)
	default:
		q.fifo = append(q.fifo, item)
	}

	q.count++
	q.armLocked()
	return nil
}

// Dequeue blocks until items are available, the queue is closed and empty, or
// ctx ends.
func (q *MemoryQueue) Dequeue(ctx context.Context) ([]*Item, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(err)
		}

		q.mu.Lock()
		items := q.takeLocked()
		closed := q.closed
		q.mu.Unlock()

		if len(items) > 0 {
			return items, nil
		}
		if closed {
			return nil, ErrClosed
		}

		select {
		case <-q.wake:
		case <-q.done:
		case <-ctx.Done():
			return nil, cancelled(ctx.Err())
		}
	}
}

// takeLocked removes the next batch according to the mode.
func (q *MemoryQueue) takeLocked() []*Item {
	if q.count == 0 {
		return nil
	}

	var items []*Item
	switch q.config.Mode {
	case ModeKeyed:
		items = make([]*Item, 0, len(q.order))
		remaining := q.order[:0]
		for _, key := range q.order {
			sub := q.keyed[key]
			items = append(items, sub[0])
			sub[0] = nil
			sub = sub[1:]
			if len(sub) == 0 {
				delete(q.keyed, key)
				continue
			}
			q.keyed[key] = sub
			remaining = append(remaining, key)
		}
		q.order = remaining
	default:
		items = []*Item{q.fifo[0]}
		q.fifo[0] = nil
		q.fifo = q.fifo[1:]
	}

	q.count -= len(items)
	if q.count == 0 {
		q.disarmLocked()
	} else {
		q.armLocked()
	}
	return items
}

// armLocked makes sure a wake token is buffered while items are pending.
func (q *MemoryQueue) armLocked() {
	if q.count == 0 {
		return
	}
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// disarmLocked removes a stale token once the queue is empty.
func (q *MemoryQueue) disarmLocked() {
	select {
	case <-q.wake:
	default:
	}
}

// Len returns the number of pending items across all keys.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Keys returns the keys with pending items, in first-enqueue order.
// Always empty in FIFO mode.
func (q *MemoryQueue) Keys() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	keys := make([]string, len(q.order))
	copy(keys, q.order)
	return keys
}

// KeyLen returns the number of pending items for key.
func (q *MemoryQueue) KeyLen(key string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.keyed[key])
}

// Drain removes and returns every pending item in dequeue order.
func (q *MemoryQueue) Drain() []*Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	var all []*Item
	for q.count > 0 {
		all = append(all, q.takeLocked()...)
	}
	return all
}

// Close stops further enqueues and wakes any waiting consumer. Items already
// pending can still be dequeued. Close is idempotent.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.done)
	return nil
}

// Closed reports whether Close has been called.
func (q *MemoryQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func cancelled(cause error) error {
	return werrors.New(werrors.ErrCodeCancelled, "dequeue cancelled", werrors.WithCause(cause))
}

var _ Queue = (*MemoryQueue)(nil)
