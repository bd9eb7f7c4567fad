package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	werrors "github.com/vinayprograms/workkit/errors"
)

// Common errors.
var (
	// ErrInvalidItem is returned synchronously for a nil item or work func.
	ErrInvalidItem = werrors.New(werrors.ErrCodeInvalidArgument, "work item is nil")

	// ErrCancelled is returned by Dequeue when its context ends first.
	ErrCancelled = werrors.New(werrors.ErrCodeCancelled, "dequeue cancelled")

	// ErrClosed is returned by Enqueue after Close, and by Dequeue once a closed
	// queue is empty.
	ErrClosed = werrors.New(werrors.ErrCodeClosed, "queue closed")
)

// WorkFunc is an opaque unit of background work. The context is the
// process-wide cancellation signal; honouring it is up to the work item.
// A returned error is logged and discarded.
type WorkFunc func(ctx context.Context) error

// Item is a queued work item.
type Item struct {
	// ID identifies the item in logs. Assigned on enqueue if empty.
	ID string

	// Key partitions items in keyed mode. Empty means no key.
	Key string

	// Work is the body to execute.
	Work WorkFunc

	// EnqueuedAt is set on enqueue.
	EnqueuedAt time.Time
}

// Mode selects the dequeue discipline.
type Mode int

const (
	// ModeFIFO is a single global FIFO; Dequeue returns one item.
	ModeFIFO Mode = iota

	// ModeKeyed keeps one FIFO per key; Dequeue returns one item per key.
	ModeKeyed
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeFIFO:
		return "fifo"
	case ModeKeyed:
		return "keyed"
	default:
		return "unknown"
	}
}

// KeyFunc derives a key for an item submitted without one.
type KeyFunc func(item *Item) string

// Queue is the contract the supervisor consumes.
type Queue interface {
	// Enqueue appends item to the tail of its FIFO. It never blocks.
	// Returns ErrInvalidItem for a nil item or nil Work, ErrClosed after Close.
	Enqueue(item *Item) error

	// Dequeue blocks until at least one item is available or ctx ends.
	// Returns ErrCancelled if ctx ends first, ErrClosed once closed and empty.
	Dequeue(ctx context.Context) ([]*Item, error)

	// Len returns the number of pending items.
	Len() int

	// Close stops further enqueues. Pending items remain dequeueable.
	Close() error
}

// Config configures a MemoryQueue.
type Config struct {
	// Mode selects FIFO or keyed delivery.
	// Default: ModeFIFO
	Mode Mode

	// KeyFunc derives a key for items enqueued without one (keyed mode only).
	KeyFunc KeyFunc
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{Mode: ModeFIFO}
}

func generateID() string {
	return uuid.New().String()
}
