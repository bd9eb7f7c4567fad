package bus

import (
	"time"

	werrors "github.com/vinayprograms/workkit/errors"
)

// Common errors.
var (
	ErrClosed         = werrors.New(werrors.ErrCodeClosed, "bus closed")
	ErrTimeout        = werrors.New(werrors.ErrCodeTimeout, "request timeout")
	ErrNoResponders   = werrors.New(werrors.ErrCodeInternal, "no responders")
	ErrInvalidSubject = werrors.New(werrors.ErrCodeInvalidArgument, "invalid subject")
)

// Message is a message received from or published to the bus.
type Message struct {
	// Subject the message was published to.
	Subject string

	// Header carries metadata such as trace context. May be nil.
	Header map[string]string

	// Data is the message payload.
	Data []byte

	// Reply is the reply subject for request/reply.
	// Empty for regular pub/sub messages.
	Reply string
}

// MessageBus provides pub/sub and request/reply messaging.
type MessageBus interface {
	// Publish sends data to all subscribers of a subject.
	Publish(subject string, data []byte) error

	// PublishMsg sends a message with headers. msg.Reply is carried through.
	PublishMsg(msg *Message) error

	// Subscribe creates a subscription to a subject.
	// All subscribers receive all messages.
	Subscribe(subject string) (Subscription, error)

	// QueueSubscribe creates a queue subscription.
	// Each message goes to one member of the queue group.
	QueueSubscribe(subject, queue string) (Subscription, error)

	// Request sends a request and waits for a single reply.
	// Returns ErrTimeout if no reply arrives within timeout.
	Request(subject string, data []byte, timeout time.Duration) (*Message, error)

	// Close shuts down the bus. Open subscriptions are closed.
	Close() error
}

// Subscription represents an active subscription.
type Subscription interface {
	// Messages returns the channel for incoming messages.
	// The channel is closed when the subscription ends.
	Messages() <-chan *Message

	// Unsubscribe cancels the subscription.
	Unsubscribe() error
}

// Config holds common bus configuration.
type Config struct {
	// BufferSize for subscription channels.
	// Default: 256
	BufferSize int

	// OnDrop is called for each message dropped because a subscriber's
	// buffer was full. Must not block.
	OnDrop func(msg *Message)
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize: 256,
	}
}

func (c *Config) applyDefaults() {
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultConfig().BufferSize
	}
}

func (c *Config) dropped(msg *Message) {
	if c.OnDrop != nil {
		c.OnDrop(msg)
	}
}

// ValidateSubject checks if a subject is valid for publishing.
func ValidateSubject(subject string) error {
	if subject == "" {
		return ErrInvalidSubject
	}
	return nil
}

func copyHeader(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
