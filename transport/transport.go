package transport

import (
	"context"

	werrors "github.com/vinayprograms/workkit/errors"
)

// Common errors.
var (
	ErrClosed = werrors.New(werrors.ErrCodeClosed, "transport closed")
)

// Transport provides bidirectional activity passing.
type Transport interface {
	// Recv returns channel for incoming activities.
	// Channel is closed when the transport stops reading.
	Recv() <-chan *Activity

	// Send queues an activity for delivery.
	// Returns ErrClosed if transport is closed.
	Send(act *Activity) error

	// Run starts the transport, blocks until ctx cancelled or the peer
	// goes away. Returns nil when the peer closed the connection.
	Run(ctx context.Context) error

	// Close initiates graceful shutdown.
	// Drains pending sends before returning.
	Close() error
}

// Config holds common transport configuration.
type Config struct {
	// RecvBufferSize is the size of the receive channel buffer.
	// Default: 100
	RecvBufferSize int

	// SendBufferSize is the size of the internal send buffer.
	// Default: 100
	SendBufferSize int

	// OnInvalid is called with every inbound frame that does not parse
	// as an activity. Such frames are otherwise dropped.
	OnInvalid func(data []byte, err error)
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RecvBufferSize: 100,
		SendBufferSize: 100,
	}
}

func (c *Config) applyDefaults() {
	if c.RecvBufferSize <= 0 {
		c.RecvBufferSize = DefaultConfig().RecvBufferSize
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = DefaultConfig().SendBufferSize
	}
}

func (c *Config) invalid(data []byte, err error) {
	if c.OnInvalid != nil {
		c.OnInvalid(data, err)
	}
}
