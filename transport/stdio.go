package transport

import (
	"bufio"
	"context"
	"io"
	"sync"
)

// StdioTransport implements Transport over a reader and writer, one JSON
// activity per line.
type StdioTransport struct {
	reader io.Reader
	writer io.Writer
	config Config

	recv   chan *Activity
	send   chan *Activity
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

// NewStdioTransport creates a new stdio transport.
func NewStdioTransport(r io.Reader, w io.Writer, cfg Config) *StdioTransport {
	cfg.applyDefaults()

	return &StdioTransport{
		reader: r,
		writer: w,
		config: cfg,
		recv:   make(chan *Activity, cfg.RecvBufferSize),
		send:   make(chan *Activity, cfg.SendBufferSize),
		done:   make(chan struct{}),
	}
}

// Recv returns the channel for incoming activities. It is closed at end of
// input.
func (t *StdioTransport) Recv() <-chan *Activity {
	return t.recv
}

// Send queues an activity for delivery.
func (t *StdioTransport) Send(act *Activity) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.mu.Unlock()

	select {
	case t.send <- act:
		return nil
	case <-t.done:
		return ErrClosed
	}
}

// Run starts the transport, blocking until ctx is cancelled or Close is
// called. End of input does not stop the writer, so replies produced later
// are still delivered.
func (t *StdioTransport) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t.writeLoop()
	}()

	// The reader is not joined: a blocked Read on stdin cannot be interrupted.
	go t.readLoop()

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case <-t.done:
	}

	t.Close()
	wg.Wait()
	return err
}

// Close initiates graceful shutdown.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	t.mu.Unlock()

	return nil
}

// readLoop reads from input and sends to recv channel.
func (t *StdioTransport) readLoop() {
	defer close(t.recv)

	scanner := bufio.NewScanner(t.reader)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB buffer

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		act, err := ParseActivity(line)
		if err != nil {
			t.config.invalid(append([]byte(nil), line...), err)
			continue
		}

		select {
		case t.recv <- act:
		case <-t.done:
			return
		}
	}
}

// writeLoop reads from send channel and writes to output.
func (t *StdioTransport) writeLoop() {
	for {
		select {
		case <-t.done:
			t.drainSendQueue()
			return
		case act := <-t.send:
			t.writeActivity(act)
		}
	}
}

// drainSendQueue writes any remaining activities in the send queue.
func (t *StdioTransport) drainSendQueue() {
	for {
		select {
		case act := <-t.send:
			t.writeActivity(act)
		default:
			return
		}
	}
}

// writeActivity serializes and writes a single activity.
func (t *StdioTransport) writeActivity(act *Activity) {
	data, err := MarshalActivity(act)
	if err != nil {
		return
	}
	t.writer.Write(append(data, '\n'))
}
