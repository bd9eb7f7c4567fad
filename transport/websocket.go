package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketTransport implements Transport over WebSocket. Each text frame
// carries one activity.
type WebSocketTransport struct {
	conn   *websocket.Conn
	config WebSocketConfig

	recv   chan *Activity
	send   chan *Activity
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

// WebSocketConfig holds WebSocket transport configuration.
type WebSocketConfig struct {
	Config // Embed base config

	// WriteTimeout for write operations.
	WriteTimeout time.Duration

	// MaxMessageSize limits incoming frame size.
	MaxMessageSize int64

	// PingInterval for keepalive pings (0 = disabled).
	PingInterval time.Duration
}

// DefaultWebSocketConfig returns configuration with sensible defaults.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		Config:         DefaultConfig(),
		WriteTimeout:   10 * time.Second,
		MaxMessageSize: 1024 * 1024, // 1MB
		PingInterval:   30 * time.Second,
	}
}

// NewWebSocketTransport creates a transport from an existing connection.
func NewWebSocketTransport(conn *websocket.Conn, cfg WebSocketConfig) *WebSocketTransport {
	cfg.applyDefaults()
	if cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &WebSocketTransport{
		conn:   conn,
		config: cfg,
		recv:   make(chan *Activity, cfg.RecvBufferSize),
		send:   make(chan *Activity, cfg.SendBufferSize),
		done:   make(chan struct{}),
	}
}

// NewWebSocketUpgrader creates an upgrader for accepting WebSocket connections.
func NewWebSocketUpgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true }, // Override in production
	}
}

// Recv returns the channel for incoming activities.
func (t *WebSocketTransport) Recv() <-chan *Activity {
	return t.recv
}

// Send queues an activity for delivery.
func (t *WebSocketTransport) Send(act *Activity) error {
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

// Run starts the transport, blocking until ctx is cancelled or the peer
// disconnects.
func (t *WebSocketTransport) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t.writeLoop()
	}()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		t.readLoop()
	}()

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case <-readDone:
	case <-t.done:
	}

	t.Close()
	wg.Wait()
	<-readDone
	return err
}

// Close initiates graceful shutdown. Queued activities are written before
// the connection closes.
func (t *WebSocketTransport) Close() error {
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

// readLoop reads frames until the connection fails.
func (t *WebSocketTransport) readLoop() {
	defer close(t.recv)

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			// Normal closure, going away and broken pipes all end the loop.
			return
		}

		act, err := ParseActivity(data)
		if err != nil {
			t.config.invalid(data, err)
			continue
		}

		select {
		case t.recv <- act:
		case <-t.done:
			return
		}
	}
}

// writeLoop writes queued activities until Close, then flushes and closes
// the connection.
func (t *WebSocketTransport) writeLoop() {
	ticker := t.createPingTicker()
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			t.drainSendQueue()
			t.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			t.conn.Close()
			return
		case <-ticker.C:
			t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
		case act := <-t.send:
			t.writeActivity(act)
		}
	}
}

// createPingTicker creates a ticker for keepalive pings.
func (t *WebSocketTransport) createPingTicker() *time.Ticker {
	if t.config.PingInterval > 0 {
		return time.NewTicker(t.config.PingInterval)
	}
	// Return a ticker that never fires
	ticker := time.NewTicker(time.Hour)
	ticker.Stop()
	return ticker
}

// drainSendQueue writes remaining activities before shutdown.
func (t *WebSocketTransport) drainSendQueue() {
	for {
		select {
		case act := <-t.send:
			t.writeActivity(act)
		default:
			return
		}
	}
}

// writeActivity serializes and writes a single activity. Only the write
// loop calls it, so writes never overlap.
func (t *WebSocketTransport) writeActivity(act *Activity) {
	data, err := MarshalActivity(act)
	if err != nil {
		return
	}
	if t.config.WriteTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
	}
	t.conn.WriteMessage(websocket.TextMessage, data)
}
