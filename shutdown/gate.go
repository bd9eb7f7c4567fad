package shutdown

import (
	"context"
	"sync"

	werrors "github.com/vinayprograms/workkit/errors"
)

// ErrGateClosed is returned by Admit once Close has been called.
var ErrGateClosed = werrors.New(werrors.ErrCodeAdmissionRejected, "admission gate closed: shutting down")

// GateState is the admission gate's lifecycle state.
type GateState int32

const (
	// GateOpen admits any number of concurrent holders.
	GateOpen GateState = iota

	// GateClosing rejects new admissions; some admissions are still held.
	GateClosing

	// GateClosed rejects new admissions and no admissions are held.
	GateClosed
)

// String returns the state name.
func (s GateState) String() string {
	switch s {
	case GateOpen:
		return "open"
	case GateClosing:
		return "closing"
	case GateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Gate admits many concurrent holders until Close is called, after which it
// admits nobody for the rest of its life.
type Gate struct {
	mu      sync.Mutex
	state   GateState
	active  int
	drained chan struct{} // closed on entering GateClosed
}

// NewGate creates an open gate.
func NewGate() *Gate {
	return &Gate{drained: make(chan struct{})}
}

// Admit grants a token if the gate is open. It never waits: there is no
// writer queue to wait behind.
func (g *Gate) Admit() (*Token, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != GateOpen {
		return nil, ErrGateClosed
	}
	g.active++
	return &Token{gate: g}, nil
}

// Close stops admissions and waits for outstanding tokens to be released or
// for ctx to end. On ctx expiry it returns ErrTimeout, and the gate stays
// closed regardless. Calling Close again waits on the same condition.
func (g *Gate) Close(ctx context.Context) error {
	g.mu.Lock()
	if g.state == GateOpen {
		g.state = GateClosing
		g.settleLocked()
	}
	drained := g.drained
	g.mu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ErrTimeout
	}
}

// State returns the current state.
func (g *Gate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Active returns the number of outstanding tokens.
func (g *Gate) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

func (g *Gate) release() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.active--
	g.settleLocked()
}

func (g *Gate) settleLocked() {
	if g.state == GateClosing && g.active == 0 {
		g.state = GateClosed
		close(g.drained)
	}
}

// Token is one admission. Release it once the admitted work has been handed
// off.
type Token struct {
	gate *Gate
	once sync.Once
}

// Release returns the admission. Safe to call more than once and on a nil
// token.
func (t *Token) Release() {
	if t == nil {
		return
	}
	t.once.Do(t.gate.release)
}
