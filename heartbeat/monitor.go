package heartbeat

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vinayprograms/workkit/bus"
)

// BusMonitor tracks instance heartbeats on a message bus.
type BusMonitor struct {
	bus           bus.MessageBus
	timeout       time.Duration
	checkInterval time.Duration

	mu       sync.RWMutex
	lastSeen map[string]*Heartbeat
	received map[string]time.Time // local receive time, immune to clock skew
	deadCBs  []func(string)
	watchers []chan *Heartbeat

	running atomic.Bool
	sub     bus.Subscription
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewBusMonitor creates a new heartbeat monitor.
func NewBusMonitor(cfg MonitorConfig) (*BusMonitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultMonitorConfig().Timeout
	}

	checkInterval := cfg.CheckInterval
	if checkInterval <= 0 {
		checkInterval = DefaultMonitorConfig().CheckInterval
	}

	return &BusMonitor{
		bus:           cfg.Bus,
		timeout:       timeout,
		checkInterval: checkInterval,
		lastSeen:      make(map[string]*Heartbeat),
		received:      make(map[string]time.Time),
	}, nil
}

// Start subscribes to heartbeats and begins checking for dead instances.
func (m *BusMonitor) Start() error {
	if m.running.Swap(true) {
		return ErrAlreadyStarted
	}

	sub, err := m.bus.Subscribe(Subject)
	if err != nil {
		m.running.Store(false)
		return err
	}
	m.sub = sub
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})

	go m.run()
	return nil
}

// Watch returns a channel receiving every heartbeat. It is closed by Stop.
// Heartbeats are dropped for a watcher that falls behind.
func (m *BusMonitor) Watch() <-chan *Heartbeat {
	ch := make(chan *Heartbeat, 64)
	m.mu.Lock()
	m.watchers = append(m.watchers, ch)
	m.mu.Unlock()
	return ch
}

func (m *BusMonitor) run() {
	defer close(m.doneCh)

	checkTicker := time.NewTicker(m.checkInterval)
	defer checkTicker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case msg, ok := <-m.sub.Messages():
			if !ok {
				return
			}
			m.receive(msg)
		case <-checkTicker.C:
			m.checkDead(time.Now())
		}
	}
}

// receive records a heartbeat. A stopped instance is forgotten.
func (m *BusMonitor) receive(msg *bus.Message) {
	hb, err := Unmarshal(msg.Data)
	if err != nil || hb.Instance == "" {
		return
	}

	m.mu.Lock()
	if hb.Status == StatusStopped {
		delete(m.lastSeen, hb.Instance)
		delete(m.received, hb.Instance)
	} else {
		m.lastSeen[hb.Instance] = hb
		m.received[hb.Instance] = time.Now()
	}
	watchers := make([]chan *Heartbeat, len(m.watchers))
	copy(watchers, m.watchers)
	m.mu.Unlock()

	for _, ch := range watchers {
		select {
		case ch <- hb:
		default:
		}
	}
}

// checkDead reports instances silent for longer than the timeout, once
// each. A reported instance is forgotten until it sends again.
func (m *BusMonitor) checkDead(now time.Time) {
	var dead []string

	m.mu.Lock()
	for instance, at := range m.received {
		if now.Sub(at) > m.timeout {
			dead = append(dead, instance)
			delete(m.received, instance)
			delete(m.lastSeen, instance)
		}
	}
	callbacks := make([]func(string), len(m.deadCBs))
	copy(callbacks, m.deadCBs)
	m.mu.Unlock()

	sort.Strings(dead)
	for _, instance := range dead {
		for _, cb := range callbacks {
			cb(instance)
		}
	}
}

// IsAlive reports whether an instance has sent a heartbeat within the
// timeout.
func (m *BusMonitor) IsAlive(instance string) bool {
	m.mu.RLock()
	at, ok := m.received[instance]
	m.mu.RUnlock()
	return ok && time.Since(at) <= m.timeout
}

// LastHeartbeat returns the last heartbeat from an instance, or nil.
func (m *BusMonitor) LastHeartbeat(instance string) *Heartbeat {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSeen[instance]
}

// Instances returns the known live instances, sorted.
func (m *BusMonitor) Instances() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	instances := make([]string, 0, len(m.lastSeen))
	for instance := range m.lastSeen {
		instances = append(instances, instance)
	}
	sort.Strings(instances)
	return instances
}

// OnDead registers a callback for when an instance is presumed dead.
// Callbacks run on the monitor goroutine and must not block.
func (m *BusMonitor) OnDead(callback func(instance string)) {
	m.mu.Lock()
	m.deadCBs = append(m.deadCBs, callback)
	m.mu.Unlock()
}

// Stop stops monitoring and closes watcher channels.
func (m *BusMonitor) Stop() error {
	if !m.running.Swap(false) {
		return ErrNotStarted
	}

	m.sub.Unsubscribe()
	close(m.stopCh)
	<-m.doneCh

	m.mu.Lock()
	for _, ch := range m.watchers {
		close(ch)
	}
	m.watchers = nil
	m.mu.Unlock()

	return nil
}
