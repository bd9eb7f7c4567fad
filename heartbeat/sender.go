package heartbeat

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/vinayprograms/workkit/bus"
)

// BusSender publishes heartbeats over a message bus.
type BusSender struct {
	bus      bus.MessageBus
	instance string
	interval time.Duration
	load     LoadFunc
	metadata map[string]string

	running atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewBusSender creates a new heartbeat sender.
func NewBusSender(cfg SenderConfig) (*BusSender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultSenderConfig().Interval
	}

	metadata := make(map[string]string, len(cfg.Metadata))
	for k, v := range cfg.Metadata {
		metadata[k] = v
	}

	return &BusSender{
		bus:      cfg.Bus,
		instance: cfg.Instance,
		interval: interval,
		load:     cfg.Load,
		metadata: metadata,
	}, nil
}

// Start begins sending heartbeats at the configured interval. The first
// one is sent immediately.
func (s *BusSender) Start(ctx context.Context) error {
	if s.running.Swap(true) {
		return ErrAlreadyStarted
	}

	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.run(ctx)
	return nil
}

func (s *BusSender) run(ctx context.Context) {
	defer close(s.doneCh)

	s.send("")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.send("")
		}
	}
}

// send publishes a heartbeat. An empty status is derived from the load.
func (s *BusSender) send(status string) error {
	data, err := s.build(status).Marshal()
	if err != nil {
		return err
	}
	return s.bus.Publish(Subject, data)
}

func (s *BusSender) build(status string) *Heartbeat {
	hb := &Heartbeat{
		Instance:  s.instance,
		Timestamp: time.Now(),
		Status:    StatusRunning,
	}
	if s.load != nil {
		load := s.load()
		hb.Pending = load.Pending
		hb.Inflight = load.Inflight
		if load.Draining {
			hb.Status = StatusDraining
		}
	}
	if status != "" {
		hb.Status = status
	}
	if len(s.metadata) > 0 {
		hb.Metadata = make(map[string]string, len(s.metadata))
		for k, v := range s.metadata {
			hb.Metadata[k] = v
		}
	}
	return hb
}

// Stop stops sending heartbeats and announces the instance as stopped.
func (s *BusSender) Stop() error {
	if !s.running.Swap(false) {
		return ErrNotStarted
	}
	close(s.stopCh)
	<-s.doneCh
	return s.send(StatusStopped)
}

// OnShutdown implements shutdown.ShutdownHandler.
func (s *BusSender) OnShutdown(ctx context.Context) error {
	err := s.Stop()
	if errors.Is(err, ErrNotStarted) || errors.Is(err, bus.ErrClosed) {
		return nil
	}
	return err
}

// Instance returns the sender's instance ID.
func (s *BusSender) Instance() string {
	return s.instance
}
