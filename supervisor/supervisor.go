package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	werrors "github.com/vinayprograms/workkit/errors"
	"github.com/vinayprograms/workkit/inflight"
	"github.com/vinayprograms/workkit/logging"
	"github.com/vinayprograms/workkit/metrics"
	"github.com/vinayprograms/workkit/queue"
	"github.com/vinayprograms/workkit/shutdown"
	"github.com/vinayprograms/workkit/telemetry"
)

// Common errors.
var (
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = werrors.New(werrors.ErrCodeAlreadyStarted, "supervisor already started")

	// ErrDrainTimeout is returned by Stop when the drain window elapsed with
	// work still running. It is informational.
	ErrDrainTimeout = werrors.New(werrors.ErrCodeDrainTimeout, "drain timeout elapsed with work in flight")

	// ErrExecutionFailed classifies a work item that returned an error or panicked.
	ErrExecutionFailed = werrors.New(werrors.ErrCodeExecutionFailed, "work item failed")

	// ErrPanicked is the cause of ErrExecutionFailed when the item panicked.
	ErrPanicked = werrors.New(werrors.ErrCodePanic, "work item panicked")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = werrors.New(werrors.ErrCodeInvalidArgument, "invalid supervisor configuration")
)

// Config configures a Service.
type Config struct {
	// Mode selects FIFO or keyed queueing.
	// Default: queue.ModeFIFO
	Mode queue.Mode

	// KeyFunc derives a key for items submitted without one (keyed mode only).
	KeyFunc queue.KeyFunc

	// GateTimeout bounds the wait for outstanding admissions when Stop
	// closes the gate. Shutdown proceeds when it elapses.
	// Default: 5 seconds
	GateTimeout time.Duration

	// DrainTimeout is the drain window used by OnShutdown and by
	// Stop(DefaultDrain).
	// Default: 30 seconds
	DrainTimeout time.Duration

	// RejectLogInterval throttles ADMISSION_REJECTED logging. The first
	// rejections are always logged, then at most one per interval.
	// Default: 1 second
	RejectLogInterval time.Duration
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Mode:              queue.ModeFIFO,
		GateTimeout:       5 * time.Second,
		DrainTimeout:      30 * time.Second,
		RejectLogInterval: time.Second,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.GateTimeout < 0 || c.DrainTimeout < 0 || c.RejectLogInterval < 0 {
		return ErrInvalidConfig
	}
	if c.Mode != queue.ModeFIFO && c.Mode != queue.ModeKeyed {
		return ErrInvalidConfig
	}
	return nil
}

// Result describes one finished work item.
type Result struct {
	ID       string
	Key      string
	Duration time.Duration
	Err      error
}

// Stats is a snapshot of the service counters.
type Stats struct {
	Submitted uint64
	Admitted  uint64
	Rejected  uint64
	Completed uint64
	Failed    uint64
	Pending   int
	Inflight  int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Default: logging.New() with component "supervisor".
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l.WithComponent("supervisor") }
}

// WithTracer sets the tracer. Default: telemetry.GetTracer().
func WithTracer(t *telemetry.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithMetrics sets the Prometheus collector. Default: none.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

// WithOnComplete registers a hook called after each admitted item finishes
// and before it leaves the in-flight registry.
func WithOnComplete(fn func(Result)) Option {
	return func(s *Service) { s.onComplete = fn }
}

// Service is the background-work supervisor.
type Service struct {
	config   Config
	queue    *queue.MemoryQueue
	gate     *shutdown.Gate
	registry *inflight.Registry

	logger     *logging.Logger
	tracer     *telemetry.Tracer
	metrics    *metrics.Collector
	onComplete func(Result)
	rejectLog  rate.Sometimes

	started  atomic.Bool
	draining atomic.Bool
	loopDone chan struct{}

	stopOnce sync.Once
	stopErr  error

	// chain maps a key to the completion signal of its most recently
	// dispatched item. Written by the loop, pruned by execution goroutines.
	chainMu sync.Mutex
	chain   map[string]<-chan struct{}

	submitted atomic.Uint64
	admitted  atomic.Uint64
	rejected  atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
}

// New creates a Service. Zero config fields take their defaults.
func New(cfg Config, opts ...Option) *Service {
	defaults := DefaultConfig()
	if cfg.GateTimeout == 0 {
		cfg.GateTimeout = defaults.GateTimeout
	}
	if cfg.DrainTimeout == 0 {
		cfg.DrainTimeout = defaults.DrainTimeout
	}
	if cfg.RejectLogInterval == 0 {
		cfg.RejectLogInterval = defaults.RejectLogInterval
	}

	s := &Service{
		config:    cfg,
		queue:     queue.NewMemoryQueue(queue.Config{Mode: cfg.Mode, KeyFunc: cfg.KeyFunc}),
		gate:      shutdown.NewGate(),
		registry:  inflight.NewRegistry(),
		logger:    logging.New().WithComponent("supervisor"),
		tracer:    telemetry.GetTracer(),
		rejectLog: rate.Sometimes{First: 10, Interval: cfg.RejectLogInterval},
		loopDone:  make(chan struct{}),
		chain:     make(map[string]<-chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit hands work off for asynchronous execution and returns immediately.
// It fails only for a nil work func (queue.ErrInvalidItem) or after Stop
// (queue.ErrClosed). A nil error says nothing about whether the item will be
// admitted.
func (s *Service) Submit(work queue.WorkFunc, key string) error {
	if err := s.queue.Submit(work, key); err != nil {
		return err
	}
	s.submitted.Add(1)
	s.metrics.Submitted()
	s.metrics.SetQueueDepth(s.queue.Len())
	return nil
}

// Start launches the supervisor loop. The loop runs until ctx is cancelled or
// Stop has closed and emptied the queue. ctx is also handed to every work
// item. A second call returns ErrAlreadyStarted.
func (s *Service) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	s.logger.Info("supervisor started", map[string]interface{}{
		"mode": s.queue.Mode().String(),
	})
	go s.run(ctx)
	return nil
}

// Done is closed when the supervisor loop has exited.
func (s *Service) Done() <-chan struct{} {
	return s.loopDone
}

// Draining reports whether Stop has been called.
func (s *Service) Draining() bool {
	return s.draining.Load()
}

// Stats returns a snapshot of the service counters.
func (s *Service) Stats() Stats {
	return Stats{
		Submitted: s.submitted.Load(),
		Admitted:  s.admitted.Load(),
		Rejected:  s.rejected.Load(),
		Completed: s.completed.Load(),
		Failed:    s.failed.Load(),
		Pending:   s.queue.Len(),
		Inflight:  s.registry.Len(),
	}
}

func (s *Service) run(ctx context.Context) {
	defer close(s.loopDone)

	for {
		items, err := s.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) {
				s.logger.Debug("queue closed, supervisor loop exiting")
			} else {
				s.logger.Debug("supervisor loop cancelled", map[string]interface{}{
					"code": string(werrors.CodeOf(err)),
				})
			}
			return
		}
		s.metrics.SetQueueDepth(s.queue.Len())

		for _, item := range items {
			s.dispatch(ctx, item)
		}
	}
}

// dispatch admits, registers and spawns one item. The admission token is
// held only until the item is registered, so a closed gate guarantees every
// admitted item is visible to the drain.
func (s *Service) dispatch(ctx context.Context, item *queue.Item) {
	token, err := s.gate.Admit()
	if err != nil {
		s.reject(item, err)
		return
	}
	defer token.Release()

	entry := inflight.NewEntry(item.ID, item.Key)
	if err := s.registry.Add(entry); err != nil {
		// IDs are uuids; a collision means the caller reused an ID.
		s.logger.Error("work item not registered", map[string]interface{}{
			"item":  item.ID,
			"error": err.Error(),
		})
		return
	}

	waited := entry.StartedAt.Sub(item.EnqueuedAt)
	s.admitted.Add(1)
	s.metrics.Admitted(waited)
	s.logger.WorkAdmitted(item.ID, item.Key, waited)

	var prev <-chan struct{}
	if item.Key != "" {
		prev = s.link(item.Key, entry.Done())
	}
	go s.execute(ctx, item, entry, waited, prev)
}

// link makes done the completion signal for key and returns the signal of
// the item dispatched before it, or nil.
func (s *Service) link(key string, done <-chan struct{}) (prev <-chan struct{}) {
	s.chainMu.Lock()
	prev = s.chain[key]
	s.chain[key] = done
	s.chainMu.Unlock()
	return prev
}

// unlink drops key's completion signal if no later item replaced it.
func (s *Service) unlink(key string, done <-chan struct{}) {
	s.chainMu.Lock()
	if s.chain[key] == done {
		delete(s.chain, key)
	}
	s.chainMu.Unlock()
}

// execute runs one item once the previous item with the same key has
// finished, so items sharing a key run one at a time in submission order.
// Unkeyed items run as soon as they are admitted.
func (s *Service) execute(ctx context.Context, item *queue.Item, entry *inflight.Entry, waited time.Duration, prev <-chan struct{}) {
	if prev != nil {
		<-prev
	}

	begin := time.Now()
	spanCtx, span := s.tracer.StartWorkSpan(ctx, telemetry.WorkSpanOptions{
		ID:     item.ID,
		Key:    item.Key,
		Waited: waited,
	})

	err := invoke(spanCtx, item.Work)
	elapsed := time.Since(begin)
	s.tracer.EndWorkSpan(span, err)

	reason := ""
	if err != nil {
		reason = metrics.ReasonError
		if errors.Is(err, ErrPanicked) {
			reason = metrics.ReasonPanic
		}
		s.failed.Add(1)
		s.logger.WorkFailed(item.ID, item.Key, elapsed, err)
	} else {
		s.logger.WorkComplete(item.ID, item.Key, elapsed)
	}
	s.completed.Add(1)
	s.metrics.Finished(elapsed, reason)

	if s.onComplete != nil {
		s.onComplete(Result{ID: item.ID, Key: item.Key, Duration: elapsed, Err: err})
	}

	entry.Finish()
	if item.Key != "" {
		s.unlink(item.Key, entry.Done())
	}
	s.registry.Remove(entry.ID)
	s.registry.Sweep()
}

// invoke runs work, converting a returned error or a panic into
// EXECUTION_FAILED.
func invoke(ctx context.Context, work queue.WorkFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			cause := werrors.Newf(werrors.ErrCodePanic, "work item panicked: %v", r)
			err = werrors.WrapWithCode(cause, werrors.ErrCodeExecutionFailed, "work item failed")
		}
	}()

	if err := work(ctx); err != nil {
		return werrors.WrapWithCode(err, werrors.ErrCodeExecutionFailed, "work item failed")
	}
	return nil
}

func (s *Service) reject(item *queue.Item, err error) {
	s.rejected.Add(1)
	s.metrics.Rejected()
	s.rejectLog.Do(func() {
		s.logger.WorkRejected(item.ID, item.Key, err)
	})
}

// DefaultDrain asks Stop to use Config.DrainTimeout. Any negative timeout
// does the same.
const DefaultDrain time.Duration = -1

// Stop closes admission and drains in-flight work, waiting at most timeout.
// A negative timeout means Config.DrainTimeout; zero checks the registry once
// right after the gate closes. Items still queued are discarded and logged
// as rejected. Returns ErrDrainTimeout if work was still running when the
// window elapsed. Later calls return the first result.
func (s *Service) Stop(timeout time.Duration) error {
	s.stopOnce.Do(func() {
		s.stopErr = s.stop(timeout)
	})
	return s.stopErr
}

func (s *Service) stop(timeout time.Duration) error {
	if timeout < 0 {
		timeout = s.config.DrainTimeout
	}
	_, span := s.tracer.StartDrainSpan(context.Background())

	gateCtx, cancelGate := context.WithTimeout(context.Background(), s.config.GateTimeout)
	if err := s.gate.Close(gateCtx); err != nil {
		s.logger.Warn("admission gate did not settle, proceeding with shutdown", map[string]interface{}{
			"active":  s.gate.Active(),
			"timeout": s.config.GateTimeout.String(),
		})
	}
	cancelGate()

	s.draining.Store(true)
	_ = s.queue.Close()

	if discarded := s.queue.Drain(); len(discarded) > 0 {
		for _, item := range discarded {
			s.reject(item, shutdown.ErrGateClosed)
		}
		s.logger.Warn("discarded queued work", map[string]interface{}{
			"count": len(discarded),
		})
	}
	s.metrics.SetQueueDepth(0)

	inflightCount := s.registry.Len()
	s.logger.DrainStart(inflightCount, timeout)
	begin := time.Now()

	waitCtx, cancelWait := context.WithTimeout(context.Background(), timeout)
	defer cancelWait()

	if err := s.registry.Wait(waitCtx); err != nil {
		abandoned := s.registry.Len()
		s.logger.DrainTimeout(abandoned, timeout)
		s.metrics.DrainTimedOut()
		s.tracer.EndDrainSpan(span, telemetry.DrainSpanOptions{
			Inflight:  inflightCount,
			Abandoned: abandoned,
			Timeout:   timeout,
		}, ErrDrainTimeout)
		return ErrDrainTimeout
	}

	s.logger.DrainComplete(time.Since(begin))
	s.tracer.EndDrainSpan(span, telemetry.DrainSpanOptions{
		Inflight: inflightCount,
		Timeout:  timeout,
	}, nil)
	return nil
}

// OnShutdown implements shutdown.ShutdownHandler. The drain window is
// Config.DrainTimeout, shortened to fit ctx's deadline.
func (s *Service) OnShutdown(ctx context.Context) error {
	timeout := s.config.DrainTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout < 0 {
		timeout = 0
	}
	return s.Stop(timeout)
}

var _ shutdown.ShutdownHandler = (*Service)(nil)
