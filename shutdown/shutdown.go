package shutdown

import (
	"context"
	"time"

	werrors "github.com/vinayprograms/workkit/errors"
)

// Common errors. They carry workkit error codes, so both errors.Is and
// werrors.Is work on results joined with handler failures.
var (
	ErrTimeout       = werrors.New(werrors.ErrCodeTimeout, "shutdown deadline exceeded")
	ErrHandlerFailed = werrors.New(werrors.ErrCodeInternal, "shutdown handler failed")
	ErrInvalidConfig = werrors.New(werrors.ErrCodeInvalidArgument, "invalid shutdown configuration")
)

// Standard phases. Lower phases shut down first.
const (
	PhaseFrontDoor = 10 // stop accepting requests
	PhaseWorkers   = 20 // close the admission gate, drain in-flight work
	PhaseBackend   = 30 // flush telemetry, close connections
)

// ShutdownHandler is implemented by components that need graceful shutdown.
type ShutdownHandler interface {
	// OnShutdown is called when shutdown is initiated. The context carries the
	// overall shutdown deadline.
	OnShutdown(ctx context.Context) error
}

// ShutdownFunc adapts a function to ShutdownHandler.
type ShutdownFunc func(ctx context.Context) error

// OnShutdown implements ShutdownHandler.
func (f ShutdownFunc) OnShutdown(ctx context.Context) error {
	return f(ctx)
}

// HandlerResult records one handler run.
type HandlerResult struct {
	Name     string
	Phase    int
	Duration time.Duration
	Err      error
}

// ShutdownResult summarises a completed shutdown. Results are in the order
// handlers finished.
type ShutdownResult struct {
	TotalDuration time.Duration
	Results       []HandlerResult
	Err           error
}

// Failed returns true if any handler failed or the deadline was hit.
func (r *ShutdownResult) Failed() bool {
	return r.Err != nil
}

// FailedHandlers returns the names of handlers that failed.
func (r *ShutdownResult) FailedHandlers() []string {
	var failed []string
	for _, hr := range r.Results {
		if hr.Err != nil {
			failed = append(failed, hr.Name)
		}
	}
	return failed
}

// Config configures the shutdown coordinator.
type Config struct {
	// DefaultTimeout bounds a shutdown started by a signal or by
	// ShutdownWithTimeout(0).
	// Default: 30 seconds
	DefaultTimeout time.Duration

	// DefaultPhase is assigned to handlers registered without a phase.
	// Default: 100
	DefaultPhase int

	// ContinueOnError runs later phases even if a handler failed.
	// Default: true
	ContinueOnError bool

	// OnProgress is called when each handler completes.
	OnProgress func(result HandlerResult)
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.DefaultTimeout < 0 {
		return werrors.Wrap(ErrInvalidConfig, "default timeout must not be negative")
	}
	return nil
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout:  30 * time.Second,
		DefaultPhase:    100,
		ContinueOnError: true,
	}
}

type registration struct {
	name    string
	handler ShutdownHandler
	phase   int
}
