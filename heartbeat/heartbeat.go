package heartbeat

import (
	"encoding/json"
	"time"

	"github.com/vinayprograms/workkit/bus"
	werrors "github.com/vinayprograms/workkit/errors"
)

// Common errors.
var (
	ErrAlreadyStarted = werrors.New(werrors.ErrCodeAlreadyStarted, "heartbeat already started")
	ErrNotStarted     = werrors.New(werrors.ErrCodeClosed, "heartbeat not started")
	ErrInvalidConfig  = werrors.New(werrors.ErrCodeInvalidArgument, "invalid heartbeat configuration")
)

// Subject carries every instance's heartbeats.
const Subject = "workkit.heartbeat"

// Instance statuses.
const (
	StatusRunning  = "running"
	StatusDraining = "draining"
	StatusStopped  = "stopped"
)

// Heartbeat is a single liveness signal from an instance.
type Heartbeat struct {
	// Instance uniquely identifies the sending service instance.
	Instance string `json:"instance"`

	// Timestamp when the heartbeat was generated.
	Timestamp time.Time `json:"timestamp"`

	// Status is running, draining or stopped.
	Status string `json:"status"`

	// Pending is the number of queued work items.
	Pending int `json:"pending"`

	// Inflight is the number of executing work items.
	Inflight int `json:"inflight"`

	// Metadata contains additional key-value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Marshal serializes a heartbeat to JSON.
func (h *Heartbeat) Marshal() ([]byte, error) {
	return json.Marshal(h)
}

// Unmarshal deserializes a heartbeat from JSON.
func Unmarshal(data []byte) (*Heartbeat, error) {
	var h Heartbeat
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Load is the supervisor state reported in heartbeats.
type Load struct {
	Pending  int
	Inflight int
	Draining bool
}

// LoadFunc samples the current load.
type LoadFunc func() Load

// SenderConfig configures a heartbeat sender.
type SenderConfig struct {
	// Bus is the message bus for publishing heartbeats.
	Bus bus.MessageBus

	// Instance is the unique identifier for this service instance.
	Instance string

	// Load samples the supervisor before each heartbeat. Optional.
	Load LoadFunc

	// Metadata is copied into every heartbeat. Optional.
	Metadata map[string]string

	// Interval between heartbeats.
	// Default: 5 seconds
	Interval time.Duration
}

// Validate checks the configuration.
func (c *SenderConfig) Validate() error {
	if c.Bus == nil {
		return werrors.Wrap(ErrInvalidConfig, "bus is required")
	}
	if c.Instance == "" {
		return werrors.Wrap(ErrInvalidConfig, "instance is required")
	}
	if c.Interval < 0 {
		return werrors.Wrap(ErrInvalidConfig, "interval must not be negative")
	}
	return nil
}

// DefaultSenderConfig returns configuration with sensible defaults.
func DefaultSenderConfig() SenderConfig {
	return SenderConfig{
		Interval: 5 * time.Second,
	}
}

// MonitorConfig configures a heartbeat monitor.
type MonitorConfig struct {
	// Bus is the message bus for subscribing to heartbeats.
	Bus bus.MessageBus

	// Timeout for considering an instance dead.
	// Should be 2-3x the expected heartbeat interval.
	// Default: 15 seconds
	Timeout time.Duration

	// CheckInterval for the dead instance checker.
	// Default: 1 second
	CheckInterval time.Duration
}

// Validate checks the configuration.
func (c *MonitorConfig) Validate() error {
	if c.Bus == nil {
		return werrors.Wrap(ErrInvalidConfig, "bus is required")
	}
	if c.Timeout < 0 || c.CheckInterval < 0 {
		return werrors.Wrap(ErrInvalidConfig, "durations must not be negative")
	}
	return nil
}

// DefaultMonitorConfig returns configuration with sensible defaults.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Timeout:       15 * time.Second,
		CheckInterval: 1 * time.Second,
	}
}
