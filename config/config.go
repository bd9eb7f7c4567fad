// Package config loads workkit service configuration from TOML files and
// WORKKIT_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	werrors "github.com/vinayprograms/workkit/errors"
)

// ErrInvalidConfig is returned by Validate and by malformed overrides.
var ErrInvalidConfig = werrors.New(werrors.ErrCodeInvalidArgument, "invalid configuration")

// EnvPrefix prefixes every environment override.
const EnvPrefix = "WORKKIT_"

// Config is the complete service configuration.
type Config struct {
	// ShutdownTimeoutSeconds bounds the drain of in-flight work and the whole
	// process shutdown.
	ShutdownTimeoutSeconds int `toml:"shutdown_timeout_seconds"`

	// GateTimeout bounds the wait for outstanding admissions when the
	// admission gate closes.
	GateTimeout time.Duration `toml:"gate_timeout"`

	// Keyed enables per-conversation queueing.
	Keyed bool `toml:"keyed"`

	HTTP      HTTPConfig      `toml:"http"`
	Bus       BusConfig       `toml:"bus"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Log       LogConfig       `toml:"log"`
}

// HTTPConfig configures the HTTP and WebSocket front door.
type HTTPConfig struct {
	// Addr is the listen address. Empty disables the HTTP front door.
	Addr string `toml:"addr"`

	// DedupWindow is how long activity IDs are remembered for duplicate
	// suppression. Zero disables deduplication.
	DedupWindow time.Duration `toml:"dedup_window"`

	// ReadHeaderTimeout bounds reading request headers.
	ReadHeaderTimeout time.Duration `toml:"read_header_timeout"`
}

// BusConfig configures the message bus front door.
type BusConfig struct {
	// Kind is "", "memory" or "nats". Empty disables the bus front door.
	Kind string `toml:"kind"`

	// URL is the NATS server URL.
	URL string `toml:"url"`

	// Subject carries inbound activities.
	Subject string `toml:"subject"`

	// QueueGroup load-balances activities across service instances.
	QueueGroup string `toml:"queue_group"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled     bool   `toml:"enabled"`
	ServiceName string `toml:"service_name"`
	Endpoint    string `toml:"endpoint"`
	Protocol    string `toml:"protocol"`
	Insecure    bool   `toml:"insecure"`
	Debug       bool   `toml:"debug"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is DEBUG, INFO, WARN or ERROR.
	Level string `toml:"level"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ShutdownTimeoutSeconds: 30,
		GateTimeout:            5 * time.Second,
		HTTP: HTTPConfig{
			Addr:              ":3978",
			DedupWindow:       5 * time.Minute,
			ReadHeaderTimeout: 10 * time.Second,
		},
		Bus: BusConfig{
			Subject:    "workkit.activities",
			QueueGroup: "workkit",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "workkit",
			Protocol:    "grpc",
		},
		Log: LogConfig{Level: "INFO"},
	}
}

// ShutdownTimeout returns ShutdownTimeoutSeconds as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("%w: shutdown_timeout_seconds must be positive, got %d", ErrInvalidConfig, c.ShutdownTimeoutSeconds)
	}
	if c.GateTimeout < 0 {
		return fmt.Errorf("%w: gate_timeout must not be negative", ErrInvalidConfig)
	}
	if c.HTTP.DedupWindow < 0 {
		return fmt.Errorf("%w: http.dedup_window must not be negative", ErrInvalidConfig)
	}
	switch c.Bus.Kind {
	case "", "memory":
	case "nats":
		if c.Bus.URL == "" {
			return fmt.Errorf("%w: bus.url is required for nats", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown bus.kind %q", ErrInvalidConfig, c.Bus.Kind)
	}
	if c.Bus.Kind != "" && c.Bus.Subject == "" {
		return fmt.Errorf("%w: bus.subject is required", ErrInvalidConfig)
	}
	switch c.Telemetry.Protocol {
	case "", "grpc", "http":
	default:
		return fmt.Errorf("%w: unknown telemetry.protocol %q", ErrInvalidConfig, c.Telemetry.Protocol)
	}
	switch strings.ToUpper(c.Log.Level) {
	case "", "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("%w: unknown log.level %q", ErrInvalidConfig, c.Log.Level)
	}
	return nil
}

// StandardPaths returns the config file locations in order of priority.
func StandardPaths() []string {
	paths := []string{"workkit.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "workkit", "workkit.toml"))
	}
	return paths
}

// Load loads the first config file found in StandardPaths, returning the
// path it used. Defaults are returned with an empty path if none exists.
func Load() (*Config, string, error) {
	for _, path := range StandardPaths() {
		if _, err := os.Stat(path); err == nil {
			cfg, err := LoadFile(path)
			if err != nil {
				return nil, path, err
			}
			return cfg, path, nil
		}
	}
	return DefaultConfig(), "", nil
}

// LoadFile loads a TOML file over the defaults. Unknown keys are an error.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: %s: unknown keys %s", ErrInvalidConfig, path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// ApplyEnv overrides fields from WORKKIT_* environment variables.
//
//	WORKKIT_SHUTDOWN_TIMEOUT_SECONDS  integer
//	WORKKIT_GATE_TIMEOUT              duration ("5s")
//	WORKKIT_KEYED                     bool
//	WORKKIT_HTTP_ADDR                 string
//	WORKKIT_BUS_KIND, WORKKIT_BUS_URL string
//	WORKKIT_LOG_LEVEL                 string
//	WORKKIT_TELEMETRY_ENDPOINT        string (also enables telemetry)
func (c *Config) ApplyEnv() error {
	if v, ok := lookup("SHUTDOWN_TIMEOUT_SECONDS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError("SHUTDOWN_TIMEOUT_SECONDS", v, err)
		}
		c.ShutdownTimeoutSeconds = n
	}
	if v, ok := lookup("GATE_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return envError("GATE_TIMEOUT", v, err)
		}
		c.GateTimeout = d
	}
	if v, ok := lookup("KEYED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return envError("KEYED", v, err)
		}
		c.Keyed = b
	}
	if v, ok := lookup("HTTP_ADDR"); ok {
		c.HTTP.Addr = v
	}
	if v, ok := lookup("BUS_KIND"); ok {
		c.Bus.Kind = v
	}
	if v, ok := lookup("BUS_URL"); ok {
		c.Bus.URL = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := lookup("TELEMETRY_ENDPOINT"); ok {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = v != ""
	}
	return nil
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	return strings.TrimSpace(v), ok
}

func envError(name, value string, err error) error {
	return fmt.Errorf("%w: %s%s=%q: %v", ErrInvalidConfig, EnvPrefix, name, value, err)
}
