package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workkit.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.ShutdownTimeout() != 30*time.Second {
		t.Errorf("expected 30s shutdown timeout, got %v", cfg.ShutdownTimeout())
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
shutdown_timeout_seconds = 12
gate_timeout = "2s"
keyed = true

[http]
addr = "127.0.0.1:8080"
dedup_window = "1m"

[bus]
kind = "nats"
url = "nats://localhost:4222"

[telemetry]
enabled = true
endpoint = "localhost:4318"
protocol = "http"

[log]
level = "debug"
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	if cfg.ShutdownTimeout() != 12*time.Second {
		t.Errorf("shutdown timeout = %v, want 12s", cfg.ShutdownTimeout())
	}
	if cfg.GateTimeout != 2*time.Second || !cfg.Keyed {
		t.Errorf("unexpected gate/keyed: %v %v", cfg.GateTimeout, cfg.Keyed)
	}
	if cfg.HTTP.Addr != "127.0.0.1:8080" || cfg.HTTP.DedupWindow != time.Minute {
		t.Errorf("unexpected http config: %+v", cfg.HTTP)
	}
	// Unset keys keep their defaults.
	if cfg.HTTP.ReadHeaderTimeout != 10*time.Second || cfg.Bus.Subject != "workkit.activities" {
		t.Errorf("expected defaults to survive, got %+v %+v", cfg.HTTP, cfg.Bus)
	}
	if cfg.Bus.Kind != "nats" || cfg.Telemetry.Protocol != "http" || !cfg.Telemetry.Enabled {
		t.Errorf("unexpected bus/telemetry: %+v %+v", cfg.Bus, cfg.Telemetry)
	}
}

func TestLoadFileUnknownKey(t *testing.T) {
	path := writeConfig(t, "shutdown_timeout = 5\n")
	if _, err := LoadFile(path); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for unknown key, got %v", err)
	}
}

func TestLoadFileMalformed(t *testing.T) {
	path := writeConfig(t, "shutdown_timeout_seconds = \n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadWithoutFile(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	defer os.Chdir(wd)
	os.Chdir(dir)
	t.Setenv("HOME", dir)

	cfg, path, err := Load()
	if err != nil || path != "" {
		t.Fatalf("expected defaults with no path, got %q, %v", path, err)
	}
	if cfg.ShutdownTimeoutSeconds != 30 {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoadFindsWorkingDirectoryFile(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	defer os.Chdir(wd)
	os.Chdir(dir)
	os.WriteFile("workkit.toml", []byte("shutdown_timeout_seconds = 7\n"), 0644)

	cfg, path, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if path != "workkit.toml" || cfg.ShutdownTimeoutSeconds != 7 {
		t.Errorf("expected workkit.toml with 7s, got %q %+v", path, cfg)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("WORKKIT_SHUTDOWN_TIMEOUT_SECONDS", "45")
	t.Setenv("WORKKIT_GATE_TIMEOUT", "750ms")
	t.Setenv("WORKKIT_KEYED", "true")
	t.Setenv("WORKKIT_HTTP_ADDR", ":9000")
	t.Setenv("WORKKIT_BUS_KIND", "memory")
	t.Setenv("WORKKIT_LOG_LEVEL", "warn")
	t.Setenv("WORKKIT_TELEMETRY_ENDPOINT", "collector:4317")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv() error: %v", err)
	}

	if cfg.ShutdownTimeout() != 45*time.Second || cfg.GateTimeout != 750*time.Millisecond {
		t.Errorf("unexpected timeouts: %v %v", cfg.ShutdownTimeout(), cfg.GateTimeout)
	}
	if !cfg.Keyed || cfg.HTTP.Addr != ":9000" || cfg.Bus.Kind != "memory" || cfg.Log.Level != "warn" {
		t.Errorf("unexpected overrides: %+v", cfg)
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Endpoint != "collector:4317" {
		t.Errorf("expected telemetry enabled by endpoint, got %+v", cfg.Telemetry)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestApplyEnvMalformed(t *testing.T) {
	for name, value := range map[string]string{
		"WORKKIT_SHUTDOWN_TIMEOUT_SECONDS": "soon",
		"WORKKIT_GATE_TIMEOUT":             "5 parsecs",
		"WORKKIT_KEYED":                    "maybe",
	} {
		t.Run(name, func(t *testing.T) {
			t.Setenv(name, value)
			cfg := DefaultConfig()
			if err := cfg.ApplyEnv(); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeoutSeconds = 0 }},
		{"negative gate timeout", func(c *Config) { c.GateTimeout = -time.Second }},
		{"negative dedup window", func(c *Config) { c.HTTP.DedupWindow = -time.Second }},
		{"nats without url", func(c *Config) { c.Bus.Kind = "nats" }},
		{"unknown bus", func(c *Config) { c.Bus.Kind = "kafka" }},
		{"bus without subject", func(c *Config) { c.Bus.Kind = "memory"; c.Bus.Subject = "" }},
		{"unknown protocol", func(c *Config) { c.Telemetry.Protocol = "udp" }},
		{"unknown level", func(c *Config) { c.Log.Level = "LOUD" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
