package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dantte-lp/udpmgrd/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Control.Addr != ":9108" {
		t.Errorf("Control.Addr = %q, want %q", cfg.Control.Addr, ":9108")
	}

	if cfg.Metrics.Addr != ":9107" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9107")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}

	if cfg.Manager.Name != "primary" {
		t.Errorf("Manager.Name = %q, want %q", cfg.Manager.Name, "primary")
	}

	if cfg.Manager.RecvBufSize != 65536 {
		t.Errorf("Manager.RecvBufSize = %d, want %d", cfg.Manager.RecvBufSize, 65536)
	}

	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() failed validation: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
control:
  addr: ":60000"
metrics:
  addr: ":9200"
  path: "/custom-metrics"
log:
  level: "debug"
  format: "text"
manager:
  name: "secondary"
  recv-bufsize: 131072
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Control.Addr != ":60000" {
		t.Errorf("Control.Addr = %q, want %q", cfg.Control.Addr, ":60000")
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom-metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/custom-metrics")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}

	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}

	if cfg.Manager.Name != "secondary" {
		t.Errorf("Manager.Name = %q, want %q", cfg.Manager.Name, "secondary")
	}

	if cfg.Manager.RecvBufSize != 131072 {
		t.Errorf("Manager.RecvBufSize = %d, want %d", cfg.Manager.RecvBufSize, 131072)
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	// Partial YAML: only override control.addr and log.level.
	// Everything else should inherit from defaults.
	yamlContent := `
control:
  addr: ":55555"
log:
  level: "warn"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Control.Addr != ":55555" {
		t.Errorf("Control.Addr = %q, want %q", cfg.Control.Addr, ":55555")
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	if cfg.Metrics.Addr != ":9107" {
		t.Errorf("Metrics.Addr = %q, want default %q", cfg.Metrics.Addr, ":9107")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want default %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, "json")
	}

	if cfg.Manager.RecvBufSize != 65536 {
		t.Errorf("Manager.RecvBufSize = %d, want default %d", cfg.Manager.RecvBufSize, 65536)
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "empty control addr",
			modify: func(cfg *config.Config) {
				cfg.Control.Addr = ""
			},
			wantErr: config.ErrEmptyControlAddr,
		},
		{
			name: "zero recv bufsize",
			modify: func(cfg *config.Config) {
				cfg.Manager.RecvBufSize = 0
			},
			wantErr: config.ErrInvalidRecvBufSize,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "INFO", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "WARN", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "Error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
		{input: "trace", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/config.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

func TestLoadWithEndpoints(t *testing.T) {
	t.Parallel()

	yamlContent := `
control:
  addr: ":9108"
endpoints:
  - port: 3784
    listen: true
    address: ["0.0.0.0"]
  - port: 5000
    listen: true
    address: ["239.0.0.1"]
    interface: "eth0"
    ttl: 1
    loopback: true
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if len(cfg.Endpoints) != 2 {
		t.Fatalf("Endpoints count = %d, want 2", len(cfg.Endpoints))
	}

	e1 := cfg.Endpoints[0]
	if e1.Port != 3784 {
		t.Errorf("Endpoints[0].Port = %d, want 3784", e1.Port)
	}
	if !e1.Listen {
		t.Error("Endpoints[0].Listen = false, want true")
	}

	e2 := cfg.Endpoints[1]
	if e2.Interface != "eth0" {
		t.Errorf("Endpoints[1].Interface = %q, want %q", e2.Interface, "eth0")
	}
	if e2.TTL != 1 {
		t.Errorf("Endpoints[1].TTL = %d, want 1", e2.TTL)
	}
	if !e2.Loopback {
		t.Error("Endpoints[1].Loopback = false, want true")
	}

	if e1.Key() == e2.Key() {
		t.Error("Endpoints[0] and Endpoints[1] have the same key, expected different")
	}
}

func TestValidateDuplicateEndpointKeys(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Endpoints = []config.EndpointConfig{
		{Port: 5000, Address: []string{"239.0.0.1"}, Interface: "eth0"},
		{Port: 5000, Address: []string{"239.0.0.1"}, Interface: "eth0"},
	}

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("Validate() returned nil, want error")
	}

	if !errors.Is(err, config.ErrDuplicateEndpointKey) {
		t.Errorf("Validate() error = %v, want %v", err, config.ErrDuplicateEndpointKey)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	// Environment variable tests cannot be parallel because they modify
	// process-wide state (os.Setenv via t.Setenv).

	yamlContent := `
control:
  addr: ":9108"
log:
  level: "info"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("UDPMGRD_CONTROL_ADDR", ":60000")
	t.Setenv("UDPMGRD_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Control.Addr != ":60000" {
		t.Errorf("Control.Addr = %q, want %q (from env)", cfg.Control.Addr, ":60000")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (from env)", cfg.Log.Level, "debug")
	}
}

func TestLoadEnvOverridesMetrics(t *testing.T) {
	yamlContent := `
control:
  addr: ":9108"
metrics:
  addr: ":9107"
  path: "/metrics"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("UDPMGRD_METRICS_ADDR", ":9200")
	t.Setenv("UDPMGRD_METRICS_PATH", "/custom")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q (from env)", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom" {
		t.Errorf("Metrics.Path = %q, want %q (from env)", cfg.Metrics.Path, "/custom")
	}
}

// writeTemp creates a temporary YAML file and returns its path.
// The file is automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "udpmgrd.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
