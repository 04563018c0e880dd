// Package config manages udpmgrd daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete udpmgrd configuration.
type Config struct {
	Control   ControlConfig    `koanf:"control"`
	Metrics   MetricsConfig    `koanf:"metrics"`
	Log       LogConfig        `koanf:"log"`
	Manager   ManagerConfig    `koanf:"manager"`
	Endpoints []EndpointConfig `koanf:"endpoints"`
}

// ControlConfig holds the plain HTTP status/control surface configuration.
type ControlConfig struct {
	// Addr is the control-plane listen address (e.g., ":9108").
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9107").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// ManagerConfig holds manager-wide parameters (spec.md §3, §4.7 "Manager start").
type ManagerConfig struct {
	// Name identifies the manager instance.
	Name string `koanf:"name"`

	// RecvBufSize sizes the shared receive buffer. This is the only
	// parameter validated at manager start (spec.md §6).
	RecvBufSize uint32 `koanf:"recv-bufsize"`
}

// EndpointConfig describes a declarative endpoint from the configuration
// file. Each entry is opened on daemon startup via Manager.Open.
//
// Field names and semantics mirror the configuration parameter table in
// spec.md §3 exactly; Address accepts either a single string or an array
// in YAML, so it is decoded as []string with a scalar normalized to a
// one-element slice by koanf's weakly typed unmarshalling.
type EndpointConfig struct {
	// Port is the UDP port. Required.
	Port uint16 `koanf:"port"`

	// Address is the hostname/IP (listen: may be multiple; send: first
	// entry only). Absent means wildcard for listen endpoints.
	Address []string `koanf:"address"`

	// Listen selects Listen role (true) vs Send role (false).
	Listen bool `koanf:"listen"`

	// Interface is the netif selector for multicast endpoints: exact
	// netif name or local IP address text.
	Interface string `koanf:"interface"`

	// TTL is the multicast TTL/hop limit (default 1 if unset and the
	// endpoint is multicast).
	TTL uint32 `koanf:"ttl"`

	// Loopback enables multicast loopback.
	Loopback bool `koanf:"loopback"`

	// Reuse enables SO_REUSEADDR/SO_REUSEPORT.
	Reuse bool `koanf:"reuse"`

	// SockPriority sets SO_PRIORITY (Linux only).
	SockPriority uint32 `koanf:"sockpriority"`

	// Validate performs a dry run: all checks, no registration.
	Validate bool `koanf:"validate"`
}

// Key returns a stable identifier for an endpoint entry, used to detect
// duplicate entries in Validate and to label the endpoint in logs.
func (ec EndpointConfig) Key() string {
	return strings.Join(ec.Address, ",") + "|" + fmt.Sprintf("%d", ec.Port) + "|" + ec.Interface
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Control: ControlConfig{
			Addr: ":9108",
		},
		Metrics: MetricsConfig{
			Addr: ":9107",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Manager: ManagerConfig{
			Name:        "primary",
			RecvBufSize: 65536,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for udpmgrd configuration.
// Variables are named UDPMGRD_<section>_<key>, e.g., UDPMGRD_CONTROL_ADDR.
const envPrefix = "UDPMGRD_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (UDPMGRD_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	UDPMGRD_CONTROL_ADDR -> control.addr
//	UDPMGRD_METRICS_ADDR -> metrics.addr
//	UDPMGRD_METRICS_PATH -> metrics.path
//	UDPMGRD_LOG_LEVEL     -> log.level
//	UDPMGRD_LOG_FORMAT    -> log.format
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms UDPMGRD_CONTROL_ADDR -> control.addr.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"control.addr":         defaults.Control.Addr,
		"metrics.addr":         defaults.Metrics.Addr,
		"metrics.path":         defaults.Metrics.Path,
		"log.level":            defaults.Log.Level,
		"log.format":           defaults.Log.Format,
		"manager.name":         defaults.Manager.Name,
		"manager.recv-bufsize": defaults.Manager.RecvBufSize,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyControlAddr indicates the control listen address is empty.
	ErrEmptyControlAddr = errors.New("control.addr must not be empty")

	// ErrInvalidRecvBufSize indicates recv-bufsize is zero.
	ErrInvalidRecvBufSize = errors.New("manager.recv-bufsize must be > 0")

	// ErrMissingPort indicates an endpoint entry is missing its port.
	ErrMissingPort = errors.New("endpoint port must be nonzero unless OS-assigned")

	// ErrDuplicateEndpointKey indicates two endpoints share the same key.
	ErrDuplicateEndpointKey = errors.New("duplicate endpoint key")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
//
// Per spec.md §6, only manager.recv-bufsize is checked at manager start;
// Validate here additionally checks ambient daemon config (the control
// address) and catches duplicate declarative endpoint entries up front,
// since endpoint-parameter validation proper happens at Manager.Open time
// (spec.md §6, "Parameter validation").
func Validate(cfg *Config) error {
	if cfg.Control.Addr == "" {
		return ErrEmptyControlAddr
	}

	if cfg.Manager.RecvBufSize == 0 {
		return ErrInvalidRecvBufSize
	}

	return validateEndpoints(cfg.Endpoints)
}

// validateEndpoints checks each declarative endpoint entry for correctness.
func validateEndpoints(endpoints []EndpointConfig) error {
	seen := make(map[string]struct{}, len(endpoints))

	for i, ec := range endpoints {
		key := ec.Key()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("endpoints[%d] key %q: %w", i, key, ErrDuplicateEndpointKey)
		}
		seen[key] = struct{}{}
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
