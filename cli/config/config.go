package config

import (
	"errors"
	"fmt"
	"time"
)

// Host modes.
const (
	HostModeStdio   = "stdio"
	HostModeProcess = "process"
)

// Trace backends.
const (
	TraceBackendNone = "none"
	TraceBackendFS   = "fs"
	TraceBackendS3   = "s3"
)

// Config represents a cellsolve.yaml configuration file.
// All values are optional and act as defaults for cellsolve solve flags.
// CLI flags always override config values.
type Config struct {
	Host    HostConfig    `yaml:"host"`
	Log     LogConfig     `yaml:"log"`
	Trace   TraceConfig   `yaml:"trace"`
	Adapter AdapterConfig `yaml:"adapter"`
}

// HostConfig selects and configures the spreadsheet host connection.
type HostConfig struct {
	// Mode is stdio (the host launched us and speaks on stdin/stdout) or
	// process (we launch the host command).
	Mode        string   `yaml:"mode"`
	Command     string   `yaml:"command"`
	Args        []string `yaml:"args,omitempty"`
	MacroPrefix string   `yaml:"macro_prefix"`
	LoadResult  bool     `yaml:"load_result"`
}

// LogConfig holds logging defaults.
type LogConfig struct {
	Level string `yaml:"level"`
}

// TraceConfig holds evaluation trace storage defaults.
type TraceConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
	FlushCount  int    `yaml:"flush_count"`
}

// AdapterConfig holds adapter defaults from the config file.
type AdapterConfig struct {
	Type      string            `yaml:"type"`
	URL       string            `yaml:"url"`
	Channel   string            `yaml:"channel,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	Timeout   Duration          `yaml:"timeout,omitempty"`
	Retries   *int              `yaml:"retries,omitempty"`
	// Secret signs webhook bodies.
	Secret    string            `yaml:"secret,omitempty"`
	// KeyPrefix and KeyTTL enable the redis per-run result key.
	KeyPrefix string            `yaml:"key_prefix,omitempty"`
	KeyTTL    Duration          `yaml:"key_ttl,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Validate checks enumerated values. Empty values are allowed; they mean
// "use the flag default".
func (c *Config) Validate() error {
	var errs []error
	switch c.Host.Mode {
	case "", HostModeStdio, HostModeProcess:
	default:
		errs = append(errs, fmt.Errorf("host.mode: unknown mode %q", c.Host.Mode))
	}
	if c.Host.Mode == HostModeProcess && c.Host.Command == "" {
		errs = append(errs, errors.New("host.command: required in process mode"))
	}
	switch c.Trace.Backend {
	case "", TraceBackendNone, TraceBackendFS, TraceBackendS3:
	default:
		errs = append(errs, fmt.Errorf("trace.backend: unknown backend %q", c.Trace.Backend))
	}
	if c.Trace.FlushCount < 0 {
		errs = append(errs, fmt.Errorf("trace.flush_count: must be >= 0, got %d", c.Trace.FlushCount))
	}
	switch c.Adapter.Type {
	case "", "webhook", "redis":
	default:
		errs = append(errs, fmt.Errorf("adapter.type: unknown type %q", c.Adapter.Type))
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		errs = append(errs, fmt.Errorf("adapter.retries: must be >= 0, got %d", *c.Adapter.Retries))
	}
	return errors.Join(errs...)
}
