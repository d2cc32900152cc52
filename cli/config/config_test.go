package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `host:
  mode: process
  command: ./cellsolve-simhost
  args: ["--model", "quadratic"]
  macro_prefix: OpenSolver.NOMAD_
  load_result: true

log:
  level: debug

trace:
  backend: s3
  path: my-bucket/prefix
  region: us-east-1
  endpoint: https://example.com
  s3_path_style: true
  flush_count: 16

adapter:
  type: webhook
  url: https://hooks.example.com/cellsolve
  headers:
    Authorization: Bearer token123
  timeout: 10s
  retries: 3
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Host
	assertEqual(t, "host.mode", cfg.Host.Mode, HostModeProcess)
	assertEqual(t, "host.command", cfg.Host.Command, "./cellsolve-simhost")
	assertEqual(t, "host.macro_prefix", cfg.Host.MacroPrefix, "OpenSolver.NOMAD_")
	if len(cfg.Host.Args) != 2 || cfg.Host.Args[1] != "quadratic" {
		t.Errorf("host.args = %v", cfg.Host.Args)
	}
	if !cfg.Host.LoadResult {
		t.Error("expected host.load_result=true")
	}

	assertEqual(t, "log.level", cfg.Log.Level, "debug")

	// Trace
	assertEqual(t, "trace.backend", cfg.Trace.Backend, TraceBackendS3)
	assertEqual(t, "trace.path", cfg.Trace.Path, "my-bucket/prefix")
	assertEqual(t, "trace.region", cfg.Trace.Region, "us-east-1")
	assertEqual(t, "trace.endpoint", cfg.Trace.Endpoint, "https://example.com")
	if !cfg.Trace.S3PathStyle {
		t.Error("expected trace.s3_path_style=true")
	}
	if cfg.Trace.FlushCount != 16 {
		t.Errorf("expected flush_count=16, got %d", cfg.Trace.FlushCount)
	}

	// Adapter
	assertEqual(t, "adapter.type", cfg.Adapter.Type, "webhook")
	assertEqual(t, "adapter.url", cfg.Adapter.URL, "https://hooks.example.com/cellsolve")
	assertEqual(t, "adapter.headers.Authorization", cfg.Adapter.Headers["Authorization"], "Bearer token123")
	if cfg.Adapter.Timeout.Duration != 10*time.Second {
		t.Errorf("expected timeout=10s, got %v", cfg.Adapter.Timeout.Duration)
	}
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 3 {
		t.Errorf("expected retries=3, got %v", cfg.Adapter.Retries)
	}
}

func TestLoad_EmptyConfigs(t *testing.T) {
	tests := map[string]string{
		"empty":           "",
		"whitespace only": "   \n  \n  \n",
		"comments only":   "# This is a comment\n# Another comment\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeTemp(t, content))
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.Host.Mode != "" || cfg.Trace.Backend != "" {
				t.Errorf("expected zero config, got %+v", cfg)
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/cellsolve.yaml")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeTemp(t, "{{invalid yaml")); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_CELLSOLVE_HOOK", "https://hooks.example.com/x")

	yaml := `adapter:
  type: webhook
  url: ${TEST_CELLSOLVE_HOOK}
trace:
  path: ${TEST_CELLSOLVE_UNSET:-./trace}
`
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "adapter.url", cfg.Adapter.URL, "https://hooks.example.com/x")
	assertEqual(t, "trace.path", cfg.Trace.Path, "./trace")
}

func TestLoad_UnknownKeysRejected(t *testing.T) {
	tests := map[string]string{
		"top level": "hosts:\n  mode: stdio\n",
		"nested":    "host:\n  modes: stdio\n",
	}
	for name, yaml := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeTemp(t, yaml)); err == nil {
				t.Fatal("expected error for unknown key")
			}
		})
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad mode", "host:\n  mode: com\n", "host.mode"},
		{"process without command", "host:\n  mode: process\n", "host.command"},
		{"bad backend", "trace:\n  backend: gcs\n", "trace.backend"},
		{"negative flush", "trace:\n  flush_count: -1\n", "trace.flush_count"},
		{"bad adapter", "adapter:\n  type: kafka\n", "adapter.type"},
		{"negative retries", "adapter:\n  retries: -2\n", "adapter.retries"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTemp(t, tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoad_RetriesZeroDistinctFromNil(t *testing.T) {
	cfg, err := Load(writeTemp(t, "adapter:\n  type: redis\n  url: redis://localhost\n  retries: 0\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 0 {
		t.Errorf("expected explicit retries=0, got %v", cfg.Adapter.Retries)
	}

	cfg, err = Load(writeTemp(t, "adapter:\n  type: redis\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries != nil {
		t.Errorf("expected nil retries, got %d", *cfg.Adapter.Retries)
	}
}

func TestDuration_InvalidFormat(t *testing.T) {
	if _, err := Load(writeTemp(t, "adapter:\n  timeout: soon\n")); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cellsolve.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}

func TestLoad_AdapterDeliveryOptions(t *testing.T) {
	path := writeTemp(t, `adapter:
  type: redis
  url: redis://localhost:6379
  key_prefix: "cellsolve:result:"
  key_ttl: 2h
  secret: ${CELLSOLVE_TEST_SECRET:-fallback}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "adapter.key_prefix", cfg.Adapter.KeyPrefix, "cellsolve:result:")
	assertEqual(t, "adapter.secret", cfg.Adapter.Secret, "fallback")
	if cfg.Adapter.KeyTTL.Duration != 2*time.Hour {
		t.Errorf("adapter.key_ttl = %v, want 2h", cfg.Adapter.KeyTTL.Duration)
	}
}
