package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
agent:
  log_level: debug
  collector:
    host: collector.internal
    port: 5044
    pool_size: 2
    tls:
      enabled: true
      ca_file: /etc/logship/ca.pem
  connection:
    stale_after: 20s
    retry_backoff: 2s
  max_batch_size: 50
  flush_interval: 500ms
  max_field_length: 1024
  queue_size: 200
  tags: [prod, eu]
  identity:
    server_name: web-1
  sources:
    - id: app
      type: message
      path: /var/log/app.log
      tags: [app]
`
	cfg := loadFromString(t, yaml)
	a := cfg.Agent

	if a.Collector.Host != "collector.internal" || a.Collector.Port != 5044 {
		t.Errorf("collector: got %s:%d", a.Collector.Host, a.Collector.Port)
	}
	if a.Collector.PoolSize != 2 {
		t.Errorf("pool_size: got %d", a.Collector.PoolSize)
	}
	if !a.Collector.TLS.Enabled || a.Collector.TLS.CAFile != "/etc/logship/ca.pem" {
		t.Errorf("tls: got %+v", a.Collector.TLS)
	}
	if a.Connection.StaleAfter != 20*time.Second {
		t.Errorf("stale_after: got %v", a.Connection.StaleAfter)
	}
	if a.Connection.DialTimeout != DefaultDialTimeout {
		t.Errorf("dial_timeout default: got %v", a.Connection.DialTimeout)
	}
	if a.FlushInterval != 500*time.Millisecond {
		t.Errorf("flush_interval: got %v", a.FlushInterval)
	}
	if a.MaxFieldLength != 1024 {
		t.Errorf("max_field_length: got %d", a.MaxFieldLength)
	}
	if len(a.Tags) != 2 || a.Tags[1] != "eu" {
		t.Errorf("tags: got %v", a.Tags)
	}
	if len(a.Sources) != 1 {
		t.Fatalf("sources: got %d, want 1", len(a.Sources))
	}
	if a.Sources[0].Type != "message" || a.Sources[0].Tags[0] != "app" {
		t.Errorf("source: got %+v", a.Sources[0])
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, `
agent:
  collector:
    host: localhost
`)
	a := cfg.Agent

	if a.Collector.Port != DefaultPort {
		t.Errorf("default port: got %d, want %d", a.Collector.Port, DefaultPort)
	}
	if a.Collector.PoolSize != DefaultPoolSize {
		t.Errorf("default pool_size: got %d, want %d", a.Collector.PoolSize, DefaultPoolSize)
	}
	if a.MaxBatchSize != DefaultMaxBatchSize {
		t.Errorf("default max_batch_size: got %d", a.MaxBatchSize)
	}
	if a.FlushInterval != DefaultFlushInterval {
		t.Errorf("default flush_interval: got %v", a.FlushInterval)
	}
	if a.QueueSize != DefaultQueueSize {
		t.Errorf("default queue_size: got %d", a.QueueSize)
	}
	if a.Connection.StaleAfter != DefaultStaleAfter || a.Connection.RetryBackoff != DefaultRetryBackoff {
		t.Errorf("default connection: got %+v", a.Connection)
	}
	if a.LogLevel != DefaultLogLevel {
		t.Errorf("default log_level: got %q", a.LogLevel)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing host", `
agent:
  collector:
    port: 5043
`},
		{"port out of range", `
agent:
  collector: {host: h, port: 70000}
`},
		{"zero pool", `
agent:
  collector: {host: h, pool_size: 0}
`},
		{"cert without key", `
agent:
  collector:
    host: h
    tls: {enabled: true, cert_file: /c.pem}
`},
		{"negative flush", `
agent:
  collector: {host: h}
  flush_interval: -1s
`},
		{"unknown log level", `
agent:
  log_level: chatty
  collector: {host: h}
`},
		{"unknown source type", `
agent:
  collector: {host: h}
  sources:
    - {id: s, type: syslog, path: /var/log/syslog}
`},
		{"duplicate source", `
agent:
  collector: {host: h}
  sources:
    - {id: s, type: message, path: /a}
    - {id: s, type: trace, path: /b}
`},
		{"source without path", `
agent:
  collector: {host: h}
  sources:
    - {id: s, type: message}
`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadStringErr(t, tc.yaml); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestIdentity_Resolve(t *testing.T) {
	id := IdentityConfig{}.Resolve()
	if id.HostName == "" {
		t.Error("HostName not resolved")
	}
	if id.ServerName != id.HostName {
		t.Errorf("ServerName: got %q, want host name %q", id.ServerName, id.HostName)
	}
	if id.ServerDir == "" {
		t.Error("ServerDir not resolved")
	}

	fixed := IdentityConfig{ServerName: "a", ServerDir: "/b", HostName: "c"}.Resolve()
	if fixed != (IdentityConfig{ServerName: "a", ServerDir: "/b", HostName: "c"}) {
		t.Errorf("Resolve changed explicit values: %+v", fixed)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "agent:\n  collector: {host: one}\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	go Watch(ctx, path, func(c *Config) { got <- c }) //nolint:errcheck

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, "agent:\n  collector: {host: two}\n")

	select {
	case c := <-got:
		if c.Agent.Collector.Host != "two" {
			t.Errorf("reloaded host: got %q, want two", c.Agent.Collector.Host)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed")
	}
}

func TestWatch_InvalidReloadKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "agent:\n  collector: {host: one}\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	go Watch(ctx, path, func(c *Config) { got <- c }) //nolint:errcheck

	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, "agent:\n  collector: {port: 1}\n")

	select {
	case c := <-got:
		t.Fatalf("onChange called with invalid config: %+v", c.Agent.Collector)
	case <-time.After(500 * time.Millisecond):
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, content)
	return Load(path)
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load("../../../config.example.yaml")
	if err != nil {
		t.Fatalf("Load example: %v", err)
	}
	a := cfg.Agent
	if a.Collector.Host != "collector.internal" || !a.Collector.TLS.Enabled {
		t.Errorf("collector: got %+v", a.Collector)
	}
	if len(a.Sources) != 3 {
		t.Errorf("sources: got %d, want 3", len(a.Sources))
	}
}
