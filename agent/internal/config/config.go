package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultPort          = 5043
	DefaultPoolSize      = 4
	DefaultMaxBatchSize  = 100
	DefaultFlushInterval = time.Second
	DefaultQueueSize     = 10000
	DefaultStaleAfter    = 25 * time.Second
	DefaultRetryBackoff  = 5 * time.Second
	DefaultDialTimeout   = 10 * time.Second
	DefaultIOTimeout     = 30 * time.Second
	DefaultLogLevel      = "info"
)

// Config is the top-level agent configuration.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	// Collector is the remote endpoint every pooled connection talks to.
	Collector CollectorConfig `yaml:"collector"`

	// Connection tunes staleness, backoff and I/O limits.
	Connection ConnectionConfig `yaml:"connection"`

	// MaxBatchSize caps the number of records per transmission.
	MaxBatchSize int `yaml:"max_batch_size"`

	// FlushInterval is how long the scheduler waits to fill a batch.
	FlushInterval time.Duration `yaml:"flush_interval"`

	// MaxFieldLength truncates event field values to this many characters.
	// Zero or negative disables truncation.
	MaxFieldLength int `yaml:"max_field_length"`

	// QueueSize bounds the records waiting for a batch. When full, the
	// oldest record is dropped.
	QueueSize int `yaml:"queue_size"`

	// Tags are attached to every event.
	Tags []string `yaml:"tags"`

	// Identity describes this server in every event.
	Identity IdentityConfig `yaml:"identity"`

	// MetricsAddr serves Prometheus text metrics on /metrics when set.
	MetricsAddr string `yaml:"metrics_addr"`

	// Sources is the list of files to follow.
	Sources []Source `yaml:"sources"`
}

// CollectorConfig is the collector endpoint.
type CollectorConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// PoolSize is the number of persistent connections. It is read once
	// at startup; changing it requires a restart.
	PoolSize int `yaml:"pool_size"`

	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS dial options for the collector connection.
type TLSConfig struct {
	Enabled bool `yaml:"enabled"`

	// CAFile verifies the collector certificate; empty uses system roots.
	CAFile string `yaml:"ca_file"`

	// CertFile and KeyFile present a client certificate (mTLS). Both or
	// neither must be set.
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// ServerName overrides the name verified against the certificate.
	ServerName string `yaml:"server_name"`

	// InsecureSkipVerify disables certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// ConnectionConfig tunes every pooled connection.
type ConnectionConfig struct {
	StaleAfter   time.Duration `yaml:"stale_after"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	IOTimeout    time.Duration `yaml:"io_timeout"`
}

// IdentityConfig is the server identity stamped on every event.
// Empty fields are resolved from the environment by Resolve.
type IdentityConfig struct {
	ServerName string `yaml:"server_name"`
	ServerDir  string `yaml:"server_dir"`
	HostName   string `yaml:"host_name"`
}

// Resolve fills empty fields: host name from os.Hostname, server directory
// from the working directory, server name from the host name.
func (i IdentityConfig) Resolve() IdentityConfig {
	if i.HostName == "" {
		if h, err := os.Hostname(); err == nil {
			i.HostName = h
		}
	}
	if i.ServerDir == "" {
		if wd, err := os.Getwd(); err == nil {
			i.ServerDir = wd
		}
	}
	if i.ServerName == "" {
		i.ServerName = i.HostName
	}
	return i
}

// Source describes one followed log file.
type Source struct {
	// ID is a unique, human-readable identifier for this source.
	ID string `yaml:"id"`

	// Type is the event kind: message | trace | accesslog | ffdc | gc | audit.
	Type string `yaml:"type"`

	// Path is the file to follow.
	Path string `yaml:"path"`

	// Location qualifies the event type; defaults to "file".
	Location string `yaml:"location"`

	// FromBeginning reads the existing file contents instead of only
	// lines appended after startup.
	FromBeginning bool `yaml:"from_beginning"`

	// Tags are appended to the global tag list for events of this source.
	Tags []string `yaml:"tags"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			LogLevel: DefaultLogLevel,
			Collector: CollectorConfig{
				Port:     DefaultPort,
				PoolSize: DefaultPoolSize,
			},
			Connection: ConnectionConfig{
				StaleAfter:   DefaultStaleAfter,
				RetryBackoff: DefaultRetryBackoff,
				DialTimeout:  DefaultDialTimeout,
				IOTimeout:    DefaultIOTimeout,
			},
			MaxBatchSize:  DefaultMaxBatchSize,
			FlushInterval: DefaultFlushInterval,
			QueueSize:     DefaultQueueSize,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := cfg.Agent
	switch a.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("agent.log_level %q unknown: want debug|info|warn|error", a.LogLevel)
	}
	if a.Collector.Host == "" {
		return fmt.Errorf("agent.collector.host is required")
	}
	if a.Collector.Port <= 0 || a.Collector.Port > 65535 {
		return fmt.Errorf("agent.collector.port %d is out of range [1, 65535]", a.Collector.Port)
	}
	if a.Collector.PoolSize <= 0 {
		return fmt.Errorf("agent.collector.pool_size must be positive")
	}
	if (a.Collector.TLS.CertFile == "") != (a.Collector.TLS.KeyFile == "") {
		return fmt.Errorf("agent.collector.tls: cert_file and key_file must be set together")
	}
	if a.MaxBatchSize <= 0 {
		return fmt.Errorf("agent.max_batch_size must be positive")
	}
	if a.FlushInterval <= 0 {
		return fmt.Errorf("agent.flush_interval must be positive")
	}
	if a.QueueSize <= 0 {
		return fmt.Errorf("agent.queue_size must be positive")
	}
	c := a.Connection
	if c.StaleAfter <= 0 || c.RetryBackoff <= 0 || c.DialTimeout <= 0 || c.IOTimeout <= 0 {
		return fmt.Errorf("agent.connection durations must be positive")
	}

	seen := make(map[string]bool, len(a.Sources))
	for i, src := range a.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if seen[src.ID] {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, src.ID)
		}
		seen[src.ID] = true
		if src.Path == "" {
			return fmt.Errorf("sources[%d] %q: path is required", i, src.ID)
		}
		switch src.Type {
		case "message", "trace", "accesslog", "ffdc", "gc", "audit":
		default:
			return fmt.Errorf("sources[%d] %q: unknown type %q", i, src.ID, src.Type)
		}
	}
	return nil
}
