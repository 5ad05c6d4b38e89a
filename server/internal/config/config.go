package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one condition evaluated against a peer after every
// accepted batch.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression: "batch_records > 500",
	// "event_type == ffdc_file", "records >= 1000000".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Default values for the collector configuration.
const (
	DefaultPort            = 5043
	DefaultHTTPPort        = 8080
	DefaultPeerTTL         = 5 * time.Minute
	DefaultMaxPayloadBytes = 64 << 20
	DefaultReadTimeout     = 2 * time.Minute
	DefaultStreamInterval  = 5 * time.Second
)

// Config holds the collector configuration parsed from the `server:` section
// of config.yaml. The `agent:` key in the same file is ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all collector settings.
type ServerConfig struct {
	// Port is the port the lumberjack listener accepts agents on (default 5043).
	Port int `yaml:"port"`

	// HTTPPort is the port the REST API and WebSocket stream listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// TLS enables TLS on the lumberjack listener when cert and key are set.
	TLS TLSConfig `yaml:"tls"`

	// Auth protects the HTTP API.
	Auth AuthConfig `yaml:"auth"`

	// PeerTTL is how long a peer's stats remain after its last batch.
	PeerTTL time.Duration `yaml:"peer_ttl"`

	// MaxPayloadBytes bounds a single frame payload, compressed or inflated.
	MaxPayloadBytes int `yaml:"max_payload_bytes"`

	// ReadTimeout closes agent connections idle for longer than this.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// StreamInterval is how often peer stats are pushed to WebSocket clients.
	StreamInterval time.Duration `yaml:"stream_interval"`

	// Alerts holds rule definitions and webhook delivery targets.
	Alerts AlertsConfig `yaml:"alerts"`
}

// TLSConfig holds the listener certificate and the optional client CA.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// ClientCAFile requires and verifies agent certificates (mTLS) when set.
	ClientCAFile string `yaml:"client_ca_file"`
}

// Enabled reports whether the listener serves TLS.
func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

// AuthConfig controls client authentication on the HTTP API.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header name to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// Load reads and parses the config file at path, returning the collector configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            DefaultPort,
			HTTPPort:        DefaultHTTPPort,
			PeerTTL:         DefaultPeerTTL,
			MaxPayloadBytes: DefaultMaxPayloadBytes,
			ReadTimeout:     DefaultReadTimeout,
			StreamInterval:  DefaultStreamInterval,
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range [1, 65535]", s.Port)
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if s.Port == s.HTTPPort {
		return fmt.Errorf("server.port and server.http_port must differ")
	}
	if (s.TLS.CertFile == "") != (s.TLS.KeyFile == "") {
		return fmt.Errorf("server.tls: cert_file and key_file must be set together")
	}
	if s.TLS.ClientCAFile != "" && !s.TLS.Enabled() {
		return fmt.Errorf("server.tls.client_ca_file requires cert_file and key_file")
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if s.PeerTTL <= 0 {
		return fmt.Errorf("server.peer_ttl must be positive")
	}
	if s.MaxPayloadBytes <= 0 {
		return fmt.Errorf("server.max_payload_bytes must be positive")
	}
	if s.ReadTimeout < 0 {
		return fmt.Errorf("server.read_timeout must not be negative")
	}
	if s.StreamInterval <= 0 {
		return fmt.Errorf("server.stream_interval must be positive")
	}
	for i, r := range s.Alerts.Rules {
		if r.Name == "" || r.Condition == "" {
			return fmt.Errorf("server.alerts.rules[%d]: name and condition are required", i)
		}
	}
	return nil
}
