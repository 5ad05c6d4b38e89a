package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	// Agent section only; the server section is absent.
	p := writeConfig(t, `agent:
  collector:
    host: localhost
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.Port != DefaultPort {
		t.Errorf("port: got %d, want %d", s.Port, DefaultPort)
	}
	if s.HTTPPort != DefaultHTTPPort {
		t.Errorf("http_port: got %d, want %d", s.HTTPPort, DefaultHTTPPort)
	}
	if s.PeerTTL != DefaultPeerTTL {
		t.Errorf("peer_ttl: got %v, want %v", s.PeerTTL, DefaultPeerTTL)
	}
	if s.MaxPayloadBytes != DefaultMaxPayloadBytes {
		t.Errorf("max_payload_bytes: got %d", s.MaxPayloadBytes)
	}
	if s.TLS.Enabled() {
		t.Error("tls enabled without cert")
	}
}

func TestLoad_FullServer(t *testing.T) {
	p := writeConfig(t, `server:
  port: 6000
  http_port: 9091
  tls:
    cert_file: /etc/logship/tls.crt
    key_file: /etc/logship/tls.key
    client_ca_file: /etc/logship/ca.pem
  auth:
    mode: apikey
    key_env: MY_KEY
    header: x-logship-key
  peer_ttl: 10m
  read_timeout: 30s
  alerts:
    rules:
      - name: ffdc
        condition: event_type == ffdc_file
        severity: critical
    webhooks:
      - type: slack
        url_env: SLACK_URL
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.Port != 6000 {
		t.Errorf("port: got %d, want 6000", s.Port)
	}
	if !s.TLS.Enabled() || s.TLS.ClientCAFile != "/etc/logship/ca.pem" {
		t.Errorf("tls: got %+v", s.TLS)
	}
	if s.Auth.EffectiveHeader() != "x-logship-key" {
		t.Errorf("header: got %q, want x-logship-key", s.Auth.EffectiveHeader())
	}
	if s.PeerTTL != 10*time.Minute {
		t.Errorf("peer_ttl: got %v, want 10m", s.PeerTTL)
	}
	if s.ReadTimeout != 30*time.Second {
		t.Errorf("read_timeout: got %v, want 30s", s.ReadTimeout)
	}
	if len(s.Alerts.Rules) != 1 || s.Alerts.Rules[0].Severity != "critical" {
		t.Errorf("alerts.rules: got %+v", s.Alerts.Rules)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"port out of range", "server:\n  port: 70000\n"},
		{"same ports", "server:\n  port: 8080\n  http_port: 8080\n"},
		{"cert without key", "server:\n  tls:\n    cert_file: /c\n"},
		{"client ca without cert", "server:\n  tls:\n    client_ca_file: /ca\n"},
		{"unknown auth mode", "server:\n  auth:\n    mode: oauth\n"},
		{"zero peer ttl", "server:\n  peer_ttl: 0s\n"},
		{"rule without condition", "server:\n  alerts:\n    rules:\n      - name: x\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.yaml)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestAuthConfig_Key(t *testing.T) {
	t.Setenv("LOGSHIP_TEST_KEY", "s3cret")
	a := AuthConfig{KeyEnv: "LOGSHIP_TEST_KEY"}
	if a.Key() != "s3cret" {
		t.Errorf("Key: got %q", a.Key())
	}
	if (AuthConfig{}).Key() != "" {
		t.Error("Key without env should be empty")
	}
	if (AuthConfig{}).EffectiveHeader() != "x-api-key" {
		t.Error("default header should be x-api-key")
	}
}

func TestWebhookConfig_URL(t *testing.T) {
	t.Setenv("LOGSHIP_TEST_HOOK", "https://hooks.example.com/x")
	if got := (WebhookConfig{URLEnv: "LOGSHIP_TEST_HOOK"}).URL(); got != "https://hooks.example.com/x" {
		t.Errorf("URL: got %q", got)
	}
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load("../../../config.example.yaml")
	if err != nil {
		t.Fatalf("Load example: %v", err)
	}
	if !cfg.Server.TLS.Enabled() {
		t.Error("example enables tls")
	}
	if len(cfg.Server.Alerts.Rules) != 2 {
		t.Errorf("alert rules: got %d, want 2", len(cfg.Server.Alerts.Rules))
	}
}
