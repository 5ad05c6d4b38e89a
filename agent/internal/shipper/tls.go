package shipper

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/obsidianstack/logship/agent/internal/config"
)

// NewTLSConfig builds the client TLS configuration for the collector.
// It returns nil when TLS is disabled. Unreadable or invalid files are
// reported as *ConfigurationError.
func NewTLSConfig(cfg config.TLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	tlsCfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in via config
	}

	if cfg.CertFile != "" || cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, &ConfigurationError{Field: "tls.cert_file", Reason: "load client cert: " + err.Error()}
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	if cfg.CAFile != "" {
		caPEM, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, &ConfigurationError{Field: "tls.ca_file", Reason: "read: " + err.Error()}
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, &ConfigurationError{Field: "tls.ca_file", Reason: "no valid certs in " + cfg.CAFile}
		}
		tlsCfg.RootCAs = pool
	}

	return tlsCfg, nil
}
