package shipper

import (
	"crypto/tls"
	"errors"
	"net"
	"strconv"
)

// Target is the collector endpoint shared by every connection in a pool.
type Target struct {
	Host string
	Port int

	// TLS enables TLS when non-nil. The pointer identifies the
	// configuration: a reload that builds a new *tls.Config is an endpoint
	// change.
	TLS *tls.Config

	// Err marks the target unusable, e.g. when its TLS files could not be
	// loaded. Connections never dial such a target.
	Err error
}

// Addr returns host:port.
func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// Validate returns a *ConfigurationError for an unusable endpoint.
func (t Target) Validate() error {
	if t.Err != nil {
		var ce *ConfigurationError
		if errors.As(t.Err, &ce) {
			return ce
		}
		return &ConfigurationError{Field: "tls", Reason: t.Err.Error()}
	}
	if t.Host == "" {
		return &ConfigurationError{Field: "host", Reason: "is required"}
	}
	if t.Port <= 0 || t.Port > 65535 {
		return &ConfigurationError{Field: "port", Reason: "must be in [1, 65535], got " + strconv.Itoa(t.Port)}
	}
	return nil
}

func (t Target) same(o Target) bool {
	return t.Host == o.Host && t.Port == o.Port && t.TLS == o.TLS && t.Err == o.Err
}
