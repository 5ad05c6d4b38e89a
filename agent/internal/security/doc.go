// Package security inspects the certificate presented by the collector
// after a TLS handshake, so an expiring or expired certificate shows up in
// the agent log before it breaks delivery.
package security
