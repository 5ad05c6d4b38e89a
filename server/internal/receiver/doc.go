// Package receiver accepts agent connections and speaks the collector side
// of the lumberjack protocol on each of them.
//
// Every accepted window is recorded in the peer store under the remote
// address, passed to the configured observers (alert evaluation, stream
// notification), and only then acknowledged. Serve optionally terminates
// TLS, requiring client certificates when a client CA is configured.
package receiver
