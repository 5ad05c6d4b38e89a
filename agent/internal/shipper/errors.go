package shipper

import (
	"errors"
	"fmt"
)

var (
	// ErrPoolClosed is returned by Checkout once Close has been called.
	ErrPoolClosed = errors.New("shipper: pool closed")

	// ErrNotConnected is wrapped by SendError when SendBatch is called on a
	// connection that has no socket.
	ErrNotConnected = errors.New("shipper: not connected")

	// ErrShortAck is wrapped by SendError when the collector acknowledges
	// fewer records than were sent.
	ErrShortAck = errors.New("shipper: ack below batch size")
)

// ConnectError reports a failed TCP dial or TLS handshake.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("shipper: connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// SendError reports a failure while writing frames or reading the ack.
// The batch was not delivered and may be retried by the caller.
type SendError struct {
	Addr string
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("shipper: send to %s: %v", e.Addr, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// ConfigurationError reports a missing or invalid endpoint or TLS setting.
// Connections keep failing with it until the configuration is corrected.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("shipper: invalid configuration: %s %s", e.Field, e.Reason)
}
