package shipper

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/obsidianstack/logship/agent/internal/security"
	"github.com/obsidianstack/logship/pkg/lumberjack"
	"github.com/obsidianstack/logship/pkg/types"
)

// Defaults applied to zero Options fields.
const (
	DefaultStaleAfter   = 25 * time.Second
	DefaultRetryBackoff = 5 * time.Second
	DefaultDialTimeout  = 10 * time.Second
	DefaultIOTimeout    = 30 * time.Second
)

// Options tunes every connection of a pool.
type Options struct {
	// StaleAfter is the idle time after which a connected socket is
	// assumed closed by the collector and is re-dialed before use. Keep it
	// below the collector's keep-alive window.
	StaleAfter time.Duration

	// RetryBackoff is the fixed delay before reconnecting after a failure.
	RetryBackoff time.Duration

	// DialTimeout bounds the TCP dial plus TLS handshake.
	DialTimeout time.Duration

	// IOTimeout bounds writing one batch and reading its ack.
	IOTimeout time.Duration

	// Notifier receives connection events; nil logs via slog.Default.
	Notifier Notifier
}

func (o Options) withDefaults() Options {
	if o.StaleAfter <= 0 {
		o.StaleAfter = DefaultStaleAfter
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = DefaultRetryBackoff
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.IOTimeout <= 0 {
		o.IOTimeout = DefaultIOTimeout
	}
	if o.Notifier == nil {
		o.Notifier = LogNotifier{}
	}
	return o
}

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateSending
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSending:
		return "sending"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// dialFunc opens a socket to t. Abstracted so tests can inject failures
// and in-memory connections.
type dialFunc func(ctx context.Context, t Target, timeout time.Duration) (net.Conn, error)

// Conn is one persistent link to the collector. It is not safe for
// concurrent use; Pool guarantees a single holder at a time.
type Conn struct {
	id   int
	opts Options

	dial  dialFunc
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	state        State
	retryPending bool
	initialized  bool
	lastActivity time.Time
	target       Target
	nc           net.Conn

	failed      streak
	unavailable streak
}

func newConn(id int, opts Options) *Conn {
	return &Conn{
		id:    id,
		opts:  opts,
		dial:  dialTarget,
		now:   time.Now,
		sleep: sleepCtx,
	}
}

// ID returns the pool slot of the connection.
func (c *Conn) ID() int { return c.id }

// State returns the current lifecycle state.
func (c *Conn) State() State { return c.state }

// RetryPending reports whether the next Connect waits out the backoff.
func (c *Conn) RetryPending() bool { return c.retryPending }

// Initialized reports whether the connection has connected since it was
// created or last closed.
func (c *Conn) Initialized() bool { return c.initialized }

// Connect makes sure the connection has a usable socket to t. It is a no-op
// for a fresh connection to the same target.
func (c *Conn) Connect(ctx context.Context, t Target) error {
	if c.state == StateConnected {
		switch {
		case !c.target.same(t):
			slog.Info("shipper: collector endpoint changed, reconnecting",
				"conn", c.id, "from", c.target.Addr(), "to", t.Addr())
			_ = c.Close()
		case c.stale():
			// The collector has likely dropped us already. Reconnect without
			// telling the operator; initialized stays set so no new
			// "established" event fires.
			slog.Debug("shipper: refreshing idle connection",
				"conn", c.id, "endpoint", c.target.Addr(), "idle", c.now().Sub(c.lastActivity))
			c.drop()
		default:
			return nil
		}
	}

	if c.retryPending {
		if err := c.sleep(ctx, c.opts.RetryBackoff); err != nil {
			return err
		}
	}

	if err := t.Validate(); err != nil {
		c.connectFailed(t, err)
		return err
	}

	c.state = StateConnecting
	nc, err := c.dial(ctx, t, c.opts.DialTimeout)
	if err != nil {
		cerr := &ConnectError{Addr: t.Addr(), Err: err}
		c.connectFailed(t, cerr)
		return cerr
	}

	c.nc = nc
	c.target = t
	c.state = StateConnected
	c.retryPending = false
	c.failed.reset()
	c.lastActivity = c.now()
	if !c.initialized {
		c.initialized = true
		c.opts.Notifier.Established(c.id, t.Addr())
	}
	return nil
}

func (c *Conn) connectFailed(t Target, err error) {
	c.state = StateDisconnected
	c.retryPending = true
	if c.failed.fire() {
		c.opts.Notifier.Failed(c.id, t.Addr(), err)
	}
}

// SendBatch transmits batch and returns the sequence acknowledged by the
// collector. An empty batch is a no-op. On failure the socket is dropped,
// the connection becomes retry-pending and a *SendError is returned; the
// batch is left to the caller.
func (c *Conn) SendBatch(ctx context.Context, batch types.Batch) (uint32, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	if c.state != StateConnected || c.nc == nil {
		return 0, &SendError{Addr: c.target.Addr(), Err: ErrNotConnected}
	}

	payload, err := lumberjack.EncodeBatch(batch)
	if err != nil {
		return 0, &SendError{Addr: c.target.Addr(), Err: err}
	}

	c.state = StateSending
	deadline := c.now().Add(c.opts.IOTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	nc := c.nc
	_ = nc.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { _ = nc.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	if _, err := nc.Write(payload); err != nil {
		return 0, c.sendFailed(fmt.Errorf("write frames: %w", err))
	}
	seq, err := lumberjack.ReadAck(nc)
	if err != nil {
		return 0, c.sendFailed(fmt.Errorf("read ack: %w", err))
	}
	if seq < uint32(len(batch)) {
		return 0, c.sendFailed(fmt.Errorf("%w: got %d, want %d", ErrShortAck, seq, len(batch)))
	}

	_ = nc.SetDeadline(time.Time{})
	c.state = StateConnected
	c.lastActivity = c.now()
	c.unavailable.reset()
	return seq, nil
}

func (c *Conn) sendFailed(err error) error {
	c.drop()
	c.initialized = false
	c.retryPending = true
	if c.unavailable.fire() {
		c.opts.Notifier.Unavailable(c.id, c.target.Addr(), err)
	}
	return &SendError{Addr: c.target.Addr(), Err: err}
}

// Close releases the socket. The "closed" event is only emitted for a
// connection the operator saw established and that is not mid-retry.
func (c *Conn) Close() error {
	var err error
	if c.nc != nil {
		err = c.nc.Close()
		c.nc = nil
	}
	if c.initialized && !c.retryPending {
		c.opts.Notifier.Closed(c.id, c.target.Addr())
	}
	c.initialized = false
	c.state = StateDisconnected
	return err
}

// drop discards the socket without touching initialized or notifying.
func (c *Conn) drop() {
	if c.nc != nil {
		_ = c.nc.Close()
		c.nc = nil
	}
	c.state = StateDisconnected
}

func (c *Conn) stale() bool {
	return c.now().Sub(c.lastActivity) > c.opts.StaleAfter
}

// dialTarget opens a TCP socket to t and performs the TLS handshake when
// t.TLS is set.
func dialTarget(ctx context.Context, t Target, timeout time.Duration) (net.Conn, error) {
	nd := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	if t.TLS == nil {
		return nd.DialContext(ctx, "tcp", t.Addr())
	}

	td := &tls.Dialer{NetDialer: nd, Config: t.TLS}
	nc, err := td.DialContext(ctx, "tcp", t.Addr())
	if err != nil {
		return nil, err
	}
	if tc, ok := nc.(*tls.Conn); ok {
		cs := security.Inspect(tc.ConnectionState(), time.Now())
		if cs.Status != security.StatusValid {
			slog.Warn("shipper: collector certificate needs attention",
				"endpoint", t.Addr(), "status", cs.Status,
				"not_after", cs.NotAfter, "days_left", cs.DaysLeft, "issuer", cs.Issuer)
		}
	}
	return nc, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
