package shipper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/obsidianstack/logship/pkg/types"
)

// fakeConn is an in-memory net.Conn with a scripted reply.
type fakeConn struct {
	mu       sync.Mutex
	written  bytes.Buffer
	reply    io.Reader
	writeErr error
	closeErr error
	closes   int
}

func newFakeConn(reply []byte) *fakeConn {
	return &fakeConn{reply: bytes.NewReader(reply)}
}

func (f *fakeConn) Read(b []byte) (int, error) { return f.reply.Read(b) }

func (f *fakeConn) Write(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	return f.written.Write(b)
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return f.closeErr
}

func (f *fakeConn) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *fakeConn) LocalAddr() net.Addr              { return &net.TCPAddr{} }
func (f *fakeConn) RemoteAddr() net.Addr             { return &net.TCPAddr{} }
func (f *fakeConn) SetDeadline(time.Time) error      { return nil }
func (f *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

// fakeDialer hands out scripted results in order; once exhausted it keeps
// returning the last one.
type fakeDialer struct {
	mu      sync.Mutex
	results []dialResult
	calls   int
	targets []Target
}

type dialResult struct {
	conn net.Conn
	err  error
}

func (d *fakeDialer) dial(_ context.Context, t Target, _ time.Duration) (net.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.targets = append(d.targets, t)
	i := d.calls
	if i >= len(d.results) {
		i = len(d.results) - 1
	}
	d.calls++
	r := d.results[i]
	return r.conn, r.err
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

var errDial = errors.New("connection refused")

// recorder collects notifier events as "kind:conn" strings.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(kind string, conn int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf("%s:%d", kind, conn))
}

func (r *recorder) Established(conn int, _ string) { r.add("established", conn) }
func (r *recorder) Failed(conn int, _ string, _ error) { r.add("failed", conn) }
func (r *recorder) Unavailable(conn int, _ string, _ error) { r.add("unavailable", conn) }
func (r *recorder) Closed(conn int, _ string) { r.add("closed", conn) }

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// harness wires a Conn to fakes.
type harness struct {
	conn   *Conn
	dialer *fakeDialer
	events *recorder
	clock  *clock
	sleeps []time.Duration
}

var testTarget = Target{Host: "collector.test", Port: 5043}

func newHarness(results ...dialResult) *harness {
	h := &harness{
		dialer: &fakeDialer{results: results},
		events: &recorder{},
		clock:  newClock(),
	}
	h.conn = newConn(0, Options{Notifier: h.events}.withDefaults())
	h.conn.dial = h.dialer.dial
	h.conn.now = h.clock.Now
	h.conn.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return ctx.Err()
	}
	return h
}

func batchOf(n int) types.Batch {
	b := make(types.Batch, n)
	for i := range b {
		b[i] = types.Record{{Key: "type", Value: "message"}, {Key: "line", Value: fmt.Sprintf(`{"n":%d}`, i)}}
	}
	return b
}
