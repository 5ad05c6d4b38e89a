package shipper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// DefaultPoolSize is used when NewPool is given a non-positive size.
const DefaultPoolSize = 4

// Pool is a fixed set of Conns to one collector target. Membership never
// changes after construction; only the target and each Conn's state do.
// All methods are safe for concurrent use.
type Pool struct {
	conns  []*Conn
	idle   chan *Conn
	target atomic.Pointer[Target]
	inUse  atomic.Int64

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewPool creates size connections to t. No socket is opened until a
// holder calls Conn.Connect.
func NewPool(size int, t Target, opts Options) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	opts = opts.withDefaults()

	p := &Pool{
		conns: make([]*Conn, size),
		idle:  make(chan *Conn, size),
		done:  make(chan struct{}),
	}
	p.target.Store(&t)
	for i := range p.conns {
		c := newConn(i, opts)
		p.conns[i] = c
		p.idle <- c
	}
	return p
}

// Size returns the fixed number of connections.
func (p *Pool) Size() int { return len(p.conns) }

// InUse returns how many connections are currently checked out.
func (p *Pool) InUse() int { return int(p.inUse.Load()) }

// Target returns the endpoint connections should use.
func (p *Pool) Target() Target { return *p.target.Load() }

// SetTarget replaces the endpoint. Each connection picks it up on its next
// Connect.
func (p *Pool) SetTarget(t Target) { p.target.Store(&t) }

// Checkout returns an idle connection, blocking until one is released,
// ctx ends, or the pool is closed.
func (p *Pool) Checkout(ctx context.Context) (*Conn, error) {
	select {
	case <-p.done:
		return nil, ErrPoolClosed
	default:
	}

	select {
	case c := <-p.idle:
		select {
		case <-p.done:
			// Lost the race with Close; hand the member back to it.
			p.idle <- c
			return nil, ErrPoolClosed
		default:
		}
		p.inUse.Add(1)
		return c, nil
	case <-p.done:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns c to the idle set whatever the outcome of its last use.
func (p *Pool) Release(c *Conn) {
	if c == nil {
		return
	}
	p.inUse.Add(-1)
	p.idle <- c
}

// Close stops handing out connections and closes every member exactly
// once, waiting for checked-out members to be released. If ctx ends first
// the members still out are left open and ctx's error is included. Close
// errors are joined; later calls return the first result.
func (p *Pool) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		close(p.done)

		var errs []error
	drain:
		for range len(p.conns) {
			select {
			case c := <-p.idle:
				if err := c.Close(); err != nil {
					errs = append(errs, fmt.Errorf("conn %d: %w", c.id, err))
				}
			case <-ctx.Done():
				errs = append(errs, fmt.Errorf("shipper: pool close: %w", ctx.Err()))
				break drain
			}
		}
		p.closeErr = errors.Join(errs...)
	})
	return p.closeErr
}
