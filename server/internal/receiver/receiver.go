package receiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/obsidianstack/logship/pkg/lumberjack"
	"github.com/obsidianstack/logship/pkg/types"
	"github.com/obsidianstack/logship/server/internal/store"
)

// Observer is called with the updated peer after each accepted batch and
// before the batch is acknowledged.
type Observer func(p *store.Peer, batch types.Batch)

// Receiver serves lumberjack connections into a peer store.
type Receiver struct {
	store     *store.Store
	opts      lumberjack.ServeOptions
	observers []Observer

	active atomic.Int64
	wg     sync.WaitGroup
}

// New creates a Receiver that records accepted batches in st.
func New(st *store.Store, opts lumberjack.ServeOptions, observers ...Observer) *Receiver {
	return &Receiver{store: st, opts: opts, observers: observers}
}

// Active returns the number of open agent connections.
func (r *Receiver) Active() int {
	return int(r.active.Load())
}

// Serve accepts connections on ln until ctx is cancelled, then closes ln and
// waits for open connections to finish. It returns nil on cancellation.
func (r *Receiver) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer r.wg.Wait()

	slog.Info("receiver: listening", "addr", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("receiver: accept: %w", err)
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.handle(ctx, conn)
		}()
	}
}

// handle serves one agent connection until it disconnects.
func (r *Receiver) handle(ctx context.Context, conn net.Conn) {
	addr := conn.RemoteAddr().String()
	r.active.Add(1)
	defer r.active.Add(-1)

	slog.Debug("receiver: agent connected", "peer", addr)
	err := lumberjack.ServeConn(ctx, conn, func(_ context.Context, batch types.Batch) error {
		// Sequences restart at 1 for every window, so the ack is the batch size.
		p := r.store.Record(addr, batch, uint32(len(batch)))
		for _, obs := range r.observers {
			obs(p, batch)
		}
		slog.Debug("receiver: batch accepted", "peer", addr, "records", len(batch))
		return nil
	}, r.opts)
	if err != nil {
		slog.Warn("receiver: connection closed with error", "peer", addr, "err", err)
		return
	}
	slog.Debug("receiver: agent disconnected", "peer", addr)
}
