package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/obsidianstack/logship/agent/internal/metrics"
	"github.com/obsidianstack/logship/agent/internal/shipper"
	"github.com/obsidianstack/logship/pkg/types"
)

// DefaultDrainTimeout bounds sending the batch in hand when the scheduler
// is stopped.
const DefaultDrainTimeout = 5 * time.Second

// ErrAlreadyRunning is returned by Start when the scheduler is running.
var ErrAlreadyRunning = errors.New("dispatch: scheduler already running")

// Pool is the part of *shipper.Pool the scheduler uses.
type Pool interface {
	Checkout(ctx context.Context) (*shipper.Conn, error)
	Release(c *shipper.Conn)
	Target() shipper.Target
}

// Settings are the batching parameters read at the start of every cycle.
type Settings struct {
	MaxBatchSize  int
	FlushInterval time.Duration
}

// Scheduler is the single background task that drains the queue into
// batches and sends them through the pool.
type Scheduler struct {
	queue   *Queue
	pool    Pool
	metrics *metrics.Pipeline

	settings     atomic.Pointer[Settings]
	drainTimeout time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a stopped scheduler. A nil m counts into a private pipeline.
func New(q *Queue, p Pool, m *metrics.Pipeline, s Settings) *Scheduler {
	if m == nil {
		m = metrics.New()
	}
	sc := &Scheduler{
		queue:        q,
		pool:         p,
		metrics:      m,
		drainTimeout: DefaultDrainTimeout,
	}
	sc.Update(s)
	return sc
}

// Update replaces the batching settings. Non-positive values keep the
// current ones. The running loop picks them up on its next cycle.
func (s *Scheduler) Update(next Settings) {
	cur := s.Settings()
	if next.MaxBatchSize <= 0 {
		next.MaxBatchSize = cur.MaxBatchSize
	}
	if next.FlushInterval <= 0 {
		next.FlushInterval = cur.FlushInterval
	}
	s.settings.Store(&next)
}

// Settings returns the current batching settings.
func (s *Scheduler) Settings() Settings {
	if p := s.settings.Load(); p != nil {
		return *p
	}
	return Settings{MaxBatchSize: 1, FlushInterval: time.Second}
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done != nil
}

// Start launches the loop. It runs until Stop is called or ctx ends.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		select {
		case <-s.done:
			// Previous loop ended with its context; allow a restart.
		default:
			return ErrAlreadyRunning
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.done)

	st := s.Settings()
	slog.Info("dispatch: scheduler started",
		"max_batch_size", st.MaxBatchSize, "flush_interval", st.FlushInterval)
	return nil
}

// Stop signals the loop and waits for it to finish, including the drain
// of the batch in hand. Calling Stop on a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if done == nil {
		return
	}
	cancel()
	<-done
	slog.Info("dispatch: scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for ctx.Err() == nil {
		s.cycle(ctx)
	}
}

// cycle collects one batch and sends it. A panic is recovered so the loop
// keeps running.
func (s *Scheduler) cycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.CyclePanicked()
			slog.Error("dispatch: recovered panic in cycle",
				"panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()

	st := s.Settings()
	batch := s.queue.Next(ctx, st.MaxBatchSize, st.FlushInterval)
	if len(batch) == 0 {
		return
	}

	sendCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), s.drainTimeout)
		defer cancel()
	}

	if err := s.dispatch(sendCtx, batch); err != nil {
		s.metrics.BatchFailed(len(batch))
		// The connection has already notified the operator once per streak.
		slog.Debug("dispatch: batch dropped", "records", len(batch), "err", err)
		return
	}
	s.metrics.BatchSent(len(batch))
}

// dispatch sends batch over one pooled connection.
func (s *Scheduler) dispatch(ctx context.Context, batch types.Batch) error {
	conn, err := s.pool.Checkout(ctx)
	if err != nil {
		return fmt.Errorf("dispatch: checkout: %w", err)
	}
	defer s.pool.Release(conn)

	if err := conn.Connect(ctx, s.pool.Target()); err != nil {
		return err
	}
	seq, err := conn.SendBatch(ctx, batch)
	if err != nil {
		return err
	}
	slog.Debug("dispatch: batch delivered", "conn", conn.ID(), "records", len(batch), "ack", seq)
	return nil
}
