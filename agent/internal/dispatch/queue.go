package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/obsidianstack/logship/pkg/types"
)

// Queue is a bounded FIFO of records shared by every source and the
// scheduler. Enqueue never blocks; when the queue is full the oldest
// record is evicted to make room.
type Queue struct {
	buf chan types.Record

	// mu serializes producers so an eviction always frees the slot the
	// same producer then fills.
	mu          sync.Mutex
	dropped     atomic.Uint64
	overflowing bool
}

// NewQueue returns a queue holding at most size records.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{buf: make(chan types.Record, size)}
}

// Enqueue adds rec, evicting the oldest record when the queue is full.
func (q *Queue) Enqueue(rec types.Record) {
	q.mu.Lock()
	defer q.mu.Unlock()

	select {
	case q.buf <- rec:
		q.overflowing = false
		return
	default:
	}

	select {
	case <-q.buf:
		q.dropped.Add(1)
		if !q.overflowing {
			q.overflowing = true
			slog.Warn("dispatch: queue full, evicting oldest records",
				"capacity", cap(q.buf), "dropped_total", q.dropped.Load())
		}
	default:
	}
	q.buf <- rec
}

// Next collects up to max records. It returns as soon as max records are
// available, or when wait has elapsed since the first record arrived, or
// when ctx ends. Records collected before ctx ended are returned.
func (q *Queue) Next(ctx context.Context, max int, wait time.Duration) types.Batch {
	if max <= 0 {
		max = 1
	}

	var batch types.Batch
	select {
	case rec := <-q.buf:
		batch = append(make(types.Batch, 0, max), rec)
	case <-ctx.Done():
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	for len(batch) < max {
		select {
		case rec := <-q.buf:
			batch = append(batch, rec)
		case <-timer.C:
			return batch
		case <-ctx.Done():
			return batch
		}
	}
	return batch
}

// Len returns the number of queued records.
func (q *Queue) Len() int { return len(q.buf) }

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return cap(q.buf) }

// Dropped returns how many records have been evicted since creation.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }
