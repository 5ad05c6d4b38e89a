package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/obsidianstack/logship/pkg/types"
)

// Peer is the delivery summary of one agent address.
type Peer struct {
	Addr      string
	FirstSeen time.Time
	UpdatedAt time.Time

	Batches uint64
	Records uint64

	// LastBatchRecords and LastSeq describe the most recent batch.
	LastBatchRecords int
	LastSeq          uint32
	LastType         string

	// Types counts records per event type.
	Types map[string]uint64
}

func (p *Peer) clone() *Peer {
	cp := *p
	cp.Types = make(map[string]uint64, len(p.Types))
	for k, v := range p.Types {
		cp.Types[k] = v
	}
	return &cp
}

// Store is a thread-safe in-memory peer store, keyed by remote address.
// A background goroutine (Run) periodically evicts peers that have not
// delivered within the configured TTL.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Peer
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		data: make(map[string]*Peer),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Record adds an accepted batch from addr acknowledged with seq and
// returns a copy of the updated peer.
func (s *Store) Record(addr string, batch types.Batch, seq uint32) *Peer {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	p, ok := s.data[addr]
	if !ok {
		p = &Peer{Addr: addr, FirstSeen: now, Types: make(map[string]uint64)}
		s.data[addr] = p
	}

	p.UpdatedAt = now
	p.Batches++
	p.Records += uint64(len(batch))
	p.LastBatchRecords = len(batch)
	p.LastSeq = seq
	for _, rec := range batch {
		t, ok := rec.Get("type")
		if !ok || t == "" {
			t = "unknown"
		}
		p.Types[t]++
		p.LastType = t
	}
	return p.clone()
}

// Get returns a copy of the peer for addr and whether it was found. The
// peer may be stale if the TTL has elapsed.
func (s *Store) Get(addr string) (*Peer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.data[addr]
	if !ok {
		return nil, false
	}
	return p.clone(), true
}

// List returns copies of all peers updated within the TTL, sorted by
// address. Stale peers that have not yet been evicted are excluded.
func (s *Store) List() []*Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]*Peer, 0, len(s.data))
	for _, p := range s.data {
		if p.UpdatedAt.After(cutoff) {
			out = append(out, p.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

// TTL returns the configured peer time-to-live.
func (s *Store) TTL() time.Duration { return s.ttl }

// Count returns the total number of peers currently held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes peers whose UpdatedAt is older than now minus TTL.
// It returns the number of peers removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for addr, p := range s.data {
		if !p.UpdatedAt.After(cutoff) {
			delete(s.data, addr)
			removed++
		}
	}
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// (minimum 1 second) and blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted idle peers", "count", n)
			}
		}
	}
}
