package health

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// uptimeWindow is the number of recent windows tracked for uptime %.
const uptimeWindow = 20

// Sample is a point-in-time read of the pipeline counters. Counter fields
// are totals since start; QueueLen and QueueCap are current values.
type Sample struct {
	BatchesSent    uint64
	BatchesFailed  uint64
	RecordsSent    uint64
	RecordsFailed  uint64
	RecordsEvicted uint64
	QueueLen       int
	QueueCap       int
}

// Report is the health derived from the last two samples.
type Report struct {
	Timestamp    time.Time
	State        string
	Score        float64
	LossPct      float64
	DeliveryRate float64
	BacklogPct   float64
	UptimePct    float64
	ThroughputPM float64 // records acknowledged per minute
}

// Tracker keeps the previous sample and window history.
// All exported methods are safe for concurrent use.
type Tracker struct {
	mu          sync.Mutex
	prev        Sample
	prevTime    time.Time
	hasBaseline bool
	history     []bool // newest last
	last        Report
}

// NewTracker returns a ready-to-use Tracker.
func NewTracker() *Tracker {
	return &Tracker{last: Report{State: StateUnknown}}
}

// Observe ingests s taken at now and returns the derived report. The first
// call records the baseline and reports "unknown".
func (t *Tracker) Observe(s Sample, now time.Time) Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := Report{Timestamp: now, State: StateUnknown}
	if s.QueueCap > 0 {
		out.BacklogPct = float64(s.QueueLen) / float64(s.QueueCap) * 100
	}

	if !t.hasBaseline {
		t.prev, t.prevTime, t.hasBaseline = s, now, true
		t.last = out
		return out
	}

	elapsed := now.Sub(t.prevTime).Minutes()
	if elapsed <= 0 {
		elapsed = 1 // guard against zero or negative clock drift
	}

	sent := deltaOf(s.RecordsSent, t.prev.RecordsSent)
	lost := deltaOf(s.RecordsFailed, t.prev.RecordsFailed) + deltaOf(s.RecordsEvicted, t.prev.RecordsEvicted)
	batchesOK := deltaOf(s.BatchesSent, t.prev.BatchesSent)
	batchesBad := deltaOf(s.BatchesFailed, t.prev.BatchesFailed)

	t.recordWindow(batchesBad == 0)
	out.UptimePct = t.uptimePct()

	if total := sent + lost; total > 0 {
		out.LossPct = float64(lost) / float64(total) * 100
	}
	if batches := batchesOK + batchesBad; batches > 0 {
		out.DeliveryRate = float64(batchesOK) / float64(batches) * 100
	} else {
		// Nothing to send is not a delivery failure.
		out.DeliveryRate = 100
	}
	out.ThroughputPM = float64(sent) / elapsed

	score := Compute(Input{
		LossPct:      out.LossPct,
		DeliveryRate: out.DeliveryRate,
		BacklogPct:   out.BacklogPct,
		UptimePct:    out.UptimePct,
	})
	out.State = score.State
	out.Score = score.Score

	t.prev, t.prevTime = s, now
	t.last = out
	return out
}

// Last returns the most recent report.
func (t *Tracker) Last() Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Run samples every interval until ctx ends, logging state changes at
// info level and every report at debug level.
func (t *Tracker) Run(ctx context.Context, interval time.Duration, sample func() Sample) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	t.Observe(sample(), time.Now())
	prevState := StateUnknown
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r := t.Observe(sample(), now)
			attrs := []any{
				"state", r.State,
				"score", r.Score,
				"loss_pct", r.LossPct,
				"delivery_rate", r.DeliveryRate,
				"backlog_pct", r.BacklogPct,
				"throughput_pm", r.ThroughputPM,
			}
			if r.State != prevState {
				slog.Info("health: delivery state changed", append(attrs, "from", prevState)...)
				prevState = r.State
				continue
			}
			slog.Debug("health: report", attrs...)
		}
	}
}

func (t *Tracker) recordWindow(clean bool) {
	if len(t.history) >= uptimeWindow {
		t.history = t.history[1:]
	}
	t.history = append(t.history, clean)
}

func (t *Tracker) uptimePct() float64 {
	if len(t.history) == 0 {
		return 100
	}
	var ok int
	for _, clean := range t.history {
		if clean {
			ok++
		}
	}
	return float64(ok) / float64(len(t.history)) * 100
}

// deltaOf returns the counter delta between current and previous, or 0
// if the counter went backwards.
func deltaOf(current, previous uint64) uint64 {
	if current < previous {
		return 0
	}
	return current - previous
}
