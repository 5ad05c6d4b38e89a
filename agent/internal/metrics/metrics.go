package metrics

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// Metric names exported by every agent.
const (
	BatchesSent   = "logship_batches_sent_total"
	BatchesFailed = "logship_batches_failed_total"
	RecordsSent   = "logship_records_sent_total"
	RecordsFailed = "logship_records_failed_total"
	EventsSkipped = "logship_events_skipped_total"
	CyclePanics   = "logship_cycle_panics_total"
)

// Pipeline holds the agent counters. The zero value is not usable; call New.
// All methods are safe for concurrent use.
type Pipeline struct {
	batchesSent   atomic.Uint64
	batchesFailed atomic.Uint64
	recordsSent   atomic.Uint64
	recordsFailed atomic.Uint64
	eventsSkipped atomic.Uint64
	cyclePanics   atomic.Uint64

	mu    sync.Mutex
	funcs []funcMetric
}

type funcMetric struct {
	name string
	help string
	typ  dto.MetricType
	fn   func() float64
}

// New returns an empty Pipeline.
func New() *Pipeline {
	return &Pipeline{}
}

// BatchSent records an acknowledged batch of n records.
func (p *Pipeline) BatchSent(n int) {
	p.batchesSent.Add(1)
	p.recordsSent.Add(uint64(n))
}

// BatchFailed records a batch of n records that was not delivered.
func (p *Pipeline) BatchFailed(n int) {
	p.batchesFailed.Add(1)
	p.recordsFailed.Add(uint64(n))
}

// EventSkipped records an event that produced no record.
func (p *Pipeline) EventSkipped() { p.eventsSkipped.Add(1) }

// CyclePanicked records a recovered panic in a dispatch cycle.
func (p *Pipeline) CyclePanicked() { p.cyclePanics.Add(1) }

// Snapshot is a point-in-time copy of the built-in counters.
type Snapshot struct {
	BatchesSent   uint64
	BatchesFailed uint64
	RecordsSent   uint64
	RecordsFailed uint64
	EventsSkipped uint64
	CyclePanics   uint64
}

// Snapshot returns the current counter values.
func (p *Pipeline) Snapshot() Snapshot {
	return Snapshot{
		BatchesSent:   p.batchesSent.Load(),
		BatchesFailed: p.batchesFailed.Load(),
		RecordsSent:   p.recordsSent.Load(),
		RecordsFailed: p.recordsFailed.Load(),
		EventsSkipped: p.eventsSkipped.Load(),
		CyclePanics:   p.cyclePanics.Load(),
	}
}

// GaugeFunc exports the value of fn, read at every scrape.
func (p *Pipeline) GaugeFunc(name, help string, fn func() float64) {
	p.register(funcMetric{name: name, help: help, typ: dto.MetricType_GAUGE, fn: fn})
}

// CounterFunc exports the monotonically increasing value of fn.
func (p *Pipeline) CounterFunc(name, help string, fn func() float64) {
	p.register(funcMetric{name: name, help: help, typ: dto.MetricType_COUNTER, fn: fn})
}

func (p *Pipeline) register(m funcMetric) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.funcs = append(p.funcs, m)
}

// Gather returns every metric as a family, sorted by name.
func (p *Pipeline) Gather() []*dto.MetricFamily {
	fams := []*dto.MetricFamily{
		counter(BatchesSent, "Batches acknowledged by the collector.", float64(p.batchesSent.Load())),
		counter(BatchesFailed, "Batches that could not be delivered.", float64(p.batchesFailed.Load())),
		counter(RecordsSent, "Records acknowledged by the collector.", float64(p.recordsSent.Load())),
		counter(RecordsFailed, "Records dropped with an undelivered batch.", float64(p.recordsFailed.Load())),
		counter(EventsSkipped, "Events that produced no record.", float64(p.eventsSkipped.Load())),
		counter(CyclePanics, "Recovered panics in the dispatch loop.", float64(p.cyclePanics.Load())),
	}

	p.mu.Lock()
	funcs := append([]funcMetric(nil), p.funcs...)
	p.mu.Unlock()
	for _, m := range funcs {
		fams = append(fams, family(m.name, m.help, m.typ, m.fn()))
	}

	sort.Slice(fams, func(i, j int) bool { return fams[i].GetName() < fams[j].GetName() })
	return fams
}

// WriteText renders all metrics in the Prometheus text format.
func (p *Pipeline) WriteText(w io.Writer) error {
	for _, mf := range p.Gather() {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("metrics: write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// Handler serves the metrics on GET.
func (p *Pipeline) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var buf bytes.Buffer
		if err := p.WriteText(&buf); err != nil {
			slog.Error("metrics: render failed", "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
		_, _ = w.Write(buf.Bytes())
	})
}

func counter(name, help string, v float64) *dto.MetricFamily {
	return family(name, help, dto.MetricType_COUNTER, v)
}

func family(name, help string, typ dto.MetricType, v float64) *dto.MetricFamily {
	m := &dto.Metric{}
	switch typ {
	case dto.MetricType_COUNTER:
		m.Counter = &dto.Counter{Value: proto.Float64(v)}
	default:
		m.Gauge = &dto.Gauge{Value: proto.Float64(v)}
	}
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   typ.Enum(),
		Metric: []*dto.Metric{m},
	}
}
