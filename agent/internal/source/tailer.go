package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	json "github.com/goccy/go-json"
	"github.com/hpcloud/tail"
	"golang.org/x/sync/errgroup"

	"github.com/obsidianstack/logship/agent/internal/config"
	"github.com/obsidianstack/logship/agent/internal/format"
	"github.com/obsidianstack/logship/agent/internal/metrics"
	"github.com/obsidianstack/logship/pkg/types"
)

// DefaultLocation is used for sources without a location.
const DefaultLocation = "file"

// Formatter turns a raw event into a record.
type Formatter interface {
	Format(source, location string, raw map[string]any, tags []string, maxFieldLength int) (types.Record, error)
}

// Sink receives formatted records. It must not block.
type Sink interface {
	Enqueue(rec types.Record)
}

// Settings are the formatting parameters shared by every tailer. They can
// be replaced while tailers run.
type Settings struct {
	Tags           []string
	MaxFieldLength int
}

// Group runs one tailer per configured source.
type Group struct {
	sources  []config.Source
	format   Formatter
	sink     Sink
	metrics  *metrics.Pipeline
	settings atomic.Pointer[Settings]

	// poll makes tailers poll for changes instead of using inotify.
	poll bool
}

// NewGroup returns a group for sources. A nil m counts into a private
// pipeline.
func NewGroup(sources []config.Source, f Formatter, sink Sink, m *metrics.Pipeline, s Settings) *Group {
	if m == nil {
		m = metrics.New()
	}
	g := &Group{sources: sources, format: f, sink: sink, metrics: m}
	g.SetSettings(s)
	return g
}

// SetSettings replaces the tags and field length limit for later lines.
func (g *Group) SetSettings(s Settings) {
	s.Tags = append([]string(nil), s.Tags...)
	g.settings.Store(&s)
}

// Run tails every source until ctx ends. It returns the first error that
// stops a tailer.
func (g *Group) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, src := range g.sources {
		eg.Go(func() error { return g.tail(ctx, src) })
	}
	return eg.Wait()
}

func (g *Group) tail(ctx context.Context, src config.Source) error {
	location := src.Location
	if location == "" {
		location = DefaultLocation
	}

	seek := &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	if src.FromBeginning {
		seek = &tail.SeekInfo{Offset: 0, Whence: io.SeekStart}
	}
	t, err := tail.TailFile(src.Path, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Poll:     g.poll,
		Location: seek,
		Logger:   tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("source %q: tail %s: %w", src.ID, src.Path, err)
	}
	defer t.Cleanup()
	defer t.Stop() //nolint:errcheck

	slog.Info("source: tailing", "source", src.ID, "path", src.Path, "type", src.Type)

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line == nil {
				continue
			}
			if line.Err != nil {
				slog.Warn("source: read error", "source", src.ID, "path", src.Path, "err", line.Err)
				continue
			}
			g.handle(src, location, line.Text)
		}
	}
}

func (g *Group) handle(src config.Source, location, text string) {
	raw := parseLine(text, src.Path)
	if raw == nil {
		g.metrics.EventSkipped()
		return
	}

	st := g.settings.Load()
	tags := st.Tags
	if len(src.Tags) > 0 {
		tags = append(append(make([]string, 0, len(tags)+len(src.Tags)), tags...), src.Tags...)
	}

	rec, err := g.format.Format(src.Type, location, raw, tags, st.MaxFieldLength)
	if err != nil {
		g.metrics.EventSkipped()
		if !errors.Is(err, format.ErrEmptyEvent) {
			slog.Warn("source: format failed", "source", src.ID, "err", err)
		}
		return
	}
	g.sink.Enqueue(rec)
}

// parseLine returns the raw event for one line, or nil for a blank line.
func parseLine(text, path string) map[string]any {
	text = strings.TrimRight(text, "\r\n")
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if strings.HasPrefix(trimmed, "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(trimmed), &obj); err == nil && len(obj) > 0 {
			return obj
		}
	}
	return map[string]any{"message": text, "file": path}
}
