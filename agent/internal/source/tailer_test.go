package source

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidianstack/logship/agent/internal/config"
	"github.com/obsidianstack/logship/agent/internal/format"
	"github.com/obsidianstack/logship/agent/internal/metrics"
	"github.com/obsidianstack/logship/pkg/types"
)

type memSink struct {
	mu   sync.Mutex
	recs []types.Record
}

func (s *memSink) Enqueue(rec types.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
}

func (s *memSink) events(t *testing.T) []map[string]any {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0, len(s.recs))
	for _, r := range s.recs {
		line, ok := r.Get("line")
		require.True(t, ok)
		var ev map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		out = append(out, ev)
	}
	return out
}

func (s *memSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

func TestParseLine(t *testing.T) {
	assert.Nil(t, parseLine("   ", "/f"))
	assert.Equal(t, map[string]any{"message": "plain text", "file": "/f"}, parseLine("plain text\r\n", "/f"))
	assert.Equal(t, map[string]any{"level": "WARN", "n": float64(2)}, parseLine(`{"level":"WARN","n":2}`, "/f"))
	assert.Equal(t, map[string]any{"message": "{not json", "file": "/f"}, parseLine("{not json", "/f"))
	assert.Equal(t, map[string]any{"message": "{}", "file": "/f"}, parseLine("{}", "/f"))
}

func TestGroup_TailsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	require.NoError(t, os.WriteFile(path, []byte("first line\n\n{\"message\":\"json line\",\"level\":\"ERROR\"}\n"), 0o600))

	sink := &memSink{}
	m := metrics.New()
	f := format.New(format.Identity{ServerName: "web-1", HostName: "h"}, "")
	src := config.Source{ID: "app", Type: "message", Path: path, FromBeginning: true, Tags: []string{"app"}}

	g := NewGroup([]config.Source{src}, f, sink, m, Settings{Tags: []string{"prod"}, MaxFieldLength: 8})
	g.poll = true

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	require.Eventually(t, func() bool { return sink.len() == 2 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, uint64(1), m.Snapshot().EventsSkipped, "blank line skipped")

	fh, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = fh.WriteString("appended\n")
	require.NoError(t, err)
	require.NoError(t, fh.Close())

	require.Eventually(t, func() bool { return sink.len() == 3 }, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	evs := sink.events(t)
	assert.Equal(t, "first li", evs[0]["message"], "truncated to max field length")
	assert.Equal(t, format.Truncate(path, 8), evs[0]["file"])
	assert.Equal(t, "message_file", evs[0]["type"])
	assert.Equal(t, []any{"prod", "app"}, evs[0]["tags"])
	assert.Equal(t, "ERROR", evs[1]["level"])
	assert.Equal(t, "appended", evs[2]["message"])
}

func TestGroup_SetSettings(t *testing.T) {
	sink := &memSink{}
	f := format.New(format.Identity{}, "")
	src := config.Source{ID: "a", Type: "trace", Path: "/x", Location: "memory"}
	g := NewGroup(nil, f, sink, nil, Settings{Tags: []string{"old"}})

	g.handle(src, "memory", "one")
	g.SetSettings(Settings{Tags: []string{"new"}, MaxFieldLength: 2})
	g.handle(src, "memory", "two")

	evs := sink.events(t)
	require.Len(t, evs, 2)
	assert.Equal(t, []any{"old"}, evs[0]["tags"])
	assert.Equal(t, "trace", evs[0]["type"])
	assert.Equal(t, []any{"new"}, evs[1]["tags"])
	assert.Equal(t, "tw", evs[1]["message"])
}
