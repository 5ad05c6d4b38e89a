package format

import (
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidianstack/logship/pkg/types"
)

var testIdentity = Identity{ServerName: "web-1", ServerDir: "/srv/app", HostName: "host-a"}

func newTestFormatter() *Formatter {
	f := New(testIdentity, "")
	f.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

// decodeLine returns the event type and the JSON object in rec.
func decodeLine(t *testing.T, rec types.Record) (string, map[string]any) {
	t.Helper()
	require.Len(t, rec, 2)
	assert.Equal(t, FieldType, rec[0].Key)
	assert.Equal(t, FieldLine, rec[1].Key)

	var ev map[string]any
	require.NoError(t, json.Unmarshal([]byte(rec[1].Value), &ev))
	return rec[0].Value, ev
}

func TestFormat_Metadata(t *testing.T) {
	f := newTestFormatter()
	raw := map[string]any{"message": "started", "level": "INFO", "count": 3}

	rec, err := f.Format("message", "file", raw, []string{"prod", "eu"}, 0)
	require.NoError(t, err)

	typ, ev := decodeLine(t, rec)
	assert.Equal(t, "message_file", typ)
	assert.Equal(t, "message_file", ev[KeyType])
	assert.Equal(t, "started", ev["message"])
	assert.EqualValues(t, 3, ev["count"])
	assert.Equal(t, "host-a", ev[KeyHostName])
	assert.Equal(t, "web-1", ev[KeyServerName])
	assert.Equal(t, "/srv/app", ev[KeyServerDir])
	assert.Equal(t, DefaultVersion, ev[KeyVersion])
	assert.Equal(t, "message", ev[KeySource])
	assert.Equal(t, "file", ev[KeyLocation])
	assert.Equal(t, []any{"prod", "eu"}, ev[KeyTags])
	assert.Equal(t, "2024-03-01T12:00:00Z", ev[KeyTimestamp])
}

func TestFormat_KeepsEventTimestamp(t *testing.T) {
	f := newTestFormatter()
	rec, err := f.Format("trace", "", map[string]any{KeyTimestamp: "2020-01-01T00:00:00Z"}, nil, 0)
	require.NoError(t, err)

	_, ev := decodeLine(t, rec)
	assert.Equal(t, "2020-01-01T00:00:00Z", ev[KeyTimestamp])
	assert.NotContains(t, ev, KeyTags, "no tags key without tags")
}

func TestFormat_Empty(t *testing.T) {
	f := newTestFormatter()
	_, err := f.Format("message", "", nil, nil, 0)
	assert.ErrorIs(t, err, ErrEmptyEvent)
	_, err = f.Format("message", "", map[string]any{}, nil, 0)
	assert.ErrorIs(t, err, ErrEmptyEvent)
}

func TestFormat_TruncatesNotDrops(t *testing.T) {
	f := newTestFormatter()
	long := strings.Repeat("x", 50)
	raw := map[string]any{"message": long, "short": "ok"}

	rec, err := f.Format("message", "", raw, nil, 10)
	require.NoError(t, err)

	_, ev := decodeLine(t, rec)
	assert.Equal(t, strings.Repeat("x", 10), ev["message"])
	assert.Equal(t, "ok", ev["short"])
	assert.Equal(t, long, raw["message"], "input is not modified")
}

func TestFormat_Deterministic(t *testing.T) {
	f := newTestFormatter()
	raw := map[string]any{"b": "2", "a": "1", "c": "3"}

	first, err := f.Format("gc", "", raw, nil, 0)
	require.NoError(t, err)
	for range 5 {
		again, err := f.Format("gc", "", raw, nil, 0)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestFormat_SetIdentity(t *testing.T) {
	f := newTestFormatter()
	f.SetIdentity(Identity{ServerName: "web-2", HostName: "host-b"}, "2")

	rec, err := f.Format("audit", "", map[string]any{"m": "x"}, nil, 0)
	require.NoError(t, err)
	_, ev := decodeLine(t, rec)
	assert.Equal(t, "web-2", ev[KeyServerName])
	assert.Equal(t, "host-b", ev[KeyHostName])
	assert.Equal(t, "2", ev[KeyVersion])
}

func TestFormat_ConcurrentSetIdentity(t *testing.T) {
	f := newTestFormatter()
	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				if i == 0 {
					f.SetIdentity(testIdentity, "")
					continue
				}
				_, err := f.Format("message", "", map[string]any{"m": "x"}, nil, 0)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
}

func TestEventType(t *testing.T) {
	tests := []struct {
		source, location, want string
	}{
		{"message", "", "message"},
		{"message", "memory", "message"},
		{"accesslog", "file", "accesslog_file"},
		{"com.example.logging.source.trace", "", "trace"},
		{"FFDC", "", "ffdc"},
		{"my-app.Events", "", "custom_events"},
		{"My App", "remote/eu", "custom_my_app_remote_eu"},
		{"", "", "custom_unknown"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, EventType(tc.source, tc.location), "EventType(%q, %q)", tc.source, tc.location)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 0, "hello"},
		{"hello", -1, "hello"},
		{"hello", 5, "hello"},
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"héllo wörld", 4, "héll"},
		{"日本語テキスト", 3, "日本語"},
		{"", 3, ""},
	}
	for _, tc := range tests {
		got := Truncate(tc.in, tc.max)
		assert.Equal(t, tc.want, got, "Truncate(%q, %d)", tc.in, tc.max)
	}
}
