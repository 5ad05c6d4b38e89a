package format

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	json "github.com/goccy/go-json"

	"github.com/obsidianstack/logship/pkg/types"
)

// DefaultVersion is the "@version" stamped on events when none is set.
const DefaultVersion = "1"

// Metadata keys added to every event.
const (
	KeyType       = "type"
	KeyHostName   = "hostName"
	KeyServerName = "serverName"
	KeyServerDir  = "serverDir"
	KeyVersion    = "@version"
	KeyTags       = "tags"
	KeySource     = "source"
	KeyLocation   = "location"
	KeyTimestamp  = "@timestamp"
)

// Record field names.
const (
	FieldType = "type"
	FieldLine = "line"
)

// ErrEmptyEvent is returned when an event has no content. Callers skip it.
var ErrEmptyEvent = errors.New("format: empty event")

// Identity describes the server emitting events.
type Identity struct {
	ServerName string
	ServerDir  string
	HostName   string
}

// Formatter builds records. It is safe for concurrent use; SetIdentity may
// be called while other goroutines format.
type Formatter struct {
	mu      sync.RWMutex
	id      Identity
	version string

	now func() time.Time
}

// New returns a Formatter stamping events with id and version. An empty
// version selects DefaultVersion.
func New(id Identity, version string) *Formatter {
	f := &Formatter{now: time.Now}
	f.SetIdentity(id, version)
	return f
}

// SetIdentity replaces the identity and version used for later events.
func (f *Formatter) SetIdentity(id Identity, version string) {
	if version == "" {
		version = DefaultVersion
	}
	f.mu.Lock()
	f.id, f.version = id, version
	f.mu.Unlock()
}

// Format converts raw into a record. String values of raw longer than
// maxFieldLength runes are truncated; maxFieldLength <= 0 disables the
// limit. raw is not modified.
func (f *Formatter) Format(source, location string, raw map[string]any, tags []string, maxFieldLength int) (types.Record, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyEvent
	}

	f.mu.RLock()
	id, version := f.id, f.version
	f.mu.RUnlock()

	ev := make(map[string]any, len(raw)+9)
	for k, v := range raw {
		if s, ok := v.(string); ok {
			v = Truncate(s, maxFieldLength)
		}
		ev[k] = v
	}

	eventType := EventType(source, location)
	ev[KeyType] = eventType
	ev[KeyHostName] = id.HostName
	ev[KeyServerName] = id.ServerName
	ev[KeyServerDir] = id.ServerDir
	ev[KeyVersion] = version
	ev[KeySource] = source
	ev[KeyLocation] = location
	if len(tags) > 0 {
		ev[KeyTags] = tags
	}
	if _, ok := ev[KeyTimestamp]; !ok {
		ev[KeyTimestamp] = f.now().UTC().Format(time.RFC3339Nano)
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("format: marshal %s event: %w", eventType, err)
	}

	return types.Record{
		{Key: FieldType, Value: eventType},
		{Key: FieldLine, Value: string(line)},
	}, nil
}

// knownSources are the source kinds with a reserved event type.
var knownSources = map[string]bool{
	"message":   true,
	"trace":     true,
	"accesslog": true,
	"ffdc":      true,
	"gc":        true,
	"audit":     true,
}

// EventType derives the event type from a source and location. Dotted
// source names use their last segment. Unknown kinds are prefixed with
// "custom_". Locations other than "" and "memory" are appended as a suffix.
func EventType(source, location string) string {
	kind := source
	if i := strings.LastIndexByte(kind, '.'); i >= 0 {
		kind = kind[i+1:]
	}

	t := strings.ToLower(kind)
	if !knownSources[t] {
		t = "custom_" + sanitize(kind)
	}
	if location != "" && location != "memory" {
		t += "_" + sanitize(location)
	}
	return t
}

func sanitize(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, s)
}

// Truncate shortens s to at most max runes. max <= 0 returns s unchanged.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
