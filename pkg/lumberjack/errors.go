package lumberjack

import (
	"errors"
	"fmt"
)

// ErrEmptyBatch is returned by EncodeBatch for a batch with no records.
// Callers skip the transmission entirely rather than send an empty window.
var ErrEmptyBatch = errors.New("lumberjack: empty batch")

// MalformedFrameError reports a frame whose tag or layout does not match
// the protocol.
type MalformedFrameError struct {
	Frame  string // frame kind being decoded: "ack", "window", "data", ...
	Reason string
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("lumberjack: malformed %s frame: %s", e.Frame, e.Reason)
}

func malformed(frame, format string, args ...any) error {
	return &MalformedFrameError{Frame: frame, Reason: fmt.Sprintf(format, args...)}
}
