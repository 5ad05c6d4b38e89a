package lumberjack

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"

	"github.com/obsidianstack/logship/pkg/types"
)

// Frame is one decoded frame. Which fields are set depends on Type.
type Frame struct {
	Type byte

	// Count is the announced number of data frames (window frames).
	Count uint32

	// Seq is the sequence number (data and ack frames).
	Seq uint32

	// Record holds the decoded fields (data frames).
	Record types.Record

	// Payload holds the inflated contents (compressed frames): the
	// concatenated data frames, ready for a nested Reader.
	Payload []byte
}

// Reader decodes a stream of frames.
type Reader struct {
	r   *bufio.Reader
	max int
}

// NewReader returns a Reader over r. max bounds payload and field sizes;
// zero or less selects DefaultMaxPayload.
func NewReader(r io.Reader, max int) *Reader {
	if max <= 0 {
		max = DefaultMaxPayload
	}
	return &Reader{r: bufio.NewReader(r), max: max}
}

// Next decodes the next frame. It returns io.EOF when the stream ends
// cleanly on a frame boundary and io.ErrUnexpectedEOF when it ends inside one.
func (r *Reader) Next() (Frame, error) {
	var hdr [headerLen]byte
	if _, err := io.ReadFull(r.r, hdr[:]); err != nil {
		return Frame{}, err
	}
	if hdr[0] != Version {
		return Frame{}, malformed("frame", "version %q, want %q", hdr[0], Version)
	}

	f := Frame{Type: hdr[1]}
	switch f.Type {
	case TypeWindow:
		n, err := r.uint32()
		if err != nil {
			return Frame{}, err
		}
		if int64(n) > int64(r.max)/minDataLen {
			return Frame{}, malformed("window", "count %d exceeds %d", n, r.max/minDataLen)
		}
		f.Count = n
	case TypeAck:
		n, err := r.uint32()
		if err != nil {
			return Frame{}, err
		}
		f.Seq = n
	case TypeData:
		seq, rec, err := r.data()
		if err != nil {
			return Frame{}, err
		}
		f.Seq, f.Record = seq, rec
	case TypeCompressed:
		n, err := r.uint32()
		if err != nil {
			return Frame{}, err
		}
		if int64(n) > int64(r.max) {
			return Frame{}, malformed("compressed", "payload length %d exceeds %d", n, r.max)
		}
		raw := make([]byte, n)
		if _, err := io.ReadFull(r.r, raw); err != nil {
			return Frame{}, unexpected(err)
		}
		payload, err := DecodeCompressed(raw, r.max)
		if err != nil {
			return Frame{}, err
		}
		f.Payload = payload
	default:
		return Frame{}, malformed("frame", "unknown type %q", f.Type)
	}
	return f, nil
}

func (r *Reader) data() (uint32, types.Record, error) {
	seq, err := r.uint32()
	if err != nil {
		return 0, nil, err
	}
	pairs, err := r.uint32()
	if err != nil {
		return 0, nil, err
	}
	// Each pair needs at least 8 bytes of length prefixes.
	if int64(pairs)*8 > int64(r.max) {
		return 0, nil, malformed("data", "pair count %d exceeds limit", pairs)
	}
	rec := make(types.Record, 0, pairs)
	for i := uint32(0); i < pairs; i++ {
		k, err := r.str()
		if err != nil {
			return 0, nil, err
		}
		v, err := r.str()
		if err != nil {
			return 0, nil, err
		}
		rec = append(rec, types.Field{Key: k, Value: v})
	}
	return seq, rec, nil
}

func (r *Reader) str() (string, error) {
	n, err := r.uint32()
	if err != nil {
		return "", err
	}
	if int64(n) > int64(r.max) {
		return "", malformed("data", "field length %d exceeds %d", n, r.max)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		return "", unexpected(err)
	}
	return string(b), nil
}

func (r *Reader) uint32() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		return 0, unexpected(err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// unexpected maps a clean EOF inside a frame to io.ErrUnexpectedEOF.
func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
