package lumberjack

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"

	"github.com/obsidianstack/logship/pkg/types"
)

// Version is the protocol version byte that prefixes every frame.
const Version byte = '1'

// Frame type bytes.
const (
	TypeWindow     byte = 'W'
	TypeData       byte = 'D'
	TypeCompressed byte = 'C'
	TypeAck        byte = 'A'
)

const (
	headerLen = 2
	ackLen    = headerLen + 4
	windowLen = headerLen + 4

	// minDataLen is the size of a data frame with no pairs.
	minDataLen = headerLen + 8
)

// DefaultMaxPayload bounds compressed payloads, decompressed payloads and
// individual field lengths accepted by the decoder.
const DefaultMaxPayload = 64 << 20

// zlibWriters holds default-level writers; callers Reset them onto a buffer.
var zlibWriters = sync.Pool{
	New: func() any { return zlib.NewWriter(nil) },
}

// EncodeWindow returns a window frame announcing count data frames.
func EncodeWindow(count uint32) []byte {
	b := make([]byte, windowLen)
	b[0], b[1] = Version, TypeWindow
	binary.BigEndian.PutUint32(b[2:], count)
	return b
}

// EncodeDataFrame returns one data frame carrying rec tagged with seq.
// Keys and values are written as-is; the codec never truncates.
func EncodeDataFrame(seq uint32, rec types.Record) []byte {
	size := headerLen + 8
	for _, f := range rec {
		size += 8 + len(f.Key) + len(f.Value)
	}
	b := make([]byte, 0, size)
	b = append(b, Version, TypeData)
	b = binary.BigEndian.AppendUint32(b, seq)
	b = binary.BigEndian.AppendUint32(b, uint32(len(rec)))
	for _, f := range rec {
		b = binary.BigEndian.AppendUint32(b, uint32(len(f.Key)))
		b = append(b, f.Key...)
		b = binary.BigEndian.AppendUint32(b, uint32(len(f.Value)))
		b = append(b, f.Value...)
	}
	return b
}

// EncodeCompressed concatenates the given encoded data frames and wraps them
// in a single zlib-compressed frame.
func EncodeCompressed(frames ...[]byte) ([]byte, error) {
	var payload bytes.Buffer
	zw := zlibWriters.Get().(*zlib.Writer)
	defer zlibWriters.Put(zw)
	zw.Reset(&payload)

	for _, f := range frames {
		if _, err := zw.Write(f); err != nil {
			return nil, fmt.Errorf("lumberjack: compress: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("lumberjack: compress: %w", err)
	}

	b := make([]byte, 0, headerLen+4+payload.Len())
	b = append(b, Version, TypeCompressed)
	b = binary.BigEndian.AppendUint32(b, uint32(payload.Len()))
	return append(b, payload.Bytes()...), nil
}

// EncodeBatch encodes a whole transmission: the window frame followed by one
// compressed frame holding a data frame per record, sequenced from 1.
func EncodeBatch(batch types.Batch) ([]byte, error) {
	if len(batch) == 0 {
		return nil, ErrEmptyBatch
	}
	frames := make([][]byte, len(batch))
	for i, rec := range batch {
		frames[i] = EncodeDataFrame(uint32(i+1), rec)
	}
	compressed, err := EncodeCompressed(frames...)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, windowLen+len(compressed))
	out = append(out, EncodeWindow(uint32(len(batch)))...)
	return append(out, compressed...), nil
}

// EncodeAck returns an ack frame confirming everything up to seq.
func EncodeAck(seq uint32) []byte {
	b := make([]byte, ackLen)
	b[0], b[1] = Version, TypeAck
	binary.BigEndian.PutUint32(b[2:], seq)
	return b
}

// DecodeAck parses an ack frame and returns the sequence it confirms.
func DecodeAck(b []byte) (uint32, error) {
	if len(b) != ackLen {
		return 0, malformed("ack", "length %d, want %d", len(b), ackLen)
	}
	if b[0] != Version {
		return 0, malformed("ack", "version %q, want %q", b[0], Version)
	}
	if b[1] != TypeAck {
		return 0, malformed("ack", "type %q, want %q", b[1], TypeAck)
	}
	return binary.BigEndian.Uint32(b[2:]), nil
}

// ReadAck reads exactly one ack frame from r. I/O errors are returned
// unchanged; a frame with the wrong tag is a *MalformedFrameError.
func ReadAck(r io.Reader) (uint32, error) {
	var b [ackLen]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return DecodeAck(b[:])
}

// DecodeCompressed inflates the payload of a compressed frame (everything
// after the length prefix), refusing output larger than max bytes.
func DecodeCompressed(payload []byte, max int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, malformed("compressed", "zlib header: %v", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, int64(max)+1))
	if err != nil {
		return nil, malformed("compressed", "inflate: %v", err)
	}
	if len(out) > max {
		return nil, malformed("compressed", "inflated payload exceeds %d bytes", max)
	}
	return out, nil
}
