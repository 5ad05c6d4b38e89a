package lumberjack

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/obsidianstack/logship/pkg/types"
)

// Handler receives one fully decoded window. Returning an error closes the
// connection without acknowledging the window, so the sender retries.
type Handler func(ctx context.Context, batch types.Batch) error

// ServeOptions tunes ServeConn.
type ServeOptions struct {
	// MaxPayload bounds frame payloads; zero selects DefaultMaxPayload.
	MaxPayload int

	// ReadTimeout is the idle limit between frames; zero disables it.
	ReadTimeout time.Duration
}

// ServeConn speaks the collector side of the protocol on conn until the
// peer disconnects, ctx is cancelled, or a protocol error occurs. A clean
// disconnect on a window boundary returns nil. conn is closed on return.
func ServeConn(ctx context.Context, conn net.Conn, h Handler, opts ServeOptions) error {
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	fr := NewReader(conn, opts.MaxPayload)
	for {
		if opts.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
		}
		f, err := fr.Next()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if f.Type != TypeWindow {
			return malformed("frame", "got %q before window", f.Type)
		}

		batch, last, err := readWindow(fr, f.Count, opts.MaxPayload)
		if err != nil {
			return err
		}
		if len(batch) > 0 {
			if err := h(ctx, batch); err != nil {
				return fmt.Errorf("lumberjack: handler: %w", err)
			}
		}
		if _, err := conn.Write(EncodeAck(last)); err != nil {
			return fmt.Errorf("lumberjack: write ack: %w", err)
		}
	}
}

// maxPrealloc caps the batch capacity reserved from a window count before
// any data frame has arrived.
const maxPrealloc = 1024

// readWindow collects count data frames, raw or inside compressed frames,
// and returns them with the last sequence seen.
func readWindow(fr *Reader, count uint32, max int) (types.Batch, uint32, error) {
	batch := make(types.Batch, 0, min(count, maxPrealloc))
	var last uint32

	add := func(f Frame) error {
		if uint32(len(batch)) >= count {
			return malformed("data", "more than %d frames in window", count)
		}
		batch = append(batch, f.Record)
		last = f.Seq
		return nil
	}

	for uint32(len(batch)) < count {
		f, err := fr.Next()
		if err != nil {
			return nil, 0, unexpected(err)
		}
		switch f.Type {
		case TypeData:
			if err := add(f); err != nil {
				return nil, 0, err
			}
		case TypeCompressed:
			inner := NewReader(bytes.NewReader(f.Payload), max)
			for {
				df, err := inner.Next()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return nil, 0, err
				}
				if df.Type != TypeData {
					return nil, 0, malformed("compressed", "nested %q frame", df.Type)
				}
				if err := add(df); err != nil {
					return nil, 0, err
				}
			}
		default:
			return nil, 0, malformed("frame", "unexpected %q inside window", f.Type)
		}
	}
	return batch, last, nil
}
