package mpegts

import (
	"context"
	"errors"
	"io"
)

// readerChunk is the read buffer size: seven packets. A source that returns
// short reads can still split a packet across calls; the demuxer's pending
// tail joins the pieces.
const readerChunk = 7 * PacketSize

// Reader is the pull form of the demuxer: it reads TS bytes from an
// io.Reader and hands out one Container at a time.
type Reader struct {
	ctx   context.Context
	r     io.Reader
	d     *Demuxer
	buf   []byte
	queue []*Container
	eof   bool
}

// NewReader wraps r with a Demuxer configured by opts. The context is
// checked between reads.
func NewReader(ctx context.Context, r io.Reader, opts ...func(*Demuxer)) *Reader {
	return &Reader{
		ctx: ctx,
		r:   r,
		d:   NewDemuxer(opts...),
		buf: make([]byte, readerChunk),
	}
}

// NextData returns the next Container from the stream. It returns io.EOF
// once the source is exhausted and the final aggregator drain has been
// delivered.
func (r *Reader) NextData() (*Container, error) {
	for {
		if len(r.queue) > 0 {
			c := r.queue[0]
			r.queue = r.queue[1:]
			return c, nil
		}
		if r.eof {
			return nil, io.EOF
		}
		if err := r.ctx.Err(); err != nil {
			return nil, err
		}

		n, err := r.r.Read(r.buf)
		if n > 0 {
			cs, derr := r.d.Push(r.buf[:n])
			r.queue = append(r.queue, cs...)
			if derr != nil {
				return nil, derr
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return nil, err
			}
			r.eof = true
			cs, derr := r.d.Flush()
			r.queue = append(r.queue, cs...)
			if derr != nil {
				return nil, derr
			}
		}
	}
}
