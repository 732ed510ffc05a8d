// Package channel adapts a raw byte stream (a pipe or socketpair to a web
// extension process) into a stream of decoded messages.
//
// Reads accumulate into an internal buffer; complete frames are decoded out
// of it and partial trailing bytes are kept for the next read. Reads must
// come from a single goroutine. Writes are serialized by an internal mutex.
package channel

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/jonas-schievink/luakit/codec"
	"github.com/jonas-schievink/luakit/message"
	"github.com/jonas-schievink/luakit/protocol"
)

// readChunk is the scratch size for a single read from the endpoint.
const readChunk = 32 * 1024

// Channel wraps one bidirectional byte-stream endpoint.
type Channel struct {
	rwc     io.ReadWriteCloser
	buf     []byte // accumulated, not-yet-decoded bytes
	scratch []byte
	corrupt bool // set when the stream can no longer be re-framed

	sending sync.Mutex // serializes whole-frame writes
	closeMu sync.Mutex
	closed  bool
}

// New wraps an endpoint. The endpoint is typically one end of a pipe or
// socketpair; anything satisfying io.ReadWriteCloser works (net.Pipe in
// tests).
func New(rwc io.ReadWriteCloser) *Channel {
	return &Channel{
		rwc:     rwc,
		scratch: make([]byte, readChunk),
	}
}

// Fill performs one blocking read from the endpoint and appends whatever
// arrived to the internal buffer. This is the Go rendition of a readiness
// notification: call it when (or until) there is data to consume.
func (c *Channel) Fill() error {
	if c.corrupt {
		return fmt.Errorf("%w: stream corrupt", protocol.ErrChannelClosed)
	}

	n, err := c.rwc.Read(c.scratch)
	if n > 0 {
		c.buf = append(c.buf, c.scratch[:n]...)
		// Bytes before error: let the caller decode them first. The
		// error will surface again on the next Fill.
		return nil
	}
	if err != nil {
		return closeError(err)
	}
	return nil
}

// PopMsg decodes one complete message from the internal buffer without
// reading from the endpoint.
//
//   - protocol.ErrTruncatedFrame: no complete frame buffered; the partial
//     bytes stay put for the next Fill.
//   - protocol violations (unknown type, size mismatch): the offending
//     frame has been consumed and the stream remains usable — except for an
//     oversized declared length, which poisons the channel since the frame
//     boundary is lost.
func (c *Channel) PopMsg() (*message.Msg, error) {
	if c.corrupt {
		return nil, fmt.Errorf("%w: stream corrupt", protocol.ErrChannelClosed)
	}

	h, body, n, err := protocol.DecodeFrame(c.buf)
	if err != nil {
		if errors.Is(err, protocol.ErrTruncatedFrame) {
			return nil, err
		}
		if n == 0 {
			// Untrustworthy length field — no way to find the next
			// frame boundary.
			c.corrupt = true
			return nil, err
		}
		c.buf = c.buf[n:]
		return nil, err
	}
	c.buf = c.buf[n:]

	cd := codec.GetCodec(h.Type)
	p, err := cd.Decode(body)
	if err != nil {
		// Frame already consumed; shape violations don't break framing.
		return nil, fmt.Errorf("decoding %v payload: %w", h.Type, err)
	}
	return &message.Msg{Header: h, Payload: p}, nil
}

// ReadMsg blocks until one complete message is available: it decodes from
// the buffer first and only then reads more bytes from the endpoint. This
// is the read primitive used inside a blocking wait — frames already
// received but not yet processed must never be skipped over.
//
// Protocol violations are returned as usual (the caller decides whether to
// log and keep reading); truncation is handled internally.
func (c *Channel) ReadMsg() (*message.Msg, error) {
	for {
		m, err := c.PopMsg()
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, protocol.ErrTruncatedFrame) {
			return nil, err
		}
		if err := c.Fill(); err != nil {
			return nil, err
		}
	}
}

// Send serializes p and writes one complete frame to the endpoint. The
// header is constructed here, from the serialized length and the payload's
// own type bit, so every emitted frame carries a single valid type bit and
// a length that matches its body. Payloads larger than protocol.MaxPayload
// are rejected with protocol.ErrSizeMismatch before anything hits the wire.
func (c *Channel) Send(p message.Payload) error {
	cd := codec.GetCodec(p.Type())
	if cd == nil {
		return fmt.Errorf("%w: %v", protocol.ErrUnknownType, p.Type())
	}
	body, err := cd.Encode(p)
	if err != nil {
		return err
	}

	h := protocol.Header{
		Length: uint32(len(body)),
		Type:   p.Type(),
	}

	c.sending.Lock()
	defer c.sending.Unlock()
	if err := protocol.EncodeFrame(c.rwc, &h, body); err != nil {
		return closeError(err)
	}
	return nil
}

// Close tears the endpoint down. Pending and future reads fail with
// protocol.ErrChannelClosed. Safe to call more than once.
func (c *Channel) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rwc.Close()
}

// closeError maps endpoint-level termination errors onto the protocol's
// closed sentinel so callers can match with errors.Is.
func closeError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %v", protocol.ErrChannelClosed, err)
	}
	return err
}
