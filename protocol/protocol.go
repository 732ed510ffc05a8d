// Package protocol implements the binary frame format used on the IPC
// channel between the UI process and its web extension processes.
//
// Every frame is a fixed-size 8-byte header followed by a variable-length
// payload. The receiver reads the header first to learn the payload length,
// then reads exactly that many bytes.
//
// Frame format:
//
//	0         4         8
//	┌─────────┬─────────┬────────────────┐
//	│ length  │  type   │   payload ...  │
//	│ uint32  │ uint32  │  length bytes  │
//	└─────────┴─────────┴────────────────┘
//
// All integers are big-endian. The type field always carries exactly one
// type bit on the wire; multi-bit masks exist only in memory, to filter
// acceptable messages during a blocking wait.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MsgType identifies one message variant. Tags are single bits so they can
// be ORed into a TypeMask. Bit assignments are part of the wire contract;
// append new tags, never reorder.
type MsgType uint32

const (
	TypeRequireModule MsgType = 1 << iota // ask the peer to load a Lua module
	TypeLuaMsg                            // opaque argument for a loaded module
	TypeScroll                            // scroll position / geometry update
	TypeRcLoaded                          // config finished loading (no payload)

	typeEnd // one past the highest tag; keep last
)

// TypeMask is a set of message types, used to filter which messages a
// blocking wait will accept.
type TypeMask uint32

// TypeAny matches every message type, including tags added later.
const TypeAny = ^TypeMask(0)

// AllTypes is the OR of every currently known tag.
const AllTypes = TypeMask(typeEnd - 1)

// Mask converts a single tag into a one-element set.
func (t MsgType) Mask() TypeMask { return TypeMask(t) }

// Valid reports whether t is exactly one known type bit.
// Zero, multi-bit values, and bits past the enumeration are all invalid
// on the wire.
func (t MsgType) Valid() bool {
	return t != 0 && t&(t-1) == 0 && t < typeEnd
}

// Has reports whether the set contains the given tag.
func (m TypeMask) Has(t MsgType) bool { return m&TypeMask(t) != 0 }

func (t MsgType) String() string {
	switch t {
	case TypeRequireModule:
		return "require-module"
	case TypeLuaMsg:
		return "lua-msg"
	case TypeScroll:
		return "scroll"
	case TypeRcLoaded:
		return "rc-loaded"
	}
	return fmt.Sprintf("MsgType(%#x)", uint32(t))
}

// HeaderSize is the fixed width of the frame header in bytes.
const HeaderSize = 8

// MaxPayload caps the declared payload length of a single frame.
// A header claiming more than this is treated as stream corruption rather
// than an instruction to buffer without bound.
const MaxPayload = 1 << 20 // 1 MiB

// Header is the fixed-size record prepended to every frame.
type Header struct {
	Length uint32  // payload byte count, header excluded
	Type   MsgType // exactly one type bit
}

// Frame decode/encode errors.
var (
	// ErrTruncatedFrame means fewer bytes are buffered than one complete
	// frame needs. It is a wait-for-more-data condition, not a failure:
	// retry after the next read.
	ErrTruncatedFrame = errors.New("protocol: truncated frame")

	// ErrUnknownType means the header's type field is not a single known
	// type bit. The frame is dropped; the stream continues.
	ErrUnknownType = errors.New("protocol: unknown message type")

	// ErrSizeMismatch means a payload's length does not fit its type's
	// shape (or the declared length is beyond MaxPayload).
	ErrSizeMismatch = errors.New("protocol: payload size mismatch")

	// ErrChannelClosed means the peer is gone; no further frames will
	// arrive. Propagated to pending waits as a failure return.
	ErrChannelClosed = errors.New("protocol: channel closed")
)

// IsViolation reports whether err is a per-frame protocol violation that
// the channel can survive (the offending frame is dropped, the stream
// continues). Truncation and closure are not violations.
func IsViolation(err error) bool {
	return errors.Is(err, ErrUnknownType) || errors.Is(err, ErrSizeMismatch)
}

// EncodeFrame writes one complete frame (header + payload) to w.
// It refuses headers whose length disagrees with the payload, whose type is
// not a single valid bit, or whose payload exceeds MaxPayload, so a frame
// that reaches the wire is always well-formed. The caller must hold a write
// lock if multiple goroutines share the same writer.
func EncodeFrame(w io.Writer, h *Header, payload []byte) error {
	if !h.Type.Valid() {
		return fmt.Errorf("%w: %v", ErrUnknownType, h.Type)
	}
	if int(h.Length) != len(payload) {
		return fmt.Errorf("%w: header says %d bytes, payload has %d",
			ErrSizeMismatch, h.Length, len(payload))
	}
	// The receiver enforces MaxPayload on decode; shipping a bigger frame
	// would poison the peer's stream, so refuse it here.
	if h.Length > MaxPayload {
		return fmt.Errorf("%w: payload of %d bytes exceeds limit %d",
			ErrSizeMismatch, h.Length, MaxPayload)
	}

	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Length)
	binary.BigEndian.PutUint32(buf[4:8], uint32(h.Type))

	if _, err := w.Write(buf); err != nil {
		return err
	}
	// Payload may be empty (e.g. rc-loaded frames carry no data).
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// DecodeFrame attempts to decode one complete frame from the front of buf.
// It returns the header, the payload bytes (a subslice of buf), and the
// number of bytes consumed.
//
// Error contract:
//   - ErrTruncatedFrame, consumed = 0: not enough bytes buffered yet.
//     The caller keeps the partial bytes and retries after reading more.
//   - ErrUnknownType, consumed = full frame: the frame was present but its
//     type bit is invalid. The caller drops it and continues decoding.
//   - ErrSizeMismatch, consumed = 0: the declared length exceeds
//     MaxPayload. The length field itself cannot be trusted, so the stream
//     is unrecoverable from here.
//
// Decode is atomic with respect to failure: a frame is either consumed in
// full or not at all.
func DecodeFrame(buf []byte) (Header, []byte, int, error) {
	if len(buf) < HeaderSize {
		return Header{}, nil, 0, ErrTruncatedFrame
	}

	h := Header{
		Length: binary.BigEndian.Uint32(buf[0:4]),
		Type:   MsgType(binary.BigEndian.Uint32(buf[4:8])),
	}

	if h.Length > MaxPayload {
		return Header{}, nil, 0, fmt.Errorf("%w: declared payload of %d bytes exceeds limit %d",
			ErrSizeMismatch, h.Length, MaxPayload)
	}

	total := HeaderSize + int(h.Length)
	if len(buf) < total {
		return Header{}, nil, 0, ErrTruncatedFrame
	}

	// Validate the type only once the whole frame is buffered, so an
	// unknown frame can be skipped cleanly using its (trustworthy) length.
	if !h.Type.Valid() {
		return h, nil, total, fmt.Errorf("%w: %#x", ErrUnknownType, uint32(h.Type))
	}

	return h, buf[HeaderSize:total], total, nil
}
