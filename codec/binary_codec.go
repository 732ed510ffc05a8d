// Per-type binary codecs.
//
// Fixed-shape payloads (scroll, rc-loaded) assert an exact size on decode.
// String-bearing payloads (require-module, lua-msg) are trailing-sized:
// they assert a minimum size plus a NUL terminator, and the string runs up
// to that terminator. Decoding copies into owned Go strings, so payloads
// never alias the channel's read buffer.
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/jonas-schievink/luakit/message"
	"github.com/jonas-schievink/luakit/protocol"
)

// RequireModuleCodec handles require-module payloads:
//
//	[ module name ... ][ 0x00 ]
type RequireModuleCodec struct{}

func (c *RequireModuleCodec) Encode(p message.Payload) ([]byte, error) {
	m, ok := p.(*message.RequireModule)
	if !ok {
		return nil, errors.New("RequireModuleCodec: payload must be *RequireModule")
	}
	if bytes.IndexByte([]byte(m.Name), 0) >= 0 {
		return nil, fmt.Errorf("%w: module name contains NUL", protocol.ErrSizeMismatch)
	}

	buf := make([]byte, len(m.Name)+1)
	copy(buf, m.Name)
	// Trailing NUL already zero from make.
	return buf, nil
}

func (c *RequireModuleCodec) Decode(body []byte) (message.Payload, error) {
	name, err := cstring(body, 0)
	if err != nil {
		return nil, err
	}
	return &message.RequireModule{Name: name}, nil
}

func (c *RequireModuleCodec) Type() protocol.MsgType { return protocol.TypeRequireModule }

// LuaMsgCodec handles lua-msg payloads:
//
//	[ module id: u32 ][ argument ... ][ 0x00 ]
type LuaMsgCodec struct{}

func (c *LuaMsgCodec) Encode(p message.Payload) ([]byte, error) {
	m, ok := p.(*message.LuaMsg)
	if !ok {
		return nil, errors.New("LuaMsgCodec: payload must be *LuaMsg")
	}
	if bytes.IndexByte([]byte(m.Arg), 0) >= 0 {
		return nil, fmt.Errorf("%w: argument contains NUL", protocol.ErrSizeMismatch)
	}

	buf := make([]byte, 4+len(m.Arg)+1)
	binary.BigEndian.PutUint32(buf[0:4], m.Module)
	copy(buf[4:], m.Arg)
	return buf, nil
}

func (c *LuaMsgCodec) Decode(body []byte) (message.Payload, error) {
	if len(body) < 5 {
		return nil, fmt.Errorf("%w: lua-msg needs at least 5 bytes, got %d",
			protocol.ErrSizeMismatch, len(body))
	}
	arg, err := cstring(body, 4)
	if err != nil {
		return nil, err
	}
	return &message.LuaMsg{
		Module: binary.BigEndian.Uint32(body[0:4]),
		Arg:    arg,
	}, nil
}

func (c *LuaMsgCodec) Type() protocol.MsgType { return protocol.TypeLuaMsg }

// scrollSize is the fixed payload width of a scroll message:
// h (4) + v (4) + page id (8) + subtype (4).
const scrollSize = 20

// ScrollCodec handles scroll payloads:
//
//	[ h: i32 ][ v: i32 ][ page id: u64 ][ subtype: u32 ]
type ScrollCodec struct{}

func (c *ScrollCodec) Encode(p message.Payload) ([]byte, error) {
	m, ok := p.(*message.Scroll)
	if !ok {
		return nil, errors.New("ScrollCodec: payload must be *Scroll")
	}

	buf := make([]byte, scrollSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(m.H))
	binary.BigEndian.PutUint32(buf[4:8], uint32(m.V))
	binary.BigEndian.PutUint64(buf[8:16], m.PageID)
	binary.BigEndian.PutUint32(buf[16:20], uint32(m.Subtype))
	return buf, nil
}

func (c *ScrollCodec) Decode(body []byte) (message.Payload, error) {
	if len(body) != scrollSize {
		return nil, fmt.Errorf("%w: scroll needs exactly %d bytes, got %d",
			protocol.ErrSizeMismatch, scrollSize, len(body))
	}

	subtype := message.ScrollSubtype(binary.BigEndian.Uint32(body[16:20]))
	if subtype > message.ScrollScroll {
		return nil, fmt.Errorf("%w: unknown scroll subtype %d", protocol.ErrSizeMismatch, subtype)
	}

	return &message.Scroll{
		H:       int32(binary.BigEndian.Uint32(body[0:4])),
		V:       int32(binary.BigEndian.Uint32(body[4:8])),
		PageID:  binary.BigEndian.Uint64(body[8:16]),
		Subtype: subtype,
	}, nil
}

func (c *ScrollCodec) Type() protocol.MsgType { return protocol.TypeScroll }

// RcLoadedCodec handles rc-loaded payloads, which are empty: the message
// is a pure signal, all information is in the header's type bit.
type RcLoadedCodec struct{}

func (c *RcLoadedCodec) Encode(p message.Payload) ([]byte, error) {
	if _, ok := p.(*message.RcLoaded); !ok {
		return nil, errors.New("RcLoadedCodec: payload must be *RcLoaded")
	}
	return nil, nil
}

func (c *RcLoadedCodec) Decode(body []byte) (message.Payload, error) {
	if len(body) != 0 {
		return nil, fmt.Errorf("%w: rc-loaded carries no payload, got %d bytes",
			protocol.ErrSizeMismatch, len(body))
	}
	return &message.RcLoaded{}, nil
}

func (c *RcLoadedCodec) Type() protocol.MsgType { return protocol.TypeRcLoaded }

// cstring extracts the NUL-terminated string starting at offset. The
// terminator must be the final byte of the payload — that is the wire
// invariant "length = strlen + 1" for trailing-sized messages.
func cstring(body []byte, offset int) (string, error) {
	if len(body) <= offset {
		return "", fmt.Errorf("%w: missing string field", protocol.ErrSizeMismatch)
	}
	i := bytes.IndexByte(body[offset:], 0)
	if i < 0 || offset+i != len(body)-1 {
		return "", fmt.Errorf("%w: string field not NUL-terminated at payload end",
			protocol.ErrSizeMismatch)
	}
	return string(body[offset : len(body)-1]), nil
}
