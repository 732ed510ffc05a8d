// Package message defines the typed payloads carried by IPC frames.
//
// The header's type bit fully determines the payload shape: decoding a
// frame yields exactly one of the variants below, and an unknown or
// mismatched type is rejected at the codec layer rather than guessed at.
package message

import "github.com/jonas-schievink/luakit/protocol"

// Payload is implemented by every message variant.
type Payload interface {
	// Type returns the single wire tag for this variant.
	Type() protocol.MsgType
}

// Msg is one fully decoded message: the frame header plus its payload.
// This is what dispatch handlers receive and what the pending queue holds.
type Msg struct {
	Header  protocol.Header
	Payload Payload
}

// RequireModule asks the receiving process to load the named Lua module.
type RequireModule struct {
	Name string
}

func (*RequireModule) Type() protocol.MsgType { return protocol.TypeRequireModule }

// LuaMsg delivers an opaque argument string to a previously loaded module,
// identified by the numeric id it was assigned at require time.
type LuaMsg struct {
	Module uint32
	Arg    string
}

func (*LuaMsg) Type() protocol.MsgType { return protocol.TypeLuaMsg }

// ScrollSubtype discriminates what kind of geometry change a Scroll message
// reports. Values are sequential and part of the wire contract.
type ScrollSubtype uint32

const (
	ScrollDocResize ScrollSubtype = iota // document size changed
	ScrollWinResize                      // window size changed
	ScrollScroll                         // scroll position changed
)

func (s ScrollSubtype) String() string {
	switch s {
	case ScrollDocResize:
		return "doc-resize"
	case ScrollWinResize:
		return "win-resize"
	case ScrollScroll:
		return "scroll"
	}
	return "unknown"
}

// Scroll reports scroll deltas and page geometry for one web page.
type Scroll struct {
	H, V    int32 // horizontal / vertical deltas, signed
	PageID  uint64
	Subtype ScrollSubtype
}

func (*Scroll) Type() protocol.MsgType { return protocol.TypeScroll }

// RcLoaded signals that the peer finished loading its startup config.
// It carries no data; the frame's payload length is always zero.
type RcLoaded struct{}

func (*RcLoaded) Type() protocol.MsgType { return protocol.TypeRcLoaded }
