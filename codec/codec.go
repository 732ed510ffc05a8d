package codec

import (
	"github.com/jonas-schievink/luakit/message"
	"github.com/jonas-schievink/luakit/protocol"
)

// Codec serializes one message variant. There is exactly one codec per
// wire type; the frame header's type bit selects which one applies.
type Codec interface {
	Encode(p message.Payload) ([]byte, error)
	Decode(body []byte) (message.Payload, error)
	Type() protocol.MsgType
}

// GetCodec returns the codec for a single wire type, or nil if the type
// is not part of the known enumeration.
func GetCodec(t protocol.MsgType) Codec {
	switch t {
	case protocol.TypeRequireModule:
		return &RequireModuleCodec{}
	case protocol.TypeLuaMsg:
		return &LuaMsgCodec{}
	case protocol.TypeScroll:
		return &ScrollCodec{}
	case protocol.TypeRcLoaded:
		return &RcLoadedCodec{}
	}
	return nil
}
