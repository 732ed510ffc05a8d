package codec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/jonas-schievink/luakit/message"
	"github.com/jonas-schievink/luakit/protocol"
)

func TestGetCodec(t *testing.T) {
	for _, typ := range []protocol.MsgType{
		protocol.TypeRequireModule, protocol.TypeLuaMsg,
		protocol.TypeScroll, protocol.TypeRcLoaded,
	} {
		c := GetCodec(typ)
		if c == nil {
			t.Fatalf("GetCodec(%v) = nil", typ)
		}
		if c.Type() != typ {
			t.Errorf("GetCodec(%v).Type() = %v", typ, c.Type())
		}
	}
	if c := GetCodec(1 << 8); c != nil {
		t.Errorf("GetCodec(unknown) = %T, want nil", c)
	}
}

func TestRequireModuleCodec(t *testing.T) {
	c := &RequireModuleCodec{}

	body, err := c.Encode(&message.RequireModule{Name: "adblock"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	// Trailing-sized: length = strlen + 1.
	if !bytes.Equal(body, []byte("adblock\x00")) {
		t.Fatalf("wire form = %q, want %q", body, "adblock\x00")
	}

	p, err := c.Decode(body)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got := p.(*message.RequireModule).Name; got != "adblock" {
		t.Errorf("Name = %q, want %q", got, "adblock")
	}
}

func TestRequireModuleCodecRejectsBadPayloads(t *testing.T) {
	c := &RequireModuleCodec{}

	cases := map[string][]byte{
		"empty":         {},
		"no terminator": []byte("adblock"),
		"early NUL":     []byte("ad\x00block\x00"),
		"only interior": []byte("\x00x"),
	}
	for name, body := range cases {
		if _, err := c.Decode(body); !errors.Is(err, protocol.ErrSizeMismatch) {
			t.Errorf("%s: got %v, want ErrSizeMismatch", name, err)
		}
	}

	if _, err := c.Encode(&message.RequireModule{Name: "a\x00b"}); err == nil {
		t.Error("Encode accepted a name with embedded NUL")
	}
}

func TestLuaMsgCodec(t *testing.T) {
	c := &LuaMsgCodec{}

	in := &message.LuaMsg{Module: 42, Arg: `{"event":"navigate"}`}
	body, err := c.Encode(in)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if want := 4 + len(in.Arg) + 1; len(body) != want {
		t.Fatalf("wire form is %d bytes, want %d", len(body), want)
	}

	p, err := c.Decode(body)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	out := p.(*message.LuaMsg)
	if out.Module != in.Module || out.Arg != in.Arg {
		t.Errorf("got %+v, want %+v", out, in)
	}
}

func TestLuaMsgCodecRejectsShortPayloads(t *testing.T) {
	c := &LuaMsgCodec{}

	// Needs at least the module id plus a terminator.
	for _, body := range [][]byte{{}, {0, 0, 0, 42}, {0, 0, 0, 42, 'x'}} {
		if _, err := c.Decode(body); !errors.Is(err, protocol.ErrSizeMismatch) {
			t.Errorf("%d bytes: got %v, want ErrSizeMismatch", len(body), err)
		}
	}

	// Empty argument is fine: module id + lone NUL.
	p, err := c.Decode([]byte{0, 0, 0, 42, 0})
	if err != nil {
		t.Fatalf("Decode of empty arg failed: %v", err)
	}
	if m := p.(*message.LuaMsg); m.Module != 42 || m.Arg != "" {
		t.Errorf("got %+v, want module 42 with empty arg", m)
	}
}

func TestScrollCodec(t *testing.T) {
	c := &ScrollCodec{}

	in := &message.Scroll{H: -3, V: 120, PageID: 0xDEADBEEFCAFE, Subtype: message.ScrollScroll}
	body, err := c.Encode(in)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(body) != scrollSize {
		t.Fatalf("wire form is %d bytes, want fixed %d", len(body), scrollSize)
	}

	p, err := c.Decode(body)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	out := p.(*message.Scroll)
	if *out != *in {
		t.Errorf("got %+v, want %+v", out, in)
	}
}

func TestScrollCodecEnforcesFixedSize(t *testing.T) {
	c := &ScrollCodec{}

	for _, n := range []int{0, scrollSize - 1, scrollSize + 1} {
		if _, err := c.Decode(make([]byte, n)); !errors.Is(err, protocol.ErrSizeMismatch) {
			t.Errorf("%d bytes: got %v, want ErrSizeMismatch", n, err)
		}
	}

	// Correct size but out-of-range subtype discriminator.
	body := make([]byte, scrollSize)
	body[scrollSize-1] = 9
	if _, err := c.Decode(body); !errors.Is(err, protocol.ErrSizeMismatch) {
		t.Errorf("bad subtype: got %v, want ErrSizeMismatch", err)
	}
}

func TestRcLoadedCodec(t *testing.T) {
	c := &RcLoadedCodec{}

	body, err := c.Encode(&message.RcLoaded{})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(body) != 0 {
		t.Fatalf("rc-loaded wire form is %d bytes, want 0", len(body))
	}

	if _, err := c.Decode(nil); err != nil {
		t.Errorf("Decode of empty payload failed: %v", err)
	}
	if _, err := c.Decode([]byte{1}); !errors.Is(err, protocol.ErrSizeMismatch) {
		t.Errorf("non-empty payload: got %v, want ErrSizeMismatch", err)
	}
}
