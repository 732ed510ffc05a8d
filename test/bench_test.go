package test

import (
	"bytes"
	"testing"

	"github.com/jonas-schievink/luakit/codec"
	"github.com/jonas-schievink/luakit/message"
	"github.com/jonas-schievink/luakit/protocol"
	"github.com/jonas-schievink/luakit/queue"
)

// Encode+frame+decode for the hot-path message type (scroll events arrive
// continuously while a page is scrolled).
func BenchmarkScrollRoundTrip(b *testing.B) {
	cd := codec.GetCodec(protocol.TypeScroll)
	sc := &message.Scroll{H: 1, V: -2, PageID: 42, Subtype: message.ScrollScroll}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		body, err := cd.Encode(sc)
		if err != nil {
			b.Fatal(err)
		}
		var buf bytes.Buffer
		h := protocol.Header{Length: uint32(len(body)), Type: protocol.TypeScroll}
		if err := protocol.EncodeFrame(&buf, &h, body); err != nil {
			b.Fatal(err)
		}
		dh, db, _, err := protocol.DecodeFrame(buf.Bytes())
		if err != nil {
			b.Fatal(err)
		}
		if _, err := codec.GetCodec(dh.Type).Decode(db); err != nil {
			b.Fatal(err)
		}
	}
}

// Worst case for the wait primitive: the wanted message sits at the tail
// behind a run of queued scroll events.
func BenchmarkDequeueMatchingDeepQueue(b *testing.B) {
	const depth = 256

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		q := queue.New()
		for j := 0; j < depth; j++ {
			q.Enqueue(&message.Msg{
				Header:  protocol.Header{Type: protocol.TypeScroll},
				Payload: &message.Scroll{PageID: uint64(j)},
			})
		}
		q.Enqueue(&message.Msg{
			Header:  protocol.Header{Type: protocol.TypeRcLoaded},
			Payload: &message.RcLoaded{},
		})

		if m := q.DequeueMatching(protocol.TypeRcLoaded.Mask()); m == nil {
			b.Fatal("match not found")
		}
	}
}
