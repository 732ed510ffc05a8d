// Package queue buffers decoded messages that arrived while the dispatcher
// was blocked waiting for some other type.
//
// The queue is strictly FIFO — insertion order is arrival order on the
// channel — and is owned exclusively by one dispatcher. Entries leave only
// when dispatched. It is not goroutine-safe: the dispatch model is nested
// (stack-like reentry on one pump goroutine), never parallel.
package queue

import (
	eq "github.com/eapache/queue"

	"github.com/jonas-schievink/luakit/message"
	"github.com/jonas-schievink/luakit/protocol"
)

// Queue is an ordered buffer of decoded-but-not-yet-dispatched messages.
type Queue struct {
	buf *eq.Queue
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{buf: eq.New()}
}

// Len returns the number of buffered messages.
func (q *Queue) Len() int { return q.buf.Length() }

// Enqueue appends m at the tail.
func (q *Queue) Enqueue(m *message.Msg) { q.buf.Add(m) }

// Dequeue removes and returns the head entry, or nil if the queue is empty.
func (q *Queue) Dequeue() *message.Msg {
	if q.buf.Length() == 0 {
		return nil
	}
	return q.buf.Remove().(*message.Msg)
}

// DequeueMatching scans from the head and removes and returns the first
// entry whose type is in mask. Every other entry keeps its original
// relative order — the scan skips non-matching entries, it never reorders
// them. Returns nil if nothing matches.
//
// The backing ring only pops at the head, so the scan is a full rotation:
// each entry is removed once and non-matches are re-appended. After n pops
// the survivors sit in their original order.
func (q *Queue) DequeueMatching(mask protocol.TypeMask) *message.Msg {
	n := q.buf.Length()
	var found *message.Msg
	for i := 0; i < n; i++ {
		m := q.buf.Remove().(*message.Msg)
		if found == nil && mask.Has(m.Header.Type) {
			found = m
			continue
		}
		q.buf.Add(m)
	}
	return found
}
