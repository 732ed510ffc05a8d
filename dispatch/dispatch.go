// Package dispatch decodes frames off a channel, runs per-type handlers,
// and implements the reentrant wait-for-mask primitive.
//
// Processing pipeline:
//
//	Setup → Serve (pump goroutine reads frames)
//	  → for each message: replay queued → Dispatch
//	    → middleware chain → registered handlers for the type
//
// RecvAndDispatchOrEnqueue lets a handler block for a synchronous reply
// (e.g. wait until rc-loaded arrives) while unrelated messages keep
// flowing: it reads frames until one matches the wanted mask and parks the
// rest on a FIFO queue, replayed to their handlers once no wait is pending.
// A handler reached through a wait can start another wait, so the active
// masks form a stack.
//
// Everything runs on one pump goroutine; the queue and the wait stack need
// no locking. Handlers and waits must not be invoked from other goroutines.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/jonas-schievink/luakit/message"
	"github.com/jonas-schievink/luakit/middleware"
	"github.com/jonas-schievink/luakit/protocol"
	"github.com/jonas-schievink/luakit/queue"
)

// Source is the channel-side surface the dispatcher consumes. It is
// satisfied by *channel.Channel.
type Source interface {
	// Fill performs one blocking read, accumulating bytes internally.
	Fill() error
	// PopMsg decodes one buffered message without reading the endpoint.
	PopMsg() (*message.Msg, error)
	// ReadMsg blocks until one complete message is available, draining
	// buffered bytes before touching the endpoint.
	ReadMsg() (*message.Msg, error)
	// Close tears the endpoint down.
	Close() error
}

// Dispatcher owns one channel's message flow: handler registry, pending
// queue, and wait state. Channels to different worker processes each get
// their own Dispatcher.
type Dispatcher struct {
	src         Source
	handlers    map[protocol.MsgType][]middleware.HandlerFunc
	middlewares []middleware.Middleware
	chain       middleware.HandlerFunc // built once, on first dispatch

	pending *queue.Queue        // arrived during a wait, not yet dispatched
	waits   []protocol.TypeMask // active wait masks; top = innermost

	// Close may be called from outside the pump goroutine, so the flag
	// is atomic even though everything else is single-threaded.
	shutdown atomic.Bool
}

// New creates a dispatcher for the given message source.
func New(src Source) *Dispatcher {
	return &Dispatcher{
		src:      src,
		handlers: make(map[protocol.MsgType][]middleware.HandlerFunc),
		pending:  queue.New(),
	}
}

// Handle registers a handler for one message type. Multiple handlers may
// be registered for the same type; they run in registration order.
// Registration must finish before the pump starts.
func (d *Dispatcher) Handle(t protocol.MsgType, h middleware.HandlerFunc) {
	d.handlers[t] = append(d.handlers[t], h)
}

// Use registers a middleware. Middlewares wrap every dispatch, in the
// order they were added.
func (d *Dispatcher) Use(mw middleware.Middleware) {
	d.middlewares = append(d.middlewares, mw)
}

// Setup starts the pump on its own goroutine and returns. All handlers and
// any waits they start run on that goroutine.
func (d *Dispatcher) Setup() {
	d.buildChain()
	go d.Serve()
}

// Serve runs the pump until the channel fails or is closed. It is the
// blocking form of Setup, for callers that own the goroutine themselves.
func (d *Dispatcher) Serve() {
	for d.OnReadable() {
	}
}

// OnReadable handles one readiness notification: it replays messages left
// queued by earlier waits, reads whatever bytes are available, and
// dispatches every complete frame in arrival order. Partial trailing bytes
// stay buffered for the next call.
//
// Returns false only on an unrecoverable channel error (EOF, broken pipe),
// telling the caller to tear the connection down; per-frame protocol
// violations are logged and skipped.
func (d *Dispatcher) OnReadable() bool {
	d.replayQueued()

	if err := d.src.Fill(); err != nil {
		if !d.shutdown.Load() {
			log.Printf("dispatch: channel read failed: %v", err)
		}
		return false
	}

	for {
		m, err := d.src.PopMsg()
		if err != nil {
			if protocol.IsViolation(err) {
				log.Printf("dispatch: dropping frame: %v", err)
				continue
			}
			// Incomplete frame: keep the bytes, wait for the next
			// notification.
			return true
		}
		d.dispatchOrEnqueue(m)
		d.replayQueued()
	}
}

// RecvAndDispatchOrEnqueue blocks until a message whose type is in mask has
// been dispatched, then reports success. Messages of other types received
// in the meantime are queued in arrival order and replayed later.
//
// The call is reentrant: a handler running inside one wait may start
// another. Each nesting level pushes its own mask; an incoming message is
// matched against the innermost mask only, so the innermost wait claims it
// first. Queued messages that an inner wait skipped are re-examined by the
// outer wait when it resumes, under the same rule.
//
// Returns false if the channel closes before a matching message arrives.
// There is no timeout: a peer that never sends a matching message blocks
// the pump indefinitely. Callers needing bounded latency must arrange
// their own deadline, e.g. by closing the channel from a timer.
func (d *Dispatcher) RecvAndDispatchOrEnqueue(mask protocol.TypeMask) bool {
	d.waits = append(d.waits, mask)
	defer func() { d.waits = d.waits[:len(d.waits)-1] }()

	for {
		// Messages that arrived before this wait began take priority.
		if m := d.pending.DequeueMatching(mask); m != nil {
			d.Dispatch(m)
			return true
		}

		m, err := d.src.ReadMsg()
		if err != nil {
			if protocol.IsViolation(err) {
				log.Printf("dispatch: dropping frame: %v", err)
				continue
			}
			if !d.shutdown.Load() {
				log.Printf("dispatch: wait for %#x aborted: %v", uint32(mask), err)
			}
			return false
		}

		if mask.Has(m.Header.Type) {
			d.Dispatch(m)
			return true
		}
		d.pending.Enqueue(m)
	}
}

// Dispatch runs the registered handlers for m's type through the
// middleware chain. Handler failures — errors and panics alike — are
// logged here and never propagate to the channel layer, so a broken
// handler cannot kill the pump or corrupt the queue.
func (d *Dispatcher) Dispatch(m *message.Msg) {
	if d.chain == nil {
		d.buildChain()
	}
	if err := d.safeDispatch(m); err != nil {
		log.Printf("dispatch: handler for %v failed: %v", m.Header.Type, err)
	}
}

// Close shuts the dispatcher down: the channel is closed, the pump's read
// fails and Serve returns, and any pending wait returns false.
func (d *Dispatcher) Close() error {
	d.shutdown.Store(true)
	return d.src.Close()
}

// dispatchOrEnqueue applies the wait-state rule to one incoming message:
// with no wait active (the usual pump case) it dispatches immediately;
// while a wait is active, messages outside the innermost mask are queued.
func (d *Dispatcher) dispatchOrEnqueue(m *message.Msg) {
	if n := len(d.waits); n > 0 && !d.waits[n-1].Has(m.Header.Type) {
		d.pending.Enqueue(m)
		return
	}
	d.Dispatch(m)
}

// replayQueued dispatches queued messages head-to-tail while no wait is
// active. A handler invoked here may itself start a wait, which re-parks
// anything it skips; the loop re-checks the wait stack each iteration so
// those entries wait for the next quiet moment.
func (d *Dispatcher) replayQueued() {
	for len(d.waits) == 0 {
		m := d.pending.Dequeue()
		if m == nil {
			return
		}
		d.Dispatch(m)
	}
}

func (d *Dispatcher) safeDispatch(m *message.Msg) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return d.chain(context.Background(), m)
}

// buildChain assembles middleware(middleware(...(invokeHandlers))) once;
// per-message dispatch then costs no allocation.
func (d *Dispatcher) buildChain() {
	d.chain = middleware.Chain(d.middlewares...)(d.invokeHandlers)
}

// invokeHandlers is the innermost handler: it fans one message out to
// every handler registered for its type.
func (d *Dispatcher) invokeHandlers(ctx context.Context, m *message.Msg) error {
	hs := d.handlers[m.Header.Type]
	if len(hs) == 0 {
		log.Printf("dispatch: no handler registered for %v", m.Header.Type)
		return nil
	}
	for _, h := range hs {
		if err := h(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
