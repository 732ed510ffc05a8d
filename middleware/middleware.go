// Package middleware provides composable wrappers around message dispatch.
//
// Dispatch is one-way: handlers consume a decoded message and report an
// error, nothing is written back to the channel. Middlewares therefore
// instrument or gate the call rather than transform a response.
package middleware

import (
	"context"

	"github.com/jonas-schievink/luakit/message"
)

// HandlerFunc processes one decoded message. A non-nil error marks the
// dispatch as failed; it is logged at the dispatch boundary and never
// reaches the channel layer.
type HandlerFunc func(ctx context.Context, m *message.Msg) error

// Middleware wraps a handler with additional behavior.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines middlewares into one. They wrap in reverse order to form
// the onion model:
//
//	Chain(A, B, C)(handler) → A(B(C(handler)))
//
// so A sees the message first and the result last.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
