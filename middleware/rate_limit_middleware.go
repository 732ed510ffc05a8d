package middleware

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/jonas-schievink/luakit/message"
	"github.com/jonas-schievink/luakit/protocol"
)

// RateLimit sheds messages of the given types with a token bucket.
// Scroll updates in particular can arrive far faster than handlers need
// them; excess ones are dropped rather than queued. Types outside the mask
// pass through untouched.
func RateLimit(r float64, burst int, types protocol.TypeMask) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, m *message.Msg) error {
			if !types.Has(m.Header.Type) {
				return next(ctx, m)
			}
			if !limiter.Allow() {
				return fmt.Errorf("dropped %v: rate limit exceeded", m.Header.Type)
			}
			return next(ctx, m)
		}
	}
}
