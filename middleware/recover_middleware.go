package middleware

import (
	"context"
	"fmt"

	"github.com/jonas-schievink/luakit/message"
)

// Recover converts a panic in any later middleware or handler into an
// ordinary error, so middlewares above it (logging, say) still observe the
// outcome. The dispatcher has a recover of its own at the outermost
// boundary; this one only changes where the failure becomes visible.
func Recover() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, m *message.Msg) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("handler for %v panicked: %v", m.Header.Type, r)
				}
			}()
			return next(ctx, m)
		}
	}
}
