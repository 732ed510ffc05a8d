package middleware

import (
	"context"
	"log"
	"time"

	"github.com/jonas-schievink/luakit/message"
)

// Logging logs each dispatched message's type and handling duration, plus
// the error if the handler failed.
func Logging() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, m *message.Msg) error {
			start := time.Now()
			err := next(ctx, m)
			log.Printf("dispatched %v (%d bytes) in %s", m.Header.Type, m.Header.Length, time.Since(start))
			if err != nil {
				log.Printf("handler for %v failed: %v", m.Header.Type, err)
			}
			return err
		}
	}
}
