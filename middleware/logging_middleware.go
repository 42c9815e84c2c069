package middleware

import (
	"context"
	"log"
	"time"
)

// LoggingMiddleware records the method name, duration, and any error for
// each call. It captures the start time before calling next, and logs
// the elapsed time after next returns.
//
// Example output:
//
//	method: sum, duration: 42µs
//	method: sum, error: division by zero
func LoggingMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, method string, payload []byte) ([]byte, error) {
			start := time.Now()

			result, err := next(ctx, method, payload)

			log.Printf("method: %s, duration: %s", method, time.Since(start))
			if err != nil {
				log.Printf("method: %s, error: %v", method, err)
			}
			return result, err
		}
	}
}
