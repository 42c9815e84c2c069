package middleware

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when a call does not complete within its
// TimeOutMiddleware budget.
var ErrTimeout = errors.New("middleware: request timed out")

// TimeOutMiddleware enforces a maximum duration for each call. If the
// handler doesn't complete within the timeout, it returns ErrTimeout
// immediately.
//
// Implementation:
//  1. Create a context with timeout (ctx.Done() fires when timeout expires)
//  2. Run the next handler in a goroutine, sending its result to a channel
//  3. Select between the result channel and ctx.Done()
//
// The handler goroutine is NOT cancelled — it keeps running in the
// background. The timeout only controls when the caller gives up
// waiting; a handler that wants to stop early must check ctx.Done()
// itself.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, method string, payload []byte) ([]byte, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type outcome struct {
				result []byte
				err    error
			}
			done := make(chan outcome, 1) // buffered: avoid leaking the goroutine if we time out
			go func() {
				result, err := next(ctx, method, payload)
				done <- outcome{result, err}
			}()

			select {
			case o := <-done:
				return o.result, o.err
			case <-ctx.Done():
				return nil, ErrTimeout
			}
		}
	}
}
