package middleware

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a call is rejected for lack of tokens.
var ErrRateLimited = errors.New("middleware: rate limit exceeded")

// RateLimitMiddleware creates a rate limiter using the token bucket
// algorithm: tokens are added at rate r per second, up to burst size.
// Each call consumes one token; if the bucket is empty the call is
// rejected without reaching the handler.
//
// The limiter is created once in the outer closure, shared across every
// call through this middleware instance — creating it per-call would
// give every call a fresh full bucket and defeat the point.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, method string, payload []byte) ([]byte, error) {
			if !limiter.Allow() {
				return nil, ErrRateLimited
			}
			return next(ctx, method, payload)
		}
	}
}
