package middleware

import (
	"context"
	"errors"
	"log"
	"time"
)

// RetryMiddleware retries a failed call up to maxRetries times with
// exponential backoff, but only for errors considered transient
// (ErrTimeout or context.DeadlineExceeded); any other error returns
// immediately.
func RetryMiddleware(maxRetries int, baseDelay time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, method string, payload []byte) ([]byte, error) {
			result, err := next(ctx, method, payload)
			for i := 0; i < maxRetries; i++ {
				if err == nil {
					return result, nil
				}
				if !isRetryable(err) {
					return result, err
				}
				log.Printf("retry %d for %s after error: %v", i+1, method, err)
				time.Sleep(baseDelay * time.Duration(uint(1)<<uint(i)))
				result, err = next(ctx, method, payload)
			}
			return result, err
		}
	}
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
