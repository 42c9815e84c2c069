// Package middleware implements the onion-model chain that wraps method
// dispatch: cross-cutting concerns (logging, timeouts, rate limiting,
// retries) are layered around a method handler without the handler
// itself knowing they exist.
//
// Onion model execution order:
//
//	Chain(A, B, C)(handler)  →  A(B(C(handler)))
//
//	Request:   A.before → B.before → C.before → handler
//	Response:  handler → C.after → B.after → A.after
//
// Each middleware can:
//   - Do pre-processing (before calling next)
//   - Call next(ctx, method, payload) to pass to the next layer
//   - Do post-processing (after next returns)
//   - Short-circuit by returning early without calling next (e.g., rate limiting)
package middleware

import "context"

// HandlerFunc dispatches one already-decoded method call and returns its
// encoded result or an error — the same shape Endpoint uses internally
// to invoke a registered method, so a chain can sit directly in front of
// it.
type HandlerFunc func(ctx context.Context, method string, payload []byte) ([]byte, error)

// Middleware takes a handler and returns a new handler that wraps it.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes multiple middlewares into a single middleware, built
// from right to left so the first middleware in the list is the
// outermost layer (executed first on request, last on response).
//
// Example:
//
//	chain := Chain(LoggingMiddleware(), RateLimitMiddleware(10, 5))
//	handler := chain(dispatch)
//	// Execution: Logging → RateLimit → dispatch → RateLimit → Logging
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
