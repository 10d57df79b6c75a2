// Package middleware wraps client calls, onion style:
//
//	Chain(Logging, Timeout, Retry)(invoke)
//	  → Logging → Timeout → Retry → invoke → Retry → Timeout → Logging
//
// The innermost handler is the client's own invoke, which assigns the id,
// sends the request and waits for the matching response.
package middleware

import (
	"context"

	"portrpc/message"
)

// HandlerFunc performs one call and returns the raw result.
type HandlerFunc func(ctx context.Context, inv *message.Invocation) (message.RawValue, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines middlewares; the first one is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
