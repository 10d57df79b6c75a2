package middleware

import (
	"context"
	"time"

	"portrpc/message"
	"portrpc/metrics"
)

// Metrics records the outcome and duration of every call.
func Metrics(c *metrics.Collector) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *message.Invocation) (message.RawValue, error) {
			start := time.Now()
			result, err := next(ctx, inv)
			c.ObserveCall(inv.Method, err, time.Since(start))
			return result, err
		}
	}
}
