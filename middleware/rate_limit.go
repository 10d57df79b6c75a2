package middleware

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"portrpc/message"
)

// ErrRateLimited is returned when a call exceeds the configured rate.
var ErrRateLimited = errors.New("rpc: rate limit exceeded")

// RateLimit is a token bucket allowing r calls per second with bursts of
// burst calls. Calls over the limit fail at once without reaching the peer.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *message.Invocation) (message.RawValue, error) {
			if !limiter.Allow() {
				return nil, errors.Wrap(ErrRateLimited, inv.Method)
			}
			return next(ctx, inv)
		}
	}
}

// RateLimitWait is like RateLimit but delays calls over the limit until a
// token is available or ctx is done.
func RateLimitWait(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *message.Invocation) (message.RawValue, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, errors.Wrap(err, "wait for rate limiter")
			}
			return next(ctx, inv)
		}
	}
}
