package middleware

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"portrpc/message"
)

// Retry repeats a call that failed with a retryable error, with exponential
// backoff starting at baseDelay. A nil retryable retries every error except
// cancellation. Only use it for idempotent methods: a call rejected by a
// disconnect may already have run on the peer.
func Retry(maxRetries int, baseDelay time.Duration, retryable func(error) bool, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *message.Invocation) (message.RawValue, error) {
			result, err := next(ctx, inv)
			for i := 0; i < maxRetries && err != nil; i++ {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil, err
				}
				if retryable != nil && !retryable(err) {
					return nil, err
				}

				delay := baseDelay * time.Duration(1<<i)
				logger.Info("retrying call",
					zap.String("method", inv.Method),
					zap.Int("attempt", i+1),
					zap.Duration("delay", delay),
					zap.Error(err))

				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil, ctx.Err()
				case <-timer.C:
				}
				result, err = next(ctx, inv)
			}
			return result, err
		}
	}
}
