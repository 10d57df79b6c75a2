package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"portrpc/message"
)

// Logging logs every call with its duration: successful calls at debug
// level, failed ones as warnings.
func Logging(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *message.Invocation) (message.RawValue, error) {
			start := time.Now()
			result, err := next(ctx, inv)
			fields := []zap.Field{
				zap.String("method", inv.Method),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Warn("call failed", append(fields, zap.Error(err))...)
			} else {
				logger.Debug("call", append(fields, zap.Int("result_bytes", len(result)))...)
			}
			return result, err
		}
	}
}
