package middleware

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"portrpc/message"
)

// Timeout bounds every call. The call is abandoned when the deadline passes
// even if the handler below does not watch ctx; the error then matches
// context.DeadlineExceeded.
func Timeout(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *message.Invocation) (message.RawValue, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type outcome struct {
				result message.RawValue
				err    error
			}
			done := make(chan outcome, 1)
			go func() {
				result, err := next(ctx, inv)
				done <- outcome{result, err}
			}()

			select {
			case o := <-done:
				return o.result, o.err
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return nil, errors.Wrapf(ctx.Err(), "%s timed out after %s", inv.Method, timeout)
				}
				return nil, ctx.Err()
			}
		}
	}
}
