package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/errors"
)

// ErrTimeout is returned when an exchange outlives the Timeout budget.
const ErrTimeout = errors.ConstError("request timed out")

// Timeout bounds each exchange. The transport sees the shortened context and
// aborts its I/O when it expires.
func Timeout(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) ([]byte, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			reply, err := next(ctx, req)
			if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
			}
			return reply, err
		}
	}
}
