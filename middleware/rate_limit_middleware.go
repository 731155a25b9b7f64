package middleware

import (
	"context"

	"github.com/juju/errors"
	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when the limiter cannot admit an exchange
// before the context ends.
const ErrRateLimited = errors.ConstError("rate limit exceeded")

// RateLimit admits exchanges through a token bucket. Exchanges wait for a
// token rather than failing fast; the wait is bounded by the context.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) ([]byte, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, errors.Annotate(ErrRateLimited, err.Error())
			}
			return next(ctx, req)
		}
	}
}
