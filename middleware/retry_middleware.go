package middleware

import (
	"context"
	"net"
	"syscall"
	"time"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
)

// Retryable is implemented by errors that know whether repeating the
// exchange may succeed (e.g. an HTTP 503).
type Retryable interface {
	Retryable() bool
}

// IsRetryable reports whether err is worth another attempt: timeouts,
// refused or reset connections, and errors that say so themselves.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var r Retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Retry repeats failed exchanges up to maxRetries times with exponential
// backoff starting at baseDelay. Only retryable errors are repeated, and the
// context cancels the wait between attempts.
func Retry(maxRetries int, baseDelay time.Duration, log zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) ([]byte, error) {
			reply, err := next(ctx, req)
			for i := 0; i < maxRetries; i++ {
				if err == nil || !IsRetryable(err) {
					return reply, err
				}
				delay := baseDelay * time.Duration(1<<i)
				log.Debug().Err(err).Int("attempt", i+1).Dur("delay", delay).Msg("retrying jsonrpc exchange")

				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil, err
				case <-timer.C:
				}
				reply, err = next(ctx, req)
			}
			return reply, err
		}
	}
}
