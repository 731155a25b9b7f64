package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Logging logs every exchange with its duration and outcome.
func Logging(log zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) ([]byte, error) {
			start := time.Now()
			reply, err := next(ctx, req)
			evt := log.Debug()
			if err != nil {
				evt = log.Warn().Err(err)
			}
			evt.
				Int("request_bytes", len(req.Body)).
				Int("reply_bytes", len(reply)).
				Bool("notification", req.Notification).
				Dur("duration", time.Since(start)).
				Msg("jsonrpc exchange")
			return reply, err
		}
	}
}
