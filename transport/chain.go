package transport

import (
	"context"

	"mini-jsonrpc/middleware"
)

// chained runs every exchange of the wrapped transport through a middleware chain.
type chained struct {
	next    Transport
	handler middleware.HandlerFunc
}

// Chain wraps t so that its exchanges pass through mws, outermost first.
func Chain(t Transport, mws ...middleware.Middleware) Transport {
	if len(mws) == 0 {
		return t
	}
	base := func(ctx context.Context, req *middleware.Request) ([]byte, error) {
		if req.Notification {
			return nil, t.Send(ctx, req.Body)
		}
		return t.SendAndReadBody(ctx, req.Body)
	}
	return &chained{next: t, handler: middleware.Chain(mws...)(base)}
}

func (c *chained) Send(ctx context.Context, body []byte) error {
	_, err := c.handler(ctx, &middleware.Request{Body: body, Notification: true})
	return err
}

func (c *chained) SendAndReadBody(ctx context.Context, body []byte) ([]byte, error) {
	return c.handler(ctx, &middleware.Request{Body: body})
}

func (c *chained) Close() error {
	return c.next.Close()
}
