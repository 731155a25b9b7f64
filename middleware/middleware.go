// Package middleware wraps a transport exchange with cross-cutting policy:
// logging, retry, timeout and rate limiting. The same chain type also wraps
// the server's request handler.
//
//	Chain(A, B, C)(handler) → A(B(C(handler)))
//	Execution order: A.before → B.before → C.before → handler → C.after → B.after → A.after
package middleware

import "context"

// Request is one outbound (or inbound) body.
type Request struct {
	Body []byte
	// Notification marks a body that expects no reply.
	Notification bool
}

// HandlerFunc performs an exchange and returns the reply body, which is nil
// for notifications.
type HandlerFunc func(ctx context.Context, req *Request) ([]byte, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain 将多个中间件组合成一个中间件
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
