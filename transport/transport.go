// Package transport moves serialized JSON-RPC bodies to a server and brings
// the reply body back. It knows nothing about ids or envelopes: correlation
// happens above it, in the client.
//
//	client ──body──→ Chain(middleware...) ──→ HTTP | WebSocket | TCP | Discovery ──→ server
//	client ←─reply── ...
package transport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/juju/errors"
)

// Transport is the collaborator the client sends through.
type Transport interface {
	// Send delivers a notification body. No reply is read.
	Send(ctx context.Context, body []byte) error
	// SendAndReadBody delivers a call or batch body and returns the raw reply.
	SendAndReadBody(ctx context.Context, body []byte) ([]byte, error)
	// Close releases connections held by the transport.
	Close() error
}

const (
	ErrRequestTooLarge  = errors.ConstError("request body exceeds maximum size")
	ErrResponseTooLarge = errors.ConstError("response body exceeds maximum size")
	ErrClosed           = errors.ConstError("transport closed")
)

// StatusError is a non-2xx HTTP reply.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected HTTP status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("unexpected HTTP status %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Retryable reports whether the status is one a server uses for transient trouble.
func (e *StatusError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

type routingKey struct{}

// WithRoutingKey attaches the key a load balancer may hash on (the client
// uses the method name).
func WithRoutingKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, routingKey{}, key)
}

// RoutingKey returns the key set by WithRoutingKey, or "".
func RoutingKey(ctx context.Context) string {
	key, _ := ctx.Value(routingKey{}).(string)
	return key
}
