// Package registry resolves a JSON-RPC service name to the endpoints serving it.
package registry

import "context"

// Endpoint is one reachable server for a service.
type Endpoint struct {
	Addr    string // URL for http/websocket endpoints, host:port for tcp
	Weight  int    // Weight for load balancing
	Version string
}

type Registry interface {
	Register(ctx context.Context, serviceName string, endpoint Endpoint, ttl int64) error
	Deregister(ctx context.Context, serviceName string, addr string) error
	Discover(ctx context.Context, serviceName string) ([]Endpoint, error)
	Watch(ctx context.Context, serviceName string) <-chan []Endpoint
}
