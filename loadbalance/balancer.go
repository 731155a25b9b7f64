// Package loadbalance picks which endpoint of a service receives the next
// JSON-RPC exchange.
//
// Three strategies are implemented:
//   - RoundRobin:      Stateless services, equal-capacity endpoints
//   - WeightedRandom:  Heterogeneous endpoints (different CPU/memory)
//   - ConsistentHash:  Same routing key (e.g. method name) sticks to one endpoint
package loadbalance

import (
	"github.com/juju/errors"

	"mini-jsonrpc/registry"
)

// ErrNoEndpoints is returned when there is nothing to pick from.
const ErrNoEndpoints = errors.ConstError("no endpoints available")

// Balancer is the interface for load balancing strategies.
type Balancer interface {
	// Pick selects one endpoint. key is the routing key of the exchange;
	// strategies that do not need it ignore it. Must be goroutine-safe.
	Pick(key string, endpoints []registry.Endpoint) (*registry.Endpoint, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// New returns the balancer registered under name.
func New(name string) (Balancer, error) {
	switch name {
	case "", "round_robin":
		return &RoundRobinBalancer{}, nil
	case "weighted_random":
		return &WeightedRandomBalancer{}, nil
	case "consistent_hash":
		return NewConsistentHashBalancer(), nil
	default:
		return nil, errors.NotValidf("balancer %q", name)
	}
}
