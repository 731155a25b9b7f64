package transport

import (
	"context"
	"sync"

	"github.com/juju/errors"
	"github.com/rs/zerolog"

	"mini-jsonrpc/loadbalance"
	"mini-jsonrpc/registry"
)

// Factory builds the transport for one discovered endpoint.
type Factory func(endpoint registry.Endpoint) (Transport, error)

// DiscoveryTransport routes each exchange to an endpoint of a named service:
//
//	Registry.Discover(service) → Balancer.Pick(routing key) → cached per-endpoint Transport
//
// Per-endpoint transports are built on first use. One whose endpoint is
// missing from a later Discover result is evicted and closed; a TCP pool
// closes its borrowed connections as they are returned.
type DiscoveryTransport struct {
	service  string
	registry registry.Registry
	balancer loadbalance.Balancer
	factory  Factory
	log      zerolog.Logger

	mu         sync.Mutex
	transports map[string]Transport // keyed by endpoint Addr
	closed     bool
}

func NewDiscovery(service string, reg registry.Registry, bal loadbalance.Balancer, factory Factory, log zerolog.Logger) *DiscoveryTransport {
	return &DiscoveryTransport{
		service:    service,
		registry:   reg,
		balancer:   bal,
		factory:    factory,
		log:        log,
		transports: make(map[string]Transport),
	}
}

func (d *DiscoveryTransport) pick(ctx context.Context) (Transport, error) {
	endpoints, err := d.registry.Discover(ctx, d.service)
	if err != nil {
		return nil, errors.Annotatef(err, "discovering %s", d.service)
	}
	d.evict(endpoints)
	endpoint, err := d.balancer.Pick(RoutingKey(ctx), endpoints)
	if err != nil {
		return nil, errors.Annotatef(err, "picking endpoint for %s", d.service)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	if t, ok := d.transports[endpoint.Addr]; ok {
		return t, nil
	}
	t, err := d.factory(*endpoint)
	if err != nil {
		return nil, errors.Annotatef(err, "building transport for %s", endpoint.Addr)
	}
	d.transports[endpoint.Addr] = t
	d.log.Debug().
		Str("service", d.service).
		Str("endpoint", endpoint.Addr).
		Str("balancer", d.balancer.Name()).
		Msg("new endpoint transport")
	return t, nil
}

// evict drops the transports of endpoints that are no longer registered.
func (d *DiscoveryTransport) evict(endpoints []registry.Endpoint) {
	live := make(map[string]bool, len(endpoints))
	for _, ep := range endpoints {
		live[ep.Addr] = true
	}
	var gone []Transport
	d.mu.Lock()
	for addr, t := range d.transports {
		if !live[addr] {
			gone = append(gone, t)
			delete(d.transports, addr)
			d.log.Debug().Str("service", d.service).Str("endpoint", addr).Msg("endpoint left, closing transport")
		}
	}
	d.mu.Unlock()
	for _, t := range gone {
		if err := t.Close(); err != nil {
			d.log.Warn().Err(err).Str("service", d.service).Msg("closing evicted transport")
		}
	}
}

func (d *DiscoveryTransport) Send(ctx context.Context, body []byte) error {
	t, err := d.pick(ctx)
	if err != nil {
		return err
	}
	return t.Send(ctx, body)
}

func (d *DiscoveryTransport) SendAndReadBody(ctx context.Context, body []byte) ([]byte, error) {
	t, err := d.pick(ctx)
	if err != nil {
		return nil, err
	}
	return t.SendAndReadBody(ctx, body)
}

// Close closes every per-endpoint transport built so far.
func (d *DiscoveryTransport) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	var first error
	for addr, t := range d.transports {
		if err := t.Close(); err != nil && first == nil {
			first = errors.Annotatef(err, "closing %s", addr)
		}
		delete(d.transports, addr)
	}
	return first
}
