// Package registry provides the etcd-based implementation of the Registry interface.
//
// etcd is used as a shared phonebook of JSON-RPC servers:
//
//	Key:   /mini-jsonrpc/{ServiceName}/{escaped Addr}
//	Value: JSON-encoded Endpoint
//
// Registration uses TTL-based leases: if a server dies without deregistering,
// the lease expires and the entry disappears.
package registry

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const keyPrefix = "/mini-jsonrpc/"

// EtcdRegistry implements the Registry interface using etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // thread-safe, shared across goroutines
	log    zerolog.Logger
}

// NewEtcdRegistry creates a new registry connected to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string, dialTimeout time.Duration, log zerolog.Logger) (*EtcdRegistry, error) {
	if len(endpoints) == 0 {
		return nil, errors.NotValidf("empty etcd endpoint list")
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, errors.Annotate(err, "connecting to etcd")
	}
	return &EtcdRegistry{client: c, log: log.With().Str("component", "etcd-registry").Logger()}, nil
}

func servicePrefix(serviceName string) string {
	return keyPrefix + serviceName + "/"
}

func endpointKey(serviceName, addr string) string {
	return servicePrefix(serviceName) + url.PathEscape(addr)
}

// Register stores an endpoint under a lease of ttl seconds and keeps the
// lease alive until ctx is done.
//
// leaseID stays a local variable so one EtcdRegistry can be shared by
// several servers without racing.
func (r *EtcdRegistry) Register(ctx context.Context, serviceName string, endpoint Endpoint, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return errors.Annotatef(err, "granting lease for %s", serviceName)
	}

	val, err := json.Marshal(endpoint)
	if err != nil {
		return errors.Trace(err)
	}

	key := endpointKey(serviceName, endpoint.Addr)
	if _, err := r.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return errors.Annotatef(err, "registering %s", key)
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return errors.Annotatef(err, "keeping %s alive", key)
	}

	// Drain KeepAlive responses so the channel never fills up.
	go func() {
		for range ch {
		}
		r.log.Debug().Str("key", key).Msg("lease keepalive stopped")
	}()
	return nil
}

// Deregister removes an endpoint. Servers call it before closing their listener.
func (r *EtcdRegistry) Deregister(ctx context.Context, serviceName string, addr string) error {
	_, err := r.client.Delete(ctx, endpointKey(serviceName, addr))
	return errors.Trace(err)
}

// Watch emits the full endpoint list each time anything under the service
// prefix changes. The channel closes when ctx is done.
func (r *EtcdRegistry) Watch(ctx context.Context, serviceName string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)

	go func() {
		defer close(ch)
		watchChan := r.client.Watch(ctx, servicePrefix(serviceName), clientv3.WithPrefix())
		for range watchChan {
			// Re-fetch the whole list rather than applying individual events.
			endpoints, err := r.Discover(ctx, serviceName)
			if err != nil {
				r.log.Warn().Err(err).Str("service", serviceName).Msg("refreshing endpoints failed")
				continue
			}
			select {
			case ch <- endpoints:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Discover returns all endpoints currently registered for a service.
func (r *EtcdRegistry) Discover(ctx context.Context, serviceName string) ([]Endpoint, error) {
	resp, err := r.client.Get(ctx, servicePrefix(serviceName), clientv3.WithPrefix())
	if err != nil {
		return nil, errors.Annotatef(err, "discovering %s", serviceName)
	}

	endpoints := make([]Endpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var endpoint Endpoint
		if err := json.Unmarshal(kv.Value, &endpoint); err != nil {
			r.log.Warn().Str("key", string(kv.Key)).Err(err).Msg("skipping malformed endpoint")
			continue
		}
		endpoints = append(endpoints, endpoint)
	}
	return endpoints, nil
}

// Close releases the etcd connection.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
