package client

import (
	"io"

	"github.com/juju/errors"
	"github.com/rs/zerolog"

	"mini-jsonrpc/config"
	"mini-jsonrpc/loadbalance"
	"mini-jsonrpc/middleware"
	"mini-jsonrpc/registry"
	"mini-jsonrpc/transport"
)

// FromConfig builds a client and its transport stack from cfg:
//
//	Logging → RateLimit → Retry → Timeout → HTTP | WebSocket | TCP | Discovery(etcd)
//
// The timeout applies to each attempt. opts are applied after the options
// derived from cfg.
func FromConfig(cfg *config.Config, log zerolog.Logger, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	t, err := buildTransport(cfg, log)
	if err != nil {
		return nil, err
	}

	mws := []middleware.Middleware{middleware.Logging(log)}
	if cfg.RateLimit.RPS > 0 {
		mws = append(mws, middleware.RateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}
	if cfg.Retry.MaxRetries > 0 {
		mws = append(mws, middleware.Retry(cfg.Retry.MaxRetries, cfg.Retry.BaseDelay, log))
	}
	if cfg.Timeout > 0 {
		mws = append(mws, middleware.Timeout(cfg.Timeout))
	}

	base := []Option{
		WithLogger(log),
		WithMaxRequestBodySize(int64(cfg.MaxRequestBodySize)),
	}
	return New(transport.Chain(t, mws...), append(base, opts...)...), nil
}

func buildTransport(cfg *config.Config, log zerolog.Logger) (transport.Transport, error) {
	maxBody := int64(cfg.MaxRequestBodySize)
	factory := func(ep registry.Endpoint) (transport.Transport, error) {
		return endpointTransport(cfg.Transport, ep.Addr, cfg.PoolSize, maxBody, log)
	}
	if !cfg.Discovery() {
		return factory(registry.Endpoint{Addr: cfg.Endpoint})
	}

	bal, err := loadbalance.New(cfg.Balancer)
	if err != nil {
		return nil, errors.Trace(err)
	}
	reg, err := registry.NewEtcdRegistry(cfg.Etcd.Endpoints, cfg.Etcd.DialTimeout, log)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &closeAlso{
		Transport: transport.NewDiscovery(cfg.Service, reg, bal, factory, log),
		also:      reg,
	}, nil
}

func endpointTransport(kind, addr string, poolSize int, maxBody int64, log zerolog.Logger) (transport.Transport, error) {
	switch kind {
	case config.TransportHTTP:
		t, err := transport.NewHTTP(addr, transport.WithMaxBodySize(maxBody), transport.WithHTTPLogger(log))
		if err != nil {
			return nil, err
		}
		return t, nil
	case config.TransportWebSocket:
		return transport.NewWebSocket(addr, maxBody, log), nil
	case config.TransportTCP:
		return transport.NewTCP(addr, poolSize, maxBody), nil
	}
	return nil, errors.NotValidf("transport %q", kind)
}

// closeAlso closes an extra resource (the etcd registry) with the transport.
type closeAlso struct {
	transport.Transport
	also io.Closer
}

func (c *closeAlso) Close() error {
	err := c.Transport.Close()
	if alsoErr := c.also.Close(); err == nil {
		err = alsoErr
	}
	return err
}
