package registry

import (
	"context"
	"sync"
)

// MemoryRegistry keeps endpoints in process. It backs statically configured
// endpoint lists and stands in for etcd in tests. TTLs are ignored.
type MemoryRegistry struct {
	mu       sync.Mutex
	services map[string][]Endpoint
	watchers map[string][]chan []Endpoint
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		services: make(map[string][]Endpoint),
		watchers: make(map[string][]chan []Endpoint),
	}
}

// Register adds or replaces the endpoint with the same Addr.
func (m *MemoryRegistry) Register(_ context.Context, serviceName string, endpoint Endpoint, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	eps := m.services[serviceName]
	for i := range eps {
		if eps[i].Addr == endpoint.Addr {
			eps[i] = endpoint
			m.notify(serviceName)
			return nil
		}
	}
	m.services[serviceName] = append(eps, endpoint)
	m.notify(serviceName)
	return nil
}

func (m *MemoryRegistry) Deregister(_ context.Context, serviceName string, addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	eps := m.services[serviceName]
	for i, ep := range eps {
		if ep.Addr == addr {
			m.services[serviceName] = append(eps[:i:i], eps[i+1:]...)
			m.notify(serviceName)
			break
		}
	}
	return nil
}

func (m *MemoryRegistry) Discover(_ context.Context, serviceName string) ([]Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Endpoint(nil), m.services[serviceName]...), nil
}

// Watch emits the endpoint list after every change until ctx is done.
func (m *MemoryRegistry) Watch(ctx context.Context, serviceName string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)
	m.mu.Lock()
	m.watchers[serviceName] = append(m.watchers[serviceName], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		ws := m.watchers[serviceName]
		for i, w := range ws {
			if w == ch {
				m.watchers[serviceName] = append(ws[:i:i], ws[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

// notify must be called with mu held. A slow watcher only ever sees the
// latest list.
func (m *MemoryRegistry) notify(serviceName string) {
	snapshot := append([]Endpoint(nil), m.services[serviceName]...)
	for _, ch := range m.watchers[serviceName] {
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}
