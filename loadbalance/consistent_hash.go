package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"sync"

	"mini-jsonrpc/registry"
)

// ConsistentHashBalancer maps routing keys to endpoints using a hash ring.
// The same key always reaches the same endpoint until the endpoint set
// changes, which keeps per-method server caches warm.
//
// Each real endpoint is placed on the ring as N virtual nodes so a handful of
// endpoints still spread evenly.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	              ╱       ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	              ╲       ╱
//	                ╲   ╱
type ConsistentHashBalancer struct {
	replicas int

	mu        sync.Mutex
	signature string            // endpoint set the ring was built from
	ring      []uint32          // sorted hash values on the ring
	nodes     map[uint32]string // hash value → endpoint Addr
}

// NewConsistentHashBalancer creates a hash ring with 100 virtual nodes per endpoint.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: 100,
		nodes:    make(map[uint32]string),
	}
}

func (b *ConsistentHashBalancer) add(addr string) {
	for i := 0; i < b.replicas; i++ {
		hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", addr, i)))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = addr
	}
}

func (b *ConsistentHashBalancer) sortRing() {
	sort.Slice(b.ring, func(i, j int) bool {
		return b.ring[i] < b.ring[j]
	})
}

// rebuild replaces the ring when the endpoint set differs from the last one.
// Must be called with mu held.
func (b *ConsistentHashBalancer) rebuild(endpoints []registry.Endpoint) {
	addrs := make([]string, len(endpoints))
	for i, ep := range endpoints {
		addrs[i] = ep.Addr
	}
	sort.Strings(addrs)
	signature := strings.Join(addrs, "\x00")
	if signature == b.signature && len(b.ring) > 0 {
		return
	}

	b.signature = signature
	b.ring = b.ring[:0]
	b.nodes = make(map[uint32]string, len(addrs)*b.replicas)
	for _, addr := range addrs {
		b.add(addr)
	}
	b.sortRing()
}

// Pick hashes key and walks clockwise to the first virtual node, wrapping
// past the largest hash back to the first.
func (b *ConsistentHashBalancer) Pick(key string, endpoints []registry.Endpoint) (*registry.Endpoint, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	b.mu.Lock()
	b.rebuild(endpoints)
	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	addr := b.nodes[b.ring[idx]]
	b.mu.Unlock()

	for i := range endpoints {
		if endpoints[i].Addr == addr {
			return &endpoints[i], nil
		}
	}
	return nil, ErrNoEndpoints
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
