// Package idgen allocates correlation ids for outgoing JSON-RPC calls.
//
// A Generator is owned by one client and shared by every goroutine calling
// through it. The counter is a single uint64 advanced with one atomic add,
// so no lock is needed:
//
//	goroutine-1 ──Next()──┐
//	goroutine-2 ──Next()──┼──→ counter.Add(1) - 1 → 0, 1, 2, ...
//	goroutine-3 ──Next()──┘
//
// The counter wraps from math.MaxUint64 back to 0. Ids only need to be unique
// among calls that are currently in flight, a set far smaller than 2^64.
package idgen

import "sync/atomic"

// Generator hands out monotonically advancing ids, modulo 2^64.
// The zero value is ready to use and starts at 0.
type Generator struct {
	next atomic.Uint64
}

// NewGenerator returns a generator whose first id is start.
func NewGenerator(start uint64) *Generator {
	g := &Generator{}
	g.next.Store(start)
	return g
}

// Next allocates the next id.
func (g *Generator) Next() uint64 {
	// Add wraps on overflow, which is intended.
	return g.next.Add(1) - 1
}

// Peek reports the id the next call to Next will return without allocating it.
func (g *Generator) Peek() uint64 {
	return g.next.Load()
}
