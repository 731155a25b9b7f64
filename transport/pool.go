// Package transport also provides the TCP connection pool used by TCPTransport.
//
// A framed TCP connection carries one exchange at a time (write request
// frame, read reply frame), so concurrent callers each borrow their own
// connection. The pool is a buffered channel used as a FIFO queue: it is
// goroutine-safe and blocking on empty comes for free.
package transport

import (
	"context"
	"net"
	"sync"
)

// ConnPool manages a pool of reusable TCP connections to a single address.
type ConnPool struct {
	mu       sync.Mutex
	conns    chan *PoolConn
	addr     string
	maxConns int
	curConns int // connections created and not yet discarded
	closed   bool
	factory  func(ctx context.Context) (net.Conn, error)
}

// PoolConn wraps a net.Conn with pool metadata.
type PoolConn struct {
	net.Conn
	pool     *ConnPool
	unusable bool // set when an exchange failed mid-way
}

// MarkUnusable makes Put discard the connection instead of reusing it.
func (c *PoolConn) MarkUnusable() {
	c.unusable = true
}

// NewConnPool creates a pool of at most maxConns connections.
// Connections are created lazily.
func NewConnPool(addr string, maxConns int, factory func(ctx context.Context) (net.Conn, error)) *ConnPool {
	if maxConns <= 0 {
		maxConns = 1
	}
	return &ConnPool{
		conns:    make(chan *PoolConn, maxConns),
		addr:     addr,
		maxConns: maxConns,
		factory:  factory,
	}
}

// Get borrows a connection.
// Strategy:
//  1. Take an idle connection if there is one
//  2. Otherwise dial a new one if under the limit
//  3. Otherwise wait for one to be returned, or for ctx to end
func (p *ConnPool) Get(ctx context.Context) (*PoolConn, error) {
	select {
	case conn, ok := <-p.conns:
		if !ok {
			return nil, ErrClosed
		}
		return conn, nil
	default:
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	if p.curConns < p.maxConns {
		p.curConns++
		p.mu.Unlock()
		return p.createNew(ctx)
	}
	p.mu.Unlock()

	select {
	case conn, ok := <-p.conns:
		if !ok {
			return nil, ErrClosed
		}
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Put returns a connection to the pool.
// Unusable connections are closed and their slot freed.
func (p *ConnPool) Put(conn *PoolConn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if conn.unusable || p.closed {
		conn.Close()
		p.curConns--
		return
	}
	p.conns <- conn
}

// Close shuts down the pool and closes all idle connections. Borrowed
// connections are closed when they are returned.
func (p *ConnPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.conns)
	for conn := range p.conns {
		conn.Close()
		p.curConns--
	}
	return nil
}

// createNew dials outside the lock; the slot was reserved by Get.
func (p *ConnPool) createNew(ctx context.Context) (*PoolConn, error) {
	netConn, err := p.factory(ctx)
	if err != nil {
		p.mu.Lock()
		p.curConns--
		p.mu.Unlock()
		return nil, err
	}
	return &PoolConn{Conn: netConn, pool: p}, nil
}
