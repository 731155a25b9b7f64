package transport

import (
	"context"
	"net"
	"time"

	"github.com/juju/errors"

	"mini-jsonrpc/protocol"
)

var (
	aLongTimeAgo = time.Unix(1, 0)
	noDeadline   time.Time
)

// TCPTransport sends bodies as protocol frames over pooled TCP connections.
// Calls write a MsgTypeRequest frame and read one MsgTypeResponse frame;
// notifications write a MsgTypeNotify frame and read nothing.
type TCPTransport struct {
	pool        *ConnPool
	maxBodySize int64
}

// NewTCP builds a transport for addr (host:port) with up to poolSize connections.
func NewTCP(addr string, poolSize int, maxBodySize int64) *TCPTransport {
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}
	dialer := &net.Dialer{}
	return &TCPTransport{
		pool: NewConnPool(addr, poolSize, func(ctx context.Context) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp", addr)
		}),
		maxBodySize: maxBodySize,
	}
}

// exchange borrows a connection for one frame round. Context cancellation
// forces the connection's deadline into the past, which unblocks any I/O.
func (t *TCPTransport) exchange(ctx context.Context, msgType protocol.MsgType, body []byte) ([]byte, error) {
	if int64(len(body)) > t.maxBodySize {
		return nil, ErrRequestTooLarge
	}
	conn, err := t.pool.Get(ctx)
	if err != nil {
		return nil, errors.Annotate(err, "borrowing tcp connection")
	}
	defer t.pool.Put(conn)

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(aLongTimeAgo)
	})
	defer func() {
		if !stop() {
			conn.MarkUnusable()
		}
		_ = conn.SetDeadline(noDeadline)
	}()

	header := &protocol.Header{CodecType: protocol.CodecTypeJSON, MsgType: msgType}
	if err := protocol.Encode(conn, header, body); err != nil {
		conn.MarkUnusable()
		return nil, errors.Annotate(err, "writing frame")
	}
	if msgType == protocol.MsgTypeNotify {
		return nil, nil
	}

	replyHeader, reply, err := protocol.Decode(conn, uint32(min(t.maxBodySize, int64(^uint32(0)))))
	if err != nil {
		conn.MarkUnusable()
		var tooLarge *protocol.ErrFrameTooLarge
		if errors.As(err, &tooLarge) {
			return nil, ErrResponseTooLarge
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Annotate(err, "reading frame")
	}
	if replyHeader.MsgType != protocol.MsgTypeResponse {
		conn.MarkUnusable()
		return nil, errors.Errorf("expected response frame, got message type %d", replyHeader.MsgType)
	}
	return reply, nil
}

func (t *TCPTransport) Send(ctx context.Context, body []byte) error {
	_, err := t.exchange(ctx, protocol.MsgTypeNotify, body)
	return err
}

func (t *TCPTransport) SendAndReadBody(ctx context.Context, body []byte) ([]byte, error) {
	return t.exchange(ctx, protocol.MsgTypeRequest, body)
}

func (t *TCPTransport) Close() error {
	return t.pool.Close()
}
