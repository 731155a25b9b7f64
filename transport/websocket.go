package transport

import (
	"context"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/juju/errors"
	"github.com/rs/zerolog"
)

// WebSocketTransport carries bodies as text messages over one WebSocket
// connection. One exchange runs at a time: a call writes its body and reads
// the next message as its reply. The connection is dialled lazily and
// redialled after any failure.
type WebSocketTransport struct {
	url         string
	header      http.Header
	maxBodySize int64
	log         zerolog.Logger

	mu     sync.Mutex // serialises exchanges and guards conn
	conn   *websocket.Conn
	closed bool
}

// NewWebSocket builds a transport for a ws:// or wss:// URL.
func NewWebSocket(url string, maxBodySize int64, log zerolog.Logger) *WebSocketTransport {
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}
	return &WebSocketTransport{
		url:         url,
		header:      make(http.Header),
		maxBodySize: maxBodySize,
		log:         log,
	}
}

// connect must be called with mu held.
func (t *WebSocketTransport) connect(ctx context.Context) (*websocket.Conn, error) {
	if t.closed {
		return nil, ErrClosed
	}
	if t.conn != nil {
		return t.conn, nil
	}
	conn, _, err := websocket.Dial(ctx, t.url, &websocket.DialOptions{HTTPHeader: t.header})
	if err != nil {
		return nil, errors.Annotatef(err, "dialling %s", t.url)
	}
	conn.SetReadLimit(t.maxBodySize)
	t.conn = conn
	t.log.Debug().Str("url", t.url).Msg("websocket connected")
	return conn, nil
}

// drop must be called with mu held. A failed or cancelled exchange may leave
// an unread reply on the wire, so the connection is never reused after one.
func (t *WebSocketTransport) drop(reason string) {
	if t.conn == nil {
		return
	}
	_ = t.conn.Close(websocket.StatusGoingAway, reason)
	t.conn = nil
}

func (t *WebSocketTransport) write(ctx context.Context, body []byte) (*websocket.Conn, error) {
	if int64(len(body)) > t.maxBodySize {
		return nil, ErrRequestTooLarge
	}
	conn, err := t.connect(ctx)
	if err != nil {
		return nil, err
	}
	if err := conn.Write(ctx, websocket.MessageText, body); err != nil {
		t.drop("write failed")
		return nil, errors.Annotate(err, "writing websocket message")
	}
	return conn, nil
}

func (t *WebSocketTransport) Send(ctx context.Context, body []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.write(ctx, body)
	return err
}

func (t *WebSocketTransport) SendAndReadBody(ctx context.Context, body []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	conn, err := t.write(ctx, body)
	if err != nil {
		return nil, err
	}
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.drop("read failed")
		if websocket.CloseStatus(err) == websocket.StatusMessageTooBig {
			return nil, ErrResponseTooLarge
		}
		return nil, errors.Annotate(err, "reading websocket message")
	}
	return data, nil
}

func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close(websocket.StatusNormalClosure, "")
	t.conn = nil
	return err
}
