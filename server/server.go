// Package server implements a JSON-RPC 2.0 server for the reflect-registered
// services of a process. It answers over HTTP, WebSocket and the framed TCP
// protocol, and is what the client's transports talk to in tests and in
// cmd/jsonrpc-serve.
//
// Request processing pipeline:
//
//	body → Middleware Chain → dispatch
//	  single: decode → lookup "Service.Method" → reflect.Call → reply
//	  batch:  one goroutine per member → replies collected in completion order
//
// Batch replies are written in the order members finish, not the order they
// were sent, so clients must correlate by id.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/rs/zerolog"

	"mini-jsonrpc/codec"
	"mini-jsonrpc/message"
	"mini-jsonrpc/middleware"
	"mini-jsonrpc/registry"
)

// DefaultMaxBodySize caps inbound bodies (10 MiB).
const DefaultMaxBodySize = 10 * 1024 * 1024

// Error lets a method choose the JSON-RPC error code of its failure.
// Any other error is reported with message.CodeServerError.
type Error struct {
	Code    int
	Message string
	Data    any
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Server is the JSON-RPC server that registers services and handles incoming requests.
type Server struct {
	mu          sync.RWMutex
	serviceMap  map[string]*service
	middlewares []middleware.Middleware
	buildOnce   sync.Once
	handler     middleware.HandlerFunc // middleware(middleware(...(dispatch)))

	codec       codec.Codec
	maxBodySize int64
	log         zerolog.Logger

	listener net.Listener
	connsMu  sync.Mutex
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup // in-flight requests
	shutdown atomic.Bool

	registry    registry.Registry
	serviceName string
	endpoint    registry.Endpoint
	announced   atomic.Bool
	stopLease   context.CancelFunc
}

type Option func(*Server)

func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) { s.log = log }
}

func WithMaxBodySize(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodySize = n
		}
	}
}

// WithRegistry makes Announce publish endpoint under serviceName.
func WithRegistry(reg registry.Registry, serviceName string, endpoint registry.Endpoint) Option {
	return func(s *Server) {
		s.registry = reg
		s.serviceName = serviceName
		s.endpoint = endpoint
	}
}

// NewServer creates a new server with an empty service map.
func NewServer(opts ...Option) *Server {
	s := &Server{
		serviceMap:  make(map[string]*service),
		codec:       codec.GetCodec(codec.CodecTypeJSON),
		maxBodySize: DefaultMaxBodySize,
		log:         zerolog.Nop(),
		conns:       make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register exposes the methods of rcvr (e.g. &Arith{}) as "Arith.Method".
func (s *Server) Register(rcvr any) error {
	svc, err := newService(rcvr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.serviceMap[svc.name]; dup {
		return errors.AlreadyExistsf("service %s", svc.name)
	}
	s.serviceMap[svc.name] = svc
	return nil
}

// Use registers a middleware. Middlewares must be added before the first request.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// Handle processes one request body and returns the reply body, or nil when
// nothing must be sent back (only notifications).
func (s *Server) Handle(ctx context.Context, body []byte) []byte {
	s.buildOnce.Do(func() {
		s.handler = middleware.Chain(s.middlewares...)(s.dispatch)
	})
	reply, err := s.handler(ctx, &middleware.Request{Body: body})
	if err != nil {
		// Middleware refused the exchange (rate limit, timeout).
		return s.encode(message.Envelope{Error: &message.ErrorObject{Code: message.CodeServerError, Message: err.Error()}})
	}
	return reply
}

func (s *Server) dispatch(ctx context.Context, req *middleware.Request) ([]byte, error) {
	body := bytes.TrimSpace(req.Body)
	if len(body) > 0 && body[0] == '[' {
		return s.dispatchBatch(ctx, body), nil
	}
	env, ok := s.handleRaw(ctx, body)
	if !ok {
		return nil, nil
	}
	return s.encode(env), nil
}

func (s *Server) dispatchBatch(ctx context.Context, body []byte) []byte {
	var members []json.RawMessage
	if err := s.codec.Decode(body, &members); err != nil {
		return s.encode(errorEnvelope(nil, message.CodeParseError, "Parse error"))
	}
	if len(members) == 0 {
		return s.encode(errorEnvelope(nil, message.CodeInvalidRequest, "Invalid Request"))
	}

	// Members run concurrently; replies are appended as they finish.
	replies := make(chan message.Envelope, len(members))
	var wg sync.WaitGroup
	for _, raw := range members {
		wg.Add(1)
		go func(raw json.RawMessage) {
			defer wg.Done()
			if env, ok := s.handleRaw(ctx, raw); ok {
				replies <- env
			}
		}(raw)
	}
	wg.Wait()
	close(replies)

	out := make([]message.Envelope, 0, len(members))
	for env := range replies {
		out = append(out, env)
	}
	if len(out) == 0 {
		return nil
	}
	return s.encode(out)
}

// handleRaw runs one request object. ok is false for notifications.
func (s *Server) handleRaw(ctx context.Context, raw json.RawMessage) (env message.Envelope, ok bool) {
	if !json.Valid(raw) {
		return errorEnvelope(nil, message.CodeParseError, "Parse error"), true
	}
	var probe map[string]json.RawMessage
	if err := s.codec.Decode(raw, &probe); err != nil {
		return errorEnvelope(nil, message.CodeInvalidRequest, "Invalid Request"), true
	}
	var req message.Request
	if err := s.codec.Decode(raw, &req); err != nil || probe == nil {
		return errorEnvelope(probe["id"], message.CodeInvalidRequest, "Invalid Request"), true
	}
	if req.JSONRPC != message.Version || req.Method == "" {
		return errorEnvelope(req.ID, message.CodeInvalidRequest, "Invalid Request"), true
	}

	result, rpcErr := s.invoke(ctx, req.Method, req.Params)
	if req.IsNotification() {
		if rpcErr != nil {
			s.log.Debug().Str("method", req.Method).Str("error", rpcErr.Message).Msg("notification failed")
		}
		return message.Envelope{}, false
	}
	if rpcErr != nil {
		return message.Envelope{ID: req.ID, Error: rpcErr}, true
	}
	return message.Envelope{ID: req.ID, Result: result}, true
}

// invoke dispatches "Service.Method" via reflection. Panics become internal errors.
func (s *Server) invoke(ctx context.Context, serviceMethod string, params json.RawMessage) (result json.RawMessage, rpcErr *message.ErrorObject) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("method", serviceMethod).Msg("jsonrpc method panicked")
			result, rpcErr = nil, &message.ErrorObject{Code: message.CodeInternalError, Message: "Internal error"}
		}
	}()

	dot := strings.LastIndex(serviceMethod, ".")
	if dot <= 0 || dot == len(serviceMethod)-1 {
		return nil, &message.ErrorObject{Code: message.CodeMethodNotFound, Message: "Method not found"}
	}
	s.mu.RLock()
	svc := s.serviceMap[serviceMethod[:dot]]
	s.mu.RUnlock()
	if svc == nil {
		return nil, &message.ErrorObject{Code: message.CodeMethodNotFound, Message: "Method not found"}
	}
	mtype := svc.method[serviceMethod[dot+1:]]
	if mtype == nil {
		return nil, &message.ErrorObject{Code: message.CodeMethodNotFound, Message: "Method not found"}
	}

	argv, err := mtype.decodeArgs(s.codec, params)
	if err != nil {
		return nil, &message.ErrorObject{Code: message.CodeInvalidParams, Message: "Invalid params: " + err.Error()}
	}
	replyv := reflect.New(mtype.ReplyType)

	if err := svc.call(mtype, argv, replyv); err != nil {
		return nil, s.methodError(err)
	}

	out, err := s.codec.Encode(replyv.Interface())
	if err != nil {
		s.log.Error().Err(err).Str("method", serviceMethod).Msg("failed to marshal method result")
		return nil, &message.ErrorObject{Code: message.CodeInternalError, Message: "Internal error"}
	}
	return out, nil
}

func (s *Server) methodError(err error) *message.ErrorObject {
	var rpcErr *Error
	if !errors.As(err, &rpcErr) {
		return &message.ErrorObject{Code: message.CodeServerError, Message: err.Error()}
	}
	obj := &message.ErrorObject{Code: rpcErr.Code, Message: rpcErr.Message}
	if rpcErr.Data != nil {
		if data, err := s.codec.Encode(rpcErr.Data); err == nil {
			obj.Data = data
		}
	}
	return obj
}

func (s *Server) encode(v any) []byte {
	out, err := s.codec.Encode(v)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to encode reply")
		out, _ = s.codec.Encode(errorEnvelope(nil, message.CodeInternalError, "Internal error"))
	}
	return out
}

func errorEnvelope(id json.RawMessage, code int, msg string) message.Envelope {
	return message.Envelope{ID: id, Error: &message.ErrorObject{Code: code, Message: msg}}
}

// Announce publishes the configured endpoint in the registry. The lease is
// kept alive until Shutdown.
func (s *Server) Announce(ctx context.Context) error {
	if s.registry == nil {
		return nil
	}
	leaseCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := s.registry.Register(leaseCtx, s.serviceName, s.endpoint, 10); err != nil {
		cancel()
		return err
	}
	s.stopLease = cancel
	s.announced.Store(true)
	s.log.Info().Str("service", s.serviceName).Str("endpoint", s.endpoint.Addr).Msg("announced")
	return nil
}

// Shutdown performs graceful shutdown:
//  1. Withdraw from the registry (clients stop routing here)
//  2. Set the shutdown flag so the Accept error is recognised as intentional
//  3. Close the listener
//  4. Wait for in-flight requests, bounded by ctx
//  5. Close remaining connections
func (s *Server) Shutdown(ctx context.Context) error {
	if s.announced.Swap(false) {
		if err := s.registry.Deregister(ctx, s.serviceName, s.endpoint.Addr); err != nil {
			s.log.Warn().Err(err).Msg("deregistering failed")
		}
		s.stopLease()
	}

	s.shutdown.Store(true)
	s.connsMu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	s.connsMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = errors.Annotate(ctx.Err(), "timeout waiting for ongoing requests to finish")
	}

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()
	return err
}
