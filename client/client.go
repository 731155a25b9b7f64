// Package client is the JSON-RPC 2.0 client: it owns the id generator, builds
// requests with message.Encoder, hands bodies to a transport.Transport and
// correlates the replies back to the calls that caused them.
//
//	Request:      Encoder.Call → Marshal → Transport.SendAndReadBody → Decoder.Decode      → correlateSingle
//	BatchRequest: Encoder.Batch → Marshal → Transport.SendAndReadBody → Decoder.DecodeBatch → correlateBatch
//	Notify:       Encoder.Notification → Marshal → Transport.Send
//
// Replies are matched by id, never by position, so servers may answer batch
// members in any order.
package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/juju/errors"
	"github.com/rs/zerolog"

	"mini-jsonrpc/codec"
	"mini-jsonrpc/idgen"
	"mini-jsonrpc/message"
	"mini-jsonrpc/transport"
)

// Client is safe for concurrent use. The only state shared between calls is
// the id generator.
type Client struct {
	transport transport.Transport
	ids       *idgen.Generator
	codec     codec.Codec
	encoder   *message.Encoder
	decoder   *message.Decoder
	log       zerolog.Logger

	maxBodySize int64
}

type Option func(*Client)

// WithLogger sets the logger used when the call context carries none.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithMaxRequestBodySize caps encoded request bodies. Larger requests fail
// before anything is sent.
func WithMaxRequestBodySize(n int64) Option {
	return func(c *Client) { c.maxBodySize = n }
}

func WithCodec(cdc codec.Codec) Option {
	return func(c *Client) { c.codec = cdc }
}

// WithIDGenerator shares or seeds the id counter.
func WithIDGenerator(g *idgen.Generator) Option {
	return func(c *Client) { c.ids = g }
}

// New builds a client over t. The client takes ownership of t; Close closes it.
func New(t transport.Transport, opts ...Option) *Client {
	c := &Client{
		transport:   t,
		ids:         &idgen.Generator{},
		codec:       codec.GetCodec(codec.CodecTypeJSON),
		log:         zerolog.Nop(),
		maxBodySize: message.DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.encoder = message.NewEncoder(c.ids, c.codec, c.maxBodySize)
	c.decoder = message.NewDecoder(c.codec)
	return c
}

func (c *Client) logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &c.log
}

// Notify sends a notification. No id is allocated and no reply is read.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	note, err := c.encoder.Notification(method, params)
	if err != nil {
		return err
	}
	body, err := c.encoder.Marshal(note)
	if err != nil {
		return &TransportError{Err: err}
	}
	start := time.Now()
	err = c.transport.Send(transport.WithRoutingKey(ctx, method), body)
	if err != nil {
		err = &TransportError{Err: err}
	}
	c.logger(ctx).Debug().
		Str("method", method).
		Dur("duration", time.Since(start)).
		Err(err).
		Msg("jsonrpc notification")
	return err
}

// Request performs one call and returns its raw result.
func (c *Client) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	call, err := c.encoder.Call(method, params)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	result, err := c.request(ctx, call)
	c.logger(ctx).Debug().
		Uint64("id", call.ID).
		Str("method", method).
		Stringer("state", finalState(err)).
		Dur("duration", time.Since(start)).
		Err(err).
		Msg("jsonrpc call")
	return result, err
}

func (c *Client) request(ctx context.Context, call message.Call) (json.RawMessage, error) {
	body, err := c.encoder.Marshal(call)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	reply, err := c.transport.SendAndReadBody(transport.WithRoutingKey(ctx, call.Method), body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return correlateSingle(call.ID, c.decoder.Decode(reply))
}

// BatchRequest sends entries as one batch and returns their results in entry
// order. When some members fail with error replies the results of the others
// are still returned, together with a *BatchError.
func (c *Client) BatchRequest(ctx context.Context, entries []message.Entry) ([]json.RawMessage, error) {
	batch, positions, err := c.encoder.Batch(entries)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	results, err := c.batch(ctx, batch, positions)

	first, last := batch[0].ID, batch[len(batch)-1].ID
	c.logger(ctx).Debug().
		Uint64("first_id", first).
		Uint64("last_id", last).
		Int("size", len(batch)).
		Stringer("state", finalState(err)).
		Dur("duration", time.Since(start)).
		Err(err).
		Msg("jsonrpc batch")
	return results, err
}

func (c *Client) batch(ctx context.Context, batch message.BatchCall, positions message.Positions) ([]json.RawMessage, error) {
	body, err := c.encoder.Marshal(batch)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	reply, err := c.transport.SendAndReadBody(transport.WithRoutingKey(ctx, batch[0].Method), body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return correlateBatch(positions, len(batch), c.decoder.DecodeBatch(reply))
}

// Close releases the transport.
func (c *Client) Close() error {
	return c.transport.Close()
}

// Call performs one call and decodes its result into T.
func Call[T any](ctx context.Context, c *Client, method string, params any) (T, error) {
	var out T
	raw, err := c.Request(ctx, method, params)
	if err != nil {
		return out, err
	}
	if err := c.codec.Decode(raw, &out); err != nil {
		return out, errors.Annotatef(err, "decoding result of %s", method)
	}
	return out, nil
}

// Batch sends entries as one batch and decodes every result into T. Results
// of members that failed with an error reply are left as zero values and the
// *BatchError is returned with them.
func Batch[T any](ctx context.Context, c *Client, entries []message.Entry) ([]T, error) {
	raws, err := c.BatchRequest(ctx, entries)
	var batchErr *BatchError
	if err != nil && !errors.As(err, &batchErr) {
		return nil, err
	}
	out := make([]T, len(raws))
	for i, raw := range raws {
		if raw == nil {
			continue
		}
		if err := c.codec.Decode(raw, &out[i]); err != nil {
			return nil, errors.Annotatef(err, "decoding result %d (%s)", i, entries[i].Method)
		}
	}
	if batchErr != nil {
		return out, batchErr
	}
	return out, nil
}
