package message

import (
	"bytes"
	"encoding/json"

	"github.com/dustin/go-humanize"
	"github.com/juju/errors"

	"mini-jsonrpc/codec"
	"mini-jsonrpc/idgen"
)

// DefaultMaxBodySize is the outbound body limit used when none is configured.
const DefaultMaxBodySize = 10 * 1024 * 1024

const (
	ErrEmptyMethod     = errors.ConstError("method name is empty")
	ErrEmptyBatch      = errors.ConstError("batch has no entries")
	ErrInvalidParams   = errors.ConstError("params must be a JSON object or array")
	ErrRequestTooLarge = errors.ConstError("request body exceeds maximum size")
)

// Encoder turns method calls into identified envelopes. Ids come from the
// shared generator; params are rendered through the codec.
type Encoder struct {
	ids         *idgen.Generator
	codec       codec.Codec
	maxBodySize int64
}

// NewEncoder builds an encoder. A maxBodySize <= 0 selects DefaultMaxBodySize.
func NewEncoder(ids *idgen.Generator, c codec.Codec, maxBodySize int64) *Encoder {
	if c == nil {
		c = codec.GetCodec(codec.CodecTypeJSON)
	}
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}
	return &Encoder{ids: ids, codec: c, maxBodySize: maxBodySize}
}

// MaxBodySize returns the outbound limit enforced by Marshal.
func (e *Encoder) MaxBodySize() int64 {
	return e.maxBodySize
}

// Call allocates an id and builds a request for method.
func (e *Encoder) Call(method string, params any) (Call, error) {
	raw, err := e.params(method, params)
	if err != nil {
		return Call{}, err
	}
	return Call{JSONRPC: Version, Method: method, Params: raw, ID: e.ids.Next()}, nil
}

// Notification builds an id-less request. No id is allocated.
func (e *Encoder) Notification(method string, params any) (Notification, error) {
	raw, err := e.params(method, params)
	if err != nil {
		return Notification{}, err
	}
	return Notification{JSONRPC: Version, Method: method, Params: raw}, nil
}

// Batch builds one call per entry, allocating ids in submission order, and
// returns the id to position map used to correlate the reply. Every entry is
// validated before the first id is taken, so a rejected batch allocates none.
func (e *Encoder) Batch(entries []Entry) (BatchCall, Positions, error) {
	if len(entries) == 0 {
		return nil, nil, ErrEmptyBatch
	}
	rendered := make([]json.RawMessage, len(entries))
	for i, entry := range entries {
		raw, err := e.params(entry.Method, entry.Params)
		if err != nil {
			return nil, nil, errors.Annotatef(err, "batch entry %d", i)
		}
		rendered[i] = raw
	}

	batch := make(BatchCall, len(entries))
	positions := make(Positions, len(entries))
	for pos, entry := range entries {
		id := e.ids.Next()
		batch[pos] = Call{JSONRPC: Version, Method: entry.Method, Params: rendered[pos], ID: id}
		positions[id] = pos
	}
	return batch, positions, nil
}

// Marshal renders an envelope (or batch) and enforces the body size limit.
func (e *Encoder) Marshal(v any) ([]byte, error) {
	body, err := e.codec.Encode(v)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if int64(len(body)) > e.maxBodySize {
		return nil, errors.Annotatef(ErrRequestTooLarge, "%s > %s",
			humanize.IBytes(uint64(len(body))), humanize.IBytes(uint64(e.maxBodySize)))
	}
	return body, nil
}

func (e *Encoder) params(method string, params any) (json.RawMessage, error) {
	if method == "" {
		return nil, ErrEmptyMethod
	}
	if params == nil {
		return nil, nil
	}
	raw, err := e.codec.Encode(params)
	if err != nil {
		return nil, errors.Annotatef(err, "encoding params for %q", method)
	}
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, jsonNull) {
		return nil, nil
	}
	if len(raw) == 0 || (raw[0] != '{' && raw[0] != '[') {
		return nil, errors.Annotatef(ErrInvalidParams, "method %q", method)
	}
	return json.RawMessage(raw), nil
}
