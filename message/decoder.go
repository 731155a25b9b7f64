package message

import (
	"bytes"
	"encoding/json"

	"github.com/juju/errors"

	"mini-jsonrpc/codec"
)

// Kind tags the outcome of decoding a reply body.
type Kind int

const (
	// KindUndecodable means the body is neither a success nor an error reply.
	KindUndecodable Kind = iota
	// KindSuccess means the body decoded as a success reply (or an array of replies).
	KindSuccess
	// KindProtocolError means the body decoded as a single error reply.
	KindProtocolError
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindProtocolError:
		return "protocol-error"
	default:
		return "undecodable"
	}
}

// Decoded is the tagged result of decoding a single-call reply.
// Envelope is set for KindSuccess and KindProtocolError; Err for KindUndecodable.
type Decoded struct {
	Kind     Kind
	Envelope Envelope
	Err      error
}

// DecodedBatch is the tagged result of decoding a batch reply.
// KindSuccess fills Envelopes, which may mix success and error replies.
// KindProtocolError fills Envelope with the server's batch-level rejection.
type DecodedBatch struct {
	Kind      Kind
	Envelopes []Envelope
	Envelope  Envelope
	Err       error
}

const (
	errNotSuccess = errors.ConstError("reply has an error member")
	errNoResult   = errors.ConstError("reply has no result member")
	errNoError    = errors.ConstError("reply has no error member")
	errBadError   = errors.ConstError("reply error object lacks code or message")
)

// Decoder classifies reply bodies.
type Decoder struct {
	codec codec.Codec
}

// NewDecoder builds a decoder; a nil codec selects JSON.
func NewDecoder(c codec.Codec) *Decoder {
	if c == nil {
		c = codec.GetCodec(codec.CodecTypeJSON)
	}
	return &Decoder{codec: c}
}

// Decode reads a single-call reply. The success shape is tried first; the
// error shape is only a fallback, so when both fail the success failure is
// the one reported.
func (d *Decoder) Decode(body []byte) Decoded {
	env, err := d.success(body)
	if err == nil {
		return Decoded{Kind: KindSuccess, Envelope: env}
	}
	if errEnv, errErr := d.failure(body); errErr == nil {
		return Decoded{Kind: KindProtocolError, Envelope: errEnv}
	}
	return Decoded{Kind: KindUndecodable, Err: err}
}

// DecodeBatch reads a batch reply: an array of replies, else one error reply
// rejecting the whole batch. Array members may be success or error replies.
func (d *Decoder) DecodeBatch(body []byte) DecodedBatch {
	envs, err := d.array(body)
	if err == nil {
		return DecodedBatch{Kind: KindSuccess, Envelopes: envs}
	}
	if errEnv, errErr := d.failure(body); errErr == nil {
		return DecodedBatch{Kind: KindProtocolError, Envelope: errEnv}
	}
	return DecodedBatch{Kind: KindUndecodable, Err: err}
}

func (d *Decoder) array(body []byte) ([]Envelope, error) {
	var members []json.RawMessage
	if err := d.codec.Decode(body, &members); err != nil {
		return nil, errors.Trace(err)
	}
	if members == nil {
		return nil, errors.New("batch reply is null")
	}
	envs := make([]Envelope, 0, len(members))
	for i, raw := range members {
		env, err := d.success(raw)
		if err != nil {
			errEnv, errErr := d.failure(raw)
			if errErr != nil {
				return nil, errors.Annotatef(err, "batch reply member %d", i)
			}
			env = errEnv
		}
		envs = append(envs, env)
	}
	return envs, nil
}

func (d *Decoder) fields(body []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := d.codec.Decode(body, &fields); err != nil {
		return nil, errors.Trace(err)
	}
	if fields == nil {
		return nil, errors.New("reply is null")
	}
	return fields, nil
}

func (d *Decoder) success(body []byte) (Envelope, error) {
	fields, err := d.fields(body)
	if err != nil {
		return Envelope{}, err
	}
	// "error": null next to a result is what net/rpc/jsonrpc style servers send.
	if rawErr, ok := fields["error"]; ok && !isNull(rawErr) {
		return Envelope{}, errNotSuccess
	}
	result, ok := fields["result"]
	if !ok {
		return Envelope{}, errNoResult
	}
	return Envelope{
		JSONRPC: d.version(fields),
		ID:      fields["id"],
		Result:  result,
	}, nil
}

func (d *Decoder) failure(body []byte) (Envelope, error) {
	fields, err := d.fields(body)
	if err != nil {
		return Envelope{}, err
	}
	rawErr, ok := fields["error"]
	if !ok {
		return Envelope{}, errNoError
	}
	var members map[string]json.RawMessage
	if err := d.codec.Decode(rawErr, &members); err != nil {
		return Envelope{}, errors.Annotate(err, "reply error member")
	}
	if _, ok := members["code"]; !ok {
		return Envelope{}, errBadError
	}
	if _, ok := members["message"]; !ok {
		return Envelope{}, errBadError
	}
	var obj ErrorObject
	if err := d.codec.Decode(rawErr, &obj); err != nil {
		return Envelope{}, errors.Annotate(err, "reply error member")
	}
	return Envelope{
		JSONRPC: d.version(fields),
		ID:      fields["id"],
		Error:   &obj,
	}, nil
}

// version reads the jsonrpc tag when it is a string. It is never validated.
func (d *Decoder) version(fields map[string]json.RawMessage) string {
	var v string
	if raw, ok := fields["jsonrpc"]; ok {
		_ = d.codec.Decode(raw, &v)
	}
	return v
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
