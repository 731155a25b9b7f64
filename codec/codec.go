// Package codec defines how envelopes are turned into bytes and back.
//
// The encoder, the response decoder and the server all go through a Codec so
// the wire syntax stays owned by one place. JSON is the only syntax JSON-RPC
// defines; the Type byte exists so other framings (see protocol) can record
// which codec produced a body.
package codec

type CodecType byte

const (
	CodecTypeJSON CodecType = 0
)

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType // 0=JSON
}

// GetCodec returns the codec for codecType, falling back to JSON.
func GetCodec(codecType CodecType) Codec {
	switch codecType {
	case CodecTypeJSON:
		return &JSONCodec{}
	default:
		return &JSONCodec{}
	}
}
