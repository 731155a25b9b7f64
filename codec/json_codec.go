package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// JSONCodec uses Go's standard library encoding/json for serialization.
// Numbers are decoded as json.Number when the target is an interface, so
// large integer ids and results survive without float64 rounding.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	// Anything but whitespace after the first value is a malformed body,
	// including a stray '}' or ']'.
	var extra json.RawMessage
	if err := dec.Decode(&extra); err != io.EOF {
		return fmt.Errorf("codec: unexpected data after JSON value at offset %d", dec.InputOffset())
	}
	return nil
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
