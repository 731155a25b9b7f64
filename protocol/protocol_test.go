package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	header := Header{
		CodecType: CodecTypeJSON,
		MsgType:   MsgTypeRequest,
	}
	body := []byte(`{"jsonrpc":"2.0","method":"Arith.Add","id":1}`)

	var buf bytes.Buffer
	if err := Encode(&buf, &header, body); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if buf.Len() != HeaderSize+len(body) {
		t.Fatalf("expect %d bytes on the wire, got %d", HeaderSize+len(body), buf.Len())
	}

	decodedHeader, decodedBody, err := Decode(&buf, 0)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decodedHeader.MsgType != header.MsgType {
		t.Errorf("MsgType mismatch: got %d, want %d", decodedHeader.MsgType, header.MsgType)
	}
	if decodedHeader.BodyLen != uint32(len(body)) {
		t.Errorf("BodyLen mismatch: got %d, want %d", decodedHeader.BodyLen, len(body))
	}
	if !bytes.Equal(decodedBody, body) {
		t.Errorf("Body mismatch: got %s, want %s", decodedBody, body)
	}
}

func TestDecodeEmptyBody(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, &Header{MsgType: MsgTypeResponse}, nil); err != nil {
		t.Fatal(err)
	}
	h, body, err := Decode(&buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	if h.BodyLen != 0 || len(body) != 0 {
		t.Fatalf("expect empty body, got %d bytes", len(body))
	}
}

func TestDecodeRejects(t *testing.T) {
	var good bytes.Buffer
	if err := Encode(&good, &Header{MsgType: MsgTypeNotify}, []byte("hello world")); err != nil {
		t.Fatal(err)
	}
	frame := good.Bytes()

	corrupt := func(i int, b byte) []byte {
		c := append([]byte(nil), frame...)
		c[i] = b
		return c
	}

	cases := map[string][]byte{
		"magic":    corrupt(0, 'x'),
		"version":  corrupt(3, 9),
		"codec":    corrupt(4, 7),
		"msgType":  corrupt(5, 9),
		"truncate": frame[:HeaderSize+3],
	}
	for name, data := range cases {
		if _, _, err := Decode(bytes.NewReader(data), 0); err == nil {
			t.Errorf("%s: expect error", name)
		}
	}

	_, _, err := Decode(bytes.NewReader(frame), 4)
	var tooLarge *ErrFrameTooLarge
	if !errors.As(err, &tooLarge) {
		t.Fatalf("expect ErrFrameTooLarge, got %v", err)
	}
	if tooLarge.BodyLen != 11 || tooLarge.Limit != 4 {
		t.Fatalf("unexpected limit error %+v", tooLarge)
	}
}
