// Package protocol implements the length-prefixed frame used to carry JSON-RPC
// bodies over a raw TCP connection.
//
// TCP is a byte stream, so each body is preceded by a fixed 10-byte header.
// The receiver reads the header first to learn the body length, then reads
// exactly that many bytes.
//
// Frame format:
//
//	0      3  4  5  6         10
//	┌──────┬──┬──┬──┬─────────┬───────────────┐
//	│magic │v │ct│mt│ bodyLen │    body ...    │
//	│ mjr  │01│  │  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴──┴─────────┴───────────────┘
//
// Correlation is not done here: ids live inside the JSON-RPC body.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic number bytes: "mjr" (mini-jsonrpc).
// Rejects peers that are not speaking this framing (e.g. an HTTP client on the wrong port).
const (
	MagicNumber byte = 0x6d // 'm'
	MagicByte2  byte = 0x6a // 'j'
	MagicByte3  byte = 0x72 // 'r'
	Version     byte = 0x01
	HeaderSize  int  = 10 // 3 (magic) + 1 (version) + 1 (codec) + 1 (msgType) + 4 (bodyLen)
)

// MsgType distinguishes the three kinds of frame.
type MsgType byte

const (
	MsgTypeRequest  MsgType = 0 // Client → Server call or batch, a reply frame follows
	MsgTypeResponse MsgType = 1 // Server → Client reply
	MsgTypeNotify   MsgType = 2 // Client → Server notification, no reply
)

// Codec type constants, mirrored from the codec package to avoid an import.
const (
	CodecTypeJSON byte = 0
)

// Header is the fixed frame header.
type Header struct {
	CodecType byte
	MsgType   MsgType
	BodyLen   uint32
}

// ErrFrameTooLarge is returned by Decode when a header announces a body over the limit.
type ErrFrameTooLarge struct {
	BodyLen uint32
	Limit   uint32
}

func (e *ErrFrameTooLarge) Error() string {
	return fmt.Sprintf("frame body of %d bytes exceeds limit of %d", e.BodyLen, e.Limit)
}

// Encode writes a complete frame to w. BodyLen is taken from body.
// Callers sharing w between goroutines must serialise calls.
func Encode(w io.Writer, h *Header, body []byte) error {
	buf := make([]byte, HeaderSize, HeaderSize+len(body))

	copy(buf[0:3], []byte{MagicNumber, MagicByte2, MagicByte3})
	buf[3] = Version
	buf[4] = h.CodecType
	buf[5] = byte(h.MsgType)
	binary.BigEndian.PutUint32(buf[6:10], uint32(len(body)))

	// One write per frame keeps a frame contiguous on the wire.
	buf = append(buf, body...)
	_, err := w.Write(buf)
	return err
}

// Decode reads one frame from r. A limit of 0 means no limit on the body.
func Decode(r io.Reader, limit uint32) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	if headerBuf[0] != MagicNumber || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, nil, fmt.Errorf("invalid magic number: %x", headerBuf[0:3])
	}
	if headerBuf[3] != Version {
		return nil, nil, fmt.Errorf("unsupported version: %d", headerBuf[3])
	}
	if headerBuf[4] != CodecTypeJSON {
		return nil, nil, fmt.Errorf("unsupported codec type: %d", headerBuf[4])
	}
	msgType := MsgType(headerBuf[5])
	if msgType != MsgTypeRequest && msgType != MsgTypeResponse && msgType != MsgTypeNotify {
		return nil, nil, fmt.Errorf("unsupported message type: %d", msgType)
	}

	bodyLen := binary.BigEndian.Uint32(headerBuf[6:10])
	if limit > 0 && bodyLen > limit {
		return nil, nil, &ErrFrameTooLarge{BodyLen: bodyLen, Limit: limit}
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}

	return &Header{
		CodecType: headerBuf[4],
		MsgType:   msgType,
		BodyLen:   bodyLen,
	}, body, nil
}
