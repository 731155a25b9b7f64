// Package message defines the JSON-RPC 2.0 envelopes exchanged between client
// and server, and the two halves of the client's wire handling: the Encoder
// that builds identified requests and the Decoder that classifies replies.
//
//	Request:      {"jsonrpc":"2.0","method":"Arith.Add","params":{...},"id":5}
//	Notification: {"jsonrpc":"2.0","method":"log.Append","params":[...]}
//	Success:      {"jsonrpc":"2.0","id":5,"result":...}
//	Error:        {"jsonrpc":"2.0","id":5|null,"error":{"code":-32600,"message":"..."}}
//
// A batch is a JSON array of requests; its reply is an array of success and
// error objects in no particular order.
package message

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/juju/errors"
)

// Version is the protocol tag stamped on every outgoing envelope.
const Version = "2.0"

// Standard error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	// CodeServerError is the code servers use for application failures.
	CodeServerError = -32000
)

// Call is a request that expects a reply carrying the same ID.
type Call struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      uint64          `json:"id"`
}

// Notification is a request without an id. The server never answers it.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// BatchCall is an ordered list of calls sent as one unit.
type BatchCall []Call

// Positions maps each call id of a batch to its index in the BatchCall.
// It is built when the batch is encoded and is the only way to put unordered
// replies back into submission order.
type Positions map[uint64]int

// Entry is one (method, params) pair submitted to Encoder.Batch.
type Entry struct {
	Method string
	Params any
}

// Request is an incoming request as seen by a server. ID is kept raw so it
// can be echoed back byte for byte; a nil ID marks a notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// IsNotification reports whether the request carries no id.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// ErrorObject is the "error" member of an error reply.
type ErrorObject struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Envelope is one reply object. Exactly one of Result and Error is set.
type Envelope struct {
	JSONRPC string
	ID      json.RawMessage
	Result  json.RawMessage
	Error   *ErrorObject
}

// IsError reports whether the envelope carries an error object.
func (e *Envelope) IsError() bool {
	return e.Error != nil
}

var jsonNull = json.RawMessage("null")

type successWire struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
}

type errorWire struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   *ErrorObject    `json:"error"`
}

// MarshalJSON writes the envelope as a success or error reply. A missing id
// or result is written as null.
func (e Envelope) MarshalJSON() ([]byte, error) {
	id := e.ID
	if len(id) == 0 {
		id = jsonNull
	}
	if e.Error != nil {
		return json.Marshal(errorWire{JSONRPC: Version, ID: id, Error: e.Error})
	}
	result := e.Result
	if len(result) == 0 {
		result = jsonNull
	}
	return json.Marshal(successWire{JSONRPC: Version, ID: id, Result: result})
}

const (
	// ErrMissingID is returned by ParseID when a reply has no id member.
	ErrMissingID = errors.ConstError("response id missing")
	// ErrInvalidID is returned by ParseID when the id is not an unsigned 64-bit integer.
	ErrInvalidID = errors.ConstError("response id is not an unsigned 64-bit integer")
)

// ParseID reads a raw reply id as a correlation id. Only bare JSON integers
// in the uint64 range are accepted: strings, fractions and null are not.
func ParseID(raw json.RawMessage) (uint64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, ErrMissingID
	}
	id, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, errors.Annotatef(ErrInvalidID, "id %s", raw)
	}
	return id, nil
}
