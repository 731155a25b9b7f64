package client

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/juju/errors"

	"mini-jsonrpc/message"
)

// Standard JSON-RPC error codes, re-exported for callers matching on ProtocolError.Code.
const (
	CodeParseError     = message.CodeParseError
	CodeInvalidRequest = message.CodeInvalidRequest
	CodeMethodNotFound = message.CodeMethodNotFound
	CodeInvalidParams  = message.CodeInvalidParams
	CodeInternalError  = message.CodeInternalError
)

const (
	// ErrUnattributableResponse is returned when a reply cannot be tied to
	// the request that was sent: the id is missing, is not an integer, or
	// names a request that is not outstanding.
	ErrUnattributableResponse = errors.ConstError("response cannot be attributed to a request")

	// ErrMissingResponse is matched by MissingResponsesError.
	ErrMissingResponse = errors.ConstError("batch response is missing entries")
)

// TransportError wraps a failure to move bytes. Nothing was correlated.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "jsonrpc transport: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// ParseError means the reply body was neither a success nor an error reply.
// Err is the failure of the first (success) decode attempt.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "jsonrpc parse: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

// ProtocolError is an error reply sent by the server.
type ProtocolError struct {
	Code    int
	Message string
	Data    json.RawMessage
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// UnmarshalData decodes the error's data member into v. It reports an error
// when the server sent no data.
func (e *ProtocolError) UnmarshalData(v any) error {
	if len(e.Data) == 0 {
		return errors.NotFoundf("data of jsonrpc error %d", e.Code)
	}
	return json.Unmarshal(e.Data, v)
}

func newProtocolError(obj *message.ErrorObject) *ProtocolError {
	return &ProtocolError{Code: obj.Code, Message: obj.Message, Data: obj.Data}
}

// MissingResponsesError lists the batch positions the server did not answer.
type MissingResponsesError struct {
	Positions []int
}

func (e *MissingResponsesError) Error() string {
	pos := make([]string, len(e.Positions))
	for i, p := range e.Positions {
		pos[i] = strconv.Itoa(p)
	}
	return fmt.Sprintf("%s: positions %s", ErrMissingResponse, strings.Join(pos, ", "))
}

func (e *MissingResponsesError) Is(target error) bool { return target == ErrMissingResponse }

// BatchError reports the members of an otherwise correlated batch that came
// back as error replies. Errors maps a position to its error.
type BatchError struct {
	Errors map[int]*ProtocolError
}

func (e *BatchError) Error() string {
	positions := make([]int, 0, len(e.Errors))
	for pos := range e.Errors {
		positions = append(positions, pos)
	}
	slices.Sort(positions)
	parts := make([]string, len(positions))
	for i, pos := range positions {
		parts[i] = fmt.Sprintf("[%d] %s", pos, e.Errors[pos].Error())
	}
	return fmt.Sprintf("jsonrpc batch: %d of the calls failed: %s", len(positions), strings.Join(parts, "; "))
}

// At returns the error reply for position pos, or nil when it succeeded.
func (e *BatchError) At(pos int) *ProtocolError {
	return e.Errors[pos]
}

func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func IsParse(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsProtocol reports whether err is a single-call error reply. A BatchError
// is not one; inspect it with errors.As.
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

func IsUnattributable(err error) bool {
	return errors.Is(err, ErrUnattributableResponse)
}
