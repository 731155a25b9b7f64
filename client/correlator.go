package client

import (
	"bytes"
	"encoding/json"
	"slices"

	"github.com/juju/errors"

	"mini-jsonrpc/message"
)

// correlateSingle ties a decoded reply to the call that was sent with id.
//
// A success reply must carry exactly that id. An error reply may carry a null
// (or no) id, which servers use when they could not read the request id; it
// is still reported as the call's ProtocolError. Any other id on an error
// reply belongs to some other request.
func correlateSingle(id uint64, decoded message.Decoded) (json.RawMessage, error) {
	switch decoded.Kind {
	case message.KindUndecodable:
		return nil, &ParseError{Err: decoded.Err}
	case message.KindProtocolError:
		env := decoded.Envelope
		if !isNullID(env.ID) {
			if err := matchID(id, env.ID); err != nil {
				return nil, err
			}
		}
		return nil, newProtocolError(env.Error)
	}

	env := decoded.Envelope
	if err := matchID(id, env.ID); err != nil {
		return nil, err
	}
	return env.Result, nil
}

// correlateBatch places the replies of a batch of size calls into submission
// order using the id to position map built when the batch was encoded.
//
// The reply order is never used. A reply naming an id outside positions, or a
// second reply for an id already answered, makes the whole batch
// unattributable. Positions left unanswered produce MissingResponsesError.
// Error replies for individual members are collected into a BatchError that is
// returned alongside the other results.
func correlateBatch(positions message.Positions, size int, decoded message.DecodedBatch) ([]json.RawMessage, error) {
	switch decoded.Kind {
	case message.KindUndecodable:
		return nil, &ParseError{Err: decoded.Err}
	case message.KindProtocolError:
		// The server rejected the batch as a whole.
		return nil, newProtocolError(decoded.Envelope.Error)
	}

	results := make([]json.RawMessage, size)
	answered := make([]bool, size)
	var failed map[int]*ProtocolError
	for i, env := range decoded.Envelopes {
		id, err := message.ParseID(env.ID)
		if err != nil {
			return nil, errors.Annotatef(unattributable(err), "batch reply %d", i)
		}
		pos, ok := positions[id]
		if !ok {
			return nil, errors.Annotatef(ErrUnattributableResponse, "batch reply %d: id %d was not sent", i, id)
		}
		if answered[pos] {
			return nil, errors.Annotatef(ErrUnattributableResponse, "batch reply %d: id %d answered twice", i, id)
		}
		answered[pos] = true
		if env.IsError() {
			if failed == nil {
				failed = make(map[int]*ProtocolError)
			}
			failed[pos] = newProtocolError(env.Error)
			continue
		}
		results[pos] = env.Result
	}

	var missing []int
	for pos, ok := range answered {
		if !ok {
			missing = append(missing, pos)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingResponsesError{Positions: slices.Clip(missing)}
	}
	if failed != nil {
		return results, &BatchError{Errors: failed}
	}
	return results, nil
}

func matchID(want uint64, raw json.RawMessage) error {
	got, err := message.ParseID(raw)
	if err != nil {
		return unattributable(err)
	}
	if got != want {
		return errors.Annotatef(ErrUnattributableResponse, "sent id %d, got id %d", want, got)
	}
	return nil
}

// unattributable keeps the ParseID cause in the message while making
// errors.Is match ErrUnattributableResponse.
func unattributable(cause error) error {
	return errors.Annotate(ErrUnattributableResponse, cause.Error())
}

func isNullID(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || string(raw) == "null"
}
