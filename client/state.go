package client

import "github.com/juju/errors"

// State is where a call ended up. It is only used for logging.
//
//	Created → Sent → Succeeded | ProtocolFailed | TransportFailed | Unattributable | ParseFailed
type State int

const (
	StateCreated State = iota
	StateSent
	StateSucceeded
	StateProtocolFailed
	StateTransportFailed
	StateUnattributable
	StateParseFailed
)

var stateNames = [...]string{
	StateCreated:         "created",
	StateSent:            "sent",
	StateSucceeded:       "succeeded",
	StateProtocolFailed:  "protocol-error",
	StateTransportFailed: "transport-error",
	StateUnattributable:  "unattributable",
	StateParseFailed:     "parse-error",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// finalState maps the error returned for a call to its terminal state.
func finalState(err error) State {
	var batchErr *BatchError
	switch {
	case err == nil:
		return StateSucceeded
	case IsTransport(err):
		return StateTransportFailed
	case IsParse(err):
		return StateParseFailed
	case IsUnattributable(err), errors.Is(err, ErrMissingResponse):
		return StateUnattributable
	case IsProtocol(err), errors.As(err, &batchErr):
		return StateProtocolFailed
	}
	return StateSent
}
