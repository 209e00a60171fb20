package live

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/recera/reflow/internal/session"
)

var (
	// ErrUnknownType is returned for a message whose type is not a request.
	ErrUnknownType = errors.New("unknown message type")
	// ErrMalformed is returned for a request missing a required field.
	ErrMalformed = errors.New("malformed message")
)

// DecodeMessage parses a client frame into the session action it asks for.
func DecodeMessage(data []byte) (session.Action, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return session.Action{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch m.Type {
	case TypeDispatch:
		if m.Target == "" || m.Event == "" {
			return session.Action{}, fmt.Errorf("%w: dispatch needs a target and an event", ErrMalformed)
		}
		return session.Action{Dispatch: &session.Dispatch{Target: m.Target, Event: m.Event, Detail: m.Detail}}, nil
	case TypeSet:
		if len(m.Values) == 0 {
			return session.Action{}, fmt.Errorf("%w: set needs values", ErrMalformed)
		}
		return session.Action{Set: m.Values}, nil
	}
	return session.Action{}, fmt.Errorf("%w %q", ErrUnknownType, m.Type)
}

// EncodeReply serializes a server frame.
func EncodeReply(r Reply) ([]byte, error) {
	return json.Marshal(r)
}
