package live

import "github.com/recera/reflow/pkg/diag"

// MessageType names a live protocol message.
type MessageType string

const (
	// Client to server
	TypeDispatch MessageType = "dispatch"
	TypeSet      MessageType = "set"

	// Server to client
	TypeRender MessageType = "render"
	TypeError  MessageType = "error"
)

// Message is a client request.
type Message struct {
	Type   MessageType    `json:"type"`
	Target string         `json:"target,omitempty"`
	Event  string         `json:"event,omitempty"`
	Detail map[string]any `json:"detail,omitempty"`
	Values map[string]any `json:"values,omitempty"`
}

// Reply is what the server sends after every accepted message and once
// when a connection opens.
type Reply struct {
	Type    MessageType  `json:"type"`
	Seq     uint64       `json:"seq"`
	HTML    string       `json:"html,omitempty"`
	Errors  []Diagnostic `json:"errors,omitempty"`
	Message string       `json:"message,omitempty"`
}

// Diagnostic is the wire form of a diag.Error.
type Diagnostic struct {
	Kind    string `json:"kind"`
	Label   string `json:"label,omitempty"`
	Expr    string `json:"expr,omitempty"`
	Element string `json:"element,omitempty"`
	Message string `json:"message"`
}

func diagnostics(errs []*diag.Error) []Diagnostic {
	if len(errs) == 0 {
		return nil
	}
	out := make([]Diagnostic, len(errs))
	for i, e := range errs {
		d := Diagnostic{Kind: e.Kind.String(), Label: e.Label, Expr: e.Expr, Message: e.Kind.String() + " error"}
		if e.Element != nil {
			d.Element = diag.Describe(e.Element)
		}
		if e.Err != nil {
			d.Message = e.Err.Error()
		}
		out[i] = d
	}
	return out
}
