package dom

import (
	"golang.org/x/net/html"
)

// Event is what listeners receive.
type Event struct {
	Type    string
	Target  *html.Node
	Current *html.Node
	Detail  map[string]any

	stopped bool
}

// NewEvent returns a bubbling event of the given type aimed at target.
func NewEvent(typ string, target *html.Node) *Event {
	return &Event{Type: typ, Target: target}
}

// StopPropagation prevents the event from reaching ancestors.
func (e *Event) StopPropagation() {
	e.stopped = true
}

// Listener handles an event.
type Listener func(e *Event)

type listener struct {
	fn      Listener
	removed bool
}

// Document owns a tree and the listeners attached to its nodes. It is not
// safe for concurrent use; callers serialize access the same way they
// serialize tree mutation.
type Document struct {
	Root *html.Node

	listeners map[*html.Node]map[string][]*listener
}

// NewDocument wraps root.
func NewDocument(root *html.Node) *Document {
	return &Document{
		Root:      root,
		listeners: make(map[*html.Node]map[string][]*listener),
	}
}

// AddEventListener attaches fn to events of type typ on n and returns the
// function that detaches it again.
func (d *Document) AddEventListener(n *html.Node, typ string, fn Listener) (remove func()) {
	l := &listener{fn: fn}
	byType := d.listeners[n]
	if byType == nil {
		byType = make(map[string][]*listener)
		d.listeners[n] = byType
	}
	byType[typ] = append(byType[typ], l)

	return func() {
		if l.removed {
			return
		}
		l.removed = true
		list := d.listeners[n][typ]
		for i, x := range list {
			if x == l {
				list = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(list) == 0 {
			delete(d.listeners[n], typ)
			if len(d.listeners[n]) == 0 {
				delete(d.listeners, n)
			}
			return
		}
		d.listeners[n][typ] = list
	}
}

// RemoveListeners detaches every listener on n.
func (d *Document) RemoveListeners(n *html.Node) {
	for _, list := range d.listeners[n] {
		for _, l := range list {
			l.removed = true
		}
	}
	delete(d.listeners, n)
}

// ListenerCount returns how many listeners of type typ are attached to n.
func (d *Document) ListenerCount(n *html.Node, typ string) int {
	return len(d.listeners[n][typ])
}

// EventTypes returns the event types that have listeners on n.
func (d *Document) EventTypes(n *html.Node) []string {
	var out []string
	for typ := range d.listeners[n] {
		out = append(out, typ)
	}
	return out
}

// Dispatch delivers e to its target and then to each ancestor until a
// listener stops propagation. Listeners added during dispatch do not see
// the current event; listeners removed during dispatch are skipped. It
// returns the number of listeners invoked.
func (d *Document) Dispatch(e *Event) int {
	count := 0
	for n := e.Target; n != nil && !e.stopped; n = n.Parent {
		list := d.listeners[n][e.Type]
		if len(list) == 0 {
			continue
		}
		snapshot := make([]*listener, len(list))
		copy(snapshot, list)
		e.Current = n
		for _, l := range snapshot {
			if l.removed {
				continue
			}
			l.fn(e)
			count++
		}
	}
	e.Current = nil
	return count
}
