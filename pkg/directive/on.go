package directive

import (
	"fmt"
	"strings"

	"github.com/recera/reflow/pkg/diag"
	"github.com/recera/reflow/pkg/dom"
	"github.com/recera/reflow/pkg/expr"
	"github.com/recera/reflow/pkg/reactive"
	"go.starlark.net/starlark"
	"golang.org/x/net/html"
)

// SequenceSeparator joins the event names of a handler chain.
const SequenceSeparator = "--"

// On binds event handlers. The expression yields a mapping from event name
// to handler. A name like "mousedown--mouseup" is a chain: the handler
// runs on the first event, and if it returns a function that function
// handles the next event, and so on; the chain starts over when it runs
// out or a step returns something that is not a function.
//
// Every update detaches all listeners and attaches the new mapping. A
// chain whose name is still in the new mapping keeps its progress: if it
// was waiting on its second event it keeps waiting on that event with the
// function the previous step returned, instead of rearming the first
// event. Any state write re-runs the binding, so rearming would reset a
// chain whenever unrelated state changed. A chain missing from a mapping
// loses its progress and starts over when it comes back.
func On(ctx *Context, el *html.Node, text string, s *reactive.Scope) Updater {
	return on(ctx, el, text, ":on")
}

func on(ctx *Context, el *html.Node, text, label string) Updater {
	fn, err := expr.Compile(el, text, label, ctx.Reporter)
	if err != nil {
		return nil
	}
	var removes []func()
	chains := make(map[string]*sequence)

	return func(s *reactive.Scope) {
		for _, remove := range removes {
			remove()
		}
		removes = nil

		v := fn(s)
		if v == starlark.None {
			chains = make(map[string]*sequence)
			return
		}
		m, ok := v.(starlark.IterableMapping)
		if !ok {
			ctx.report(diag.ConfigurationError, el, text, label,
				fmt.Errorf("want a mapping of event names to handlers, got %s", v.Type()))
			return
		}

		next := make(map[string]*sequence)
		for _, kv := range m.Items() {
			name, ok := starlark.AsString(kv[0])
			if !ok || name == "" {
				ctx.report(diag.ConfigurationError, el, text, label,
					fmt.Errorf("event name must be a non-empty string, got %s", kv[0]))
				continue
			}
			handler := kv[1]
			if handler == starlark.None {
				continue
			}
			if !expr.Callable(handler) {
				ctx.report(diag.EvaluationError, el, text, label,
					fmt.Errorf("handler for %q is not callable: %s", name, handler.Type()))
				continue
			}

			events := strings.Split(name, SequenceSeparator)
			if len(events) == 1 {
				removes = append(removes, ctx.Doc.AddEventListener(el, name, ctx.listener(el, text, label, handler)))
				continue
			}

			q := &sequence{ctx: ctx, el: el, text: text, label: label, events: events, start: handler, current: handler}
			if prev := chains[name]; prev != nil && prev.step > 0 {
				q.step, q.current = prev.step, prev.current
			}
			q.arm()
			next[name] = q
			removes = append(removes, q.disarm)
		}
		chains = next
	}
}

// EventValue converts a dispatched event for handlers.
func EventValue(e *dom.Event) starlark.Value {
	r := expr.NewRecord()
	r.Put("type", starlark.String(e.Type))
	r.Put("target", expr.ElementOf(e.Target))
	r.Put("current", expr.ElementOf(e.Current))
	detail, err := expr.ToValue(e.Detail)
	if err != nil {
		detail = starlark.None
	}
	r.Put("detail", detail)
	return r
}

func (c *Context) listener(el *html.Node, text, label string, handler starlark.Value) dom.Listener {
	return func(e *dom.Event) {
		if _, err := expr.Call(handler, EventValue(e)); err != nil {
			c.report(diag.EvaluationError, el, text, label, err)
		}
	}
}

// sequence is the state of one handler chain: which event it is waiting
// for and which handler will receive it.
type sequence struct {
	ctx   *Context
	el    *html.Node
	text  string
	label string

	events  []string
	step    int
	start   starlark.Value
	current starlark.Value
	remove  func()
}

// arm listens for the event of the current step.
func (q *sequence) arm() {
	q.remove = q.ctx.Doc.AddEventListener(q.el, q.events[q.step], q.fire)
}

func (q *sequence) disarm() {
	if q.remove != nil {
		q.remove()
		q.remove = nil
	}
}

func (q *sequence) reset() {
	q.step = 0
	q.current = q.start
}

// fire runs the current step and moves to the next one, or back to the
// start.
func (q *sequence) fire(e *dom.Event) {
	q.disarm()
	next, err := expr.Call(q.current, EventValue(e))
	switch {
	case err != nil:
		q.ctx.report(diag.EvaluationError, q.el, q.text, q.label, err)
		q.reset()
	case expr.Callable(next) && q.step+1 < len(q.events):
		q.step++
		q.current = next
	default:
		q.reset()
	}
	q.arm()
}
