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

// setAttr applies a value to an attribute: None and False remove it, True
// sets it empty, strings and numbers set their text, anything else sets
// it empty.
func setAttr(el *html.Node, name string, v starlark.Value) {
	switch v := v.(type) {
	case nil, starlark.NoneType:
		dom.RemoveAttr(el, name)
	case starlark.Bool:
		if v {
			dom.SetAttr(el, name, "")
		} else {
			dom.RemoveAttr(el, name)
		}
	case starlark.String, starlark.Int, starlark.Float:
		dom.SetAttr(el, name, expr.Text(v))
	default:
		dom.SetAttr(el, name, "")
	}
}

// entries returns the key/value pairs of a mapping value, or reports and
// returns false.
func entries(ctx *Context, el *html.Node, text, label string, v starlark.Value) ([]starlark.Tuple, bool) {
	switch v := v.(type) {
	case nil, starlark.NoneType:
		return nil, true
	case starlark.IterableMapping:
		return v.Items(), true
	}
	ctx.report(diag.ConfigurationError, el, text, label, fmt.Errorf("want a mapping, got %s", v.Type()))
	return nil, false
}

// Attribute is the fallback for unknown names: :title="t" sets title.
func Attribute(ctx *Context, el *html.Node, name, text string, s *reactive.Scope) Updater {
	fn, err := expr.Compile(el, text, Prefix+name, ctx.Reporter)
	if err != nil {
		return nil
	}
	return func(s *reactive.Scope) {
		setAttr(el, name, fn(s))
	}
}

// Any is the default fallback: :on<event> is shorthand for
// :on="{'<event>': expr}", any other name sets the attribute.
func Any(ctx *Context, el *html.Node, name, text string, s *reactive.Scope) Updater {
	if evt, ok := strings.CutPrefix(name, "on"); ok && evt != "" {
		return on(ctx, el, fmt.Sprintf("{%q: %s}", evt, text), Prefix+name)
	}
	return Attribute(ctx, el, name, text, s)
}

// Bag sets several attributes from a mapping: :="{'ariaLabel': x}".
// camelCase keys become dash-case.
func Bag(ctx *Context, el *html.Node, text string, s *reactive.Scope) Updater {
	fn, err := expr.Compile(el, text, Prefix, ctx.Reporter)
	if err != nil {
		return nil
	}
	return func(s *reactive.Scope) {
		items, _ := entries(ctx, el, text, Prefix, fn(s))
		for _, kv := range items {
			setAttr(el, dom.Dashcase(expr.Text(kv[0])), kv[1])
		}
	}
}

// Ref binds el under the given name in the scope it is initialized in.
func Ref(ctx *Context, el *html.Node, text string, s *reactive.Scope) Updater {
	name := strings.TrimSpace(text)
	if !ident.MatchString(name) {
		ctx.report(diag.ConfigurationError, el, text, ":ref", fmt.Errorf("bad ref name %q", name))
		return nil
	}
	s.Define(name, expr.ElementOf(el))
	return nil
}

// ID sets the id from any truthy value or zero; other values remove it.
func ID(ctx *Context, el *html.Node, text string, s *reactive.Scope) Updater {
	fn, err := expr.Compile(el, text, ":id", ctx.Reporter)
	if err != nil {
		return nil
	}
	return func(s *reactive.Scope) {
		v := fn(s)
		if expr.Truthy(v) || isZero(v) {
			dom.SetAttr(el, "id", expr.Text(v))
			return
		}
		dom.RemoveAttr(el, "id")
	}
}

func isZero(v starlark.Value) bool {
	switch v := v.(type) {
	case starlark.Int:
		return v.Sign() == 0
	case starlark.Float:
		return v == 0
	}
	return false
}

// Class appends to the element's initial classes: a string is added as
// is, a list adds its truthy members, a mapping adds the keys whose values
// are truthy.
func Class(ctx *Context, el *html.Node, text string, s *reactive.Scope) Updater {
	fn, err := expr.Compile(el, text, ":class", ctx.Reporter)
	if err != nil {
		return nil
	}
	initial, _ := dom.Attr(el, "class")
	return func(s *reactive.Scope) {
		classes := strings.Fields(initial)
		switch v := fn(s).(type) {
		case nil, starlark.NoneType:
		case starlark.String:
			classes = append(classes, strings.Fields(string(v))...)
		case starlark.IterableMapping:
			for _, kv := range v.Items() {
				if expr.Truthy(kv[1]) {
					classes = append(classes, expr.Text(kv[0]))
				}
			}
		case starlark.Iterable:
			iter := v.Iterate()
			var x starlark.Value
			for iter.Next(&x) {
				if expr.Truthy(x) {
					classes = append(classes, expr.Text(x))
				}
			}
			iter.Done()
		default:
			ctx.report(diag.ConfigurationError, el, text, ":class", fmt.Errorf("want a string, list or mapping, got %s", v.Type()))
		}
		if len(classes) == 0 {
			dom.RemoveAttr(el, "class")
			return
		}
		dom.SetAttr(el, "class", strings.Join(classes, " "))
	}
}

// Style extends the initial inline style: a string is appended, a mapping
// sets individual properties (camelCase names become dash-case, None
// removes).
func Style(ctx *Context, el *html.Node, text string, s *reactive.Scope) Updater {
	fn, err := expr.Compile(el, text, ":style", ctx.Reporter)
	if err != nil {
		return nil
	}
	initial, _ := dom.Attr(el, "style")
	initial = strings.TrimSpace(initial)
	if initial != "" && !strings.HasSuffix(initial, ";") {
		initial += ";"
	}
	return func(s *reactive.Scope) {
		v := fn(s)
		if str, ok := v.(starlark.String); ok {
			out := strings.TrimSpace(initial + " " + string(str))
			if out == "" {
				dom.RemoveAttr(el, "style")
			} else {
				dom.SetAttr(el, "style", out)
			}
			return
		}
		if initial == "" {
			dom.RemoveAttr(el, "style")
		} else {
			dom.SetAttr(el, "style", initial)
		}
		items, _ := entries(ctx, el, text, ":style", v)
		for _, kv := range items {
			dom.SetStyle(el, dom.Dashcase(expr.Text(kv[0])), expr.Text(kv[1]))
		}
	}
}

// Text replaces the element's content with the value's text.
func Text(ctx *Context, el *html.Node, text string, s *reactive.Scope) Updater {
	fn, err := expr.Compile(el, text, ":text", ctx.Reporter)
	if err != nil {
		return nil
	}
	return func(s *reactive.Scope) {
		dom.SetText(el, expr.Text(fn(s)))
	}
}

// Value sets the state of a form control: the value of text inputs and
// textareas, the checked state of checkboxes and radios, the selected
// option of selects.
func Value(ctx *Context, el *html.Node, text string, s *reactive.Scope) Updater {
	fn, err := expr.Compile(el, text, ":value", ctx.Reporter)
	if err != nil {
		return nil
	}
	return func(s *reactive.Scope) {
		v := fn(s)
		switch dom.InputType(el) {
		case "checkbox", "radio":
			dom.SetChecked(el, expr.Truthy(v))
		default:
			dom.SetValue(el, expr.Text(v))
		}
	}
}

// Data sets data-* attributes from a mapping with camelCase keys.
func Data(ctx *Context, el *html.Node, text string, s *reactive.Scope) Updater {
	fn, err := expr.Compile(el, text, ":data", ctx.Reporter)
	if err != nil {
		return nil
	}
	return func(s *reactive.Scope) {
		items, _ := entries(ctx, el, text, ":data", fn(s))
		for _, kv := range items {
			dom.SetData(el, expr.Text(kv[0]), expr.Text(kv[1]))
		}
	}
}

// Aria sets aria-* attributes from a mapping; None removes one.
func Aria(ctx *Context, el *html.Node, text string, s *reactive.Scope) Updater {
	fn, err := expr.Compile(el, text, ":aria", ctx.Reporter)
	if err != nil {
		return nil
	}
	return func(s *reactive.Scope) {
		items, _ := entries(ctx, el, text, ":aria", fn(s))
		for _, kv := range items {
			name := "aria-" + dom.Dashcase(expr.Text(kv[0]))
			if kv[1] == starlark.None {
				dom.RemoveAttr(el, name)
				continue
			}
			dom.SetAttr(el, name, expr.Text(kv[1]))
		}
	}
}
