package directive

import (
	"errors"
	"fmt"
	"strings"

	"github.com/recera/reflow/pkg/diag"
	"github.com/recera/reflow/pkg/dom"
	"github.com/recera/reflow/pkg/expr"
	"github.com/recera/reflow/pkg/reactive"
	"golang.org/x/net/html"
)

// binding is the set of updaters found under one initialized node.
type binding struct {
	root     *html.Node
	steps    []step
	children []*binding
	parent   *binding
}

type step struct {
	node   *html.Node
	label  string
	update Updater
}

// Init runs the initialization pass over n in scope s. The first call for
// a node discovers its directives, sets them up and runs their updaters.
// Later calls for the same node only run the updaters again, so it is safe
// to call Init on every update.
func (c *Context) Init(n *html.Node, s *reactive.Scope) {
	b, ok := c.bound[n]
	if !ok {
		b = &binding{root: n}
		if len(c.stack) > 0 {
			b.parent = c.stack[len(c.stack)-1]
			b.parent.children = append(b.parent.children, b)
		}
		c.bound[n] = b
		switch n.Type {
		case html.DocumentNode:
			c.walkChildren(b, n, s)
		default:
			c.walk(b, n, s)
		}
	}
	c.run(b, s)
}

// Bound reports whether n has been initialized.
func (c *Context) Bound(n *html.Node) bool {
	_, ok := c.bound[n]
	return ok
}

// Bindings returns how many initialized nodes the context tracks.
func (c *Context) Bindings() int {
	return len(c.bound)
}

// Forget drops the bindings made by initializing n, and the bindings
// nested under them, and detaches their event listeners.
func (c *Context) Forget(n *html.Node) {
	b, ok := c.bound[n]
	if !ok {
		return
	}
	if b.parent != nil {
		kids := b.parent.children
		for i, k := range kids {
			if k == b {
				b.parent.children = append(kids[:i:i], kids[i+1:]...)
				break
			}
		}
	}
	c.forget(b)
}

func (c *Context) forget(b *binding) {
	delete(c.bound, b.root)
	delete(c.fragments, b.root)
	for _, st := range b.steps {
		c.Doc.RemoveListeners(st.node)
		delete(c.fragments, st.node)
	}
	for _, k := range b.children {
		c.forget(k)
	}
}

func (c *Context) run(b *binding, s *reactive.Scope) {
	c.stack = append(c.stack, b)
	defer func() { c.stack = c.stack[:len(c.stack)-1] }()
	for _, st := range b.steps {
		c.runStep(st, s)
	}
}

func (c *Context) runStep(st step, s *reactive.Scope) {
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			c.report(diag.EvaluationError, st.node, "", st.label, fmt.Errorf("panic: %w", err))
		}
	}()
	st.update(s)
}

func (c *Context) walkChildren(b *binding, parent *html.Node, s *reactive.Scope) {
	if parent.Type == html.ElementNode && (parent.Data == "script" || parent.Data == "style") {
		return
	}
	for child := parent.FirstChild; child != nil; {
		prev := child.PrevSibling
		c.walk(b, child, s)
		// A directive may have replaced child; continue after whatever now
		// holds its position.
		at := parent.FirstChild
		if prev != nil {
			if prev.Parent != parent {
				return
			}
			at = prev.NextSibling
		}
		if at == nil {
			return
		}
		child = at.NextSibling
	}
}

func (c *Context) walk(b *binding, n *html.Node, s *reactive.Scope) {
	switch n.Type {
	case html.TextNode:
		if u := c.interpolate(n); u != nil {
			b.steps = append(b.steps, step{node: n, label: interpolationLabel, update: u})
		}
		return
	case html.ElementNode:
	default:
		return
	}

	if text, ok := dom.Attr(n, ":if"); ok && !dom.HasAttr(n, ":else") {
		dom.RemoveAttr(n, ":if")
		c.add(b, n, ":if", c.Registry.Lookup("if")(c, n, text, s))
		return
	}
	if text, ok := dom.Attr(n, ":else"); ok {
		dom.RemoveAttr(n, ":else")
		dom.RemoveAttr(n, ":if")
		c.report(diag.ConfigurationError, n, text, ":else", errors.New(":else without a preceding :if"))
	}
	if text, ok := dom.Attr(n, ":each"); ok {
		dom.RemoveAttr(n, ":each")
		c.add(b, n, ":each", c.Registry.Lookup("each")(c, n, text, s))
		return
	}

	var attrs []html.Attribute
	for _, a := range n.Attr {
		if a.Namespace == "" && isDirective(a.Key) {
			attrs = append(attrs, a)
		}
	}
	for _, a := range attrs {
		dom.RemoveAttr(n, a.Key)
		name := strings.TrimPrefix(a.Key, Prefix)
		c.add(b, n, a.Key, c.Registry.Lookup(name)(c, n, a.Val, s))
	}
	c.walkChildren(b, n, s)
}

func (c *Context) add(b *binding, n *html.Node, label string, u Updater) {
	if u != nil {
		b.steps = append(b.steps, step{node: n, label: label, update: u})
	}
}

const interpolationLabel = "{{}}"

// interpolate binds a text node containing {{ expr }} segments.
func (c *Context) interpolate(n *html.Node) Updater {
	if n.Parent != nil && n.Parent.Type == html.ElementNode && (n.Parent.Data == "script" || n.Parent.Data == "style") {
		return nil
	}
	parts, ok := splitInterpolation(n.Data)
	if !ok {
		return nil
	}
	type part struct {
		lit string
		fn  expr.Func
	}
	compiled := make([]part, len(parts))
	for i, p := range parts {
		if !p.expr {
			compiled[i] = part{lit: p.text}
			continue
		}
		fn, _ := expr.Compile(n, p.text, interpolationLabel, c.Reporter)
		compiled[i] = part{fn: fn}
	}
	return func(s *reactive.Scope) {
		var sb strings.Builder
		for _, p := range compiled {
			if p.fn == nil {
				sb.WriteString(p.lit)
				continue
			}
			sb.WriteString(expr.Text(p.fn(s)))
		}
		n.Data = sb.String()
	}
}

type segment struct {
	text string
	expr bool
}

// splitInterpolation cuts s into literal and {{ expression }} segments. It
// reports false when s has no complete expression segment.
func splitInterpolation(s string) ([]segment, bool) {
	var out []segment
	found := false
	for {
		start := strings.Index(s, "{{")
		if start < 0 {
			break
		}
		end := strings.Index(s[start+2:], "}}")
		if end < 0 {
			break
		}
		if start > 0 {
			out = append(out, segment{text: s[:start]})
		}
		if text := strings.TrimSpace(s[start+2 : start+2+end]); text != "" {
			out = append(out, segment{text: text, expr: true})
			found = true
		} else {
			out = append(out, segment{text: s[start : start+2+end+2]})
		}
		s = s[start+2+end+2:]
	}
	if s != "" {
		out = append(out, segment{text: s})
	}
	return out, found
}
