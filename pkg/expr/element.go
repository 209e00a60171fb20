package expr

import (
	"fmt"

	"github.com/recera/reflow/pkg/dom"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
	"golang.org/x/net/html"
)

// Element exposes a document element to expressions. Two Elements for the
// same node compare equal and hash alike.
type Element struct {
	node *html.Node
}

var (
	_ starlark.HasAttrs   = (*Element)(nil)
	_ starlark.Comparable = (*Element)(nil)
)

// ElementOf wraps n. A nil node yields None.
func ElementOf(n *html.Node) starlark.Value {
	if n == nil {
		return starlark.None
	}
	return &Element{node: n}
}

// Node returns the wrapped node.
func (e *Element) Node() *html.Node { return e.node }

func (e *Element) String() string       { return fmt.Sprintf("<element %s>", e.node.Data) }
func (e *Element) Type() string         { return "element" }
func (e *Element) Freeze()              {}
func (e *Element) Truth() starlark.Bool { return true }

func (e *Element) Hash() (uint32, error) {
	return starlark.String(fmt.Sprintf("%p", e.node)).Hash()
}

func (e *Element) CompareSameType(op syntax.Token, y starlark.Value, depth int) (bool, error) {
	other := y.(*Element)
	switch op {
	case syntax.EQL:
		return e.node == other.node, nil
	case syntax.NEQ:
		return e.node != other.node, nil
	}
	return false, fmt.Errorf("%s %s %s not implemented", e.Type(), op, y.Type())
}

var elementAttrs = []string{"attr", "checked", "id", "tag", "text", "value"}

func (e *Element) Attr(name string) (starlark.Value, error) {
	n := e.node
	switch name {
	case "tag":
		return starlark.String(n.Data), nil
	case "id":
		id, _ := dom.Attr(n, "id")
		return starlark.String(id), nil
	case "text":
		return starlark.String(dom.Text(n)), nil
	case "value":
		return starlark.String(dom.Value(n)), nil
	case "checked":
		return starlark.Bool(dom.Checked(n)), nil
	case "attr":
		return starlark.NewBuiltin("attr", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var key string
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &key); err != nil {
				return nil, err
			}
			v, ok := dom.Attr(n, key)
			if !ok {
				return starlark.None, nil
			}
			return starlark.String(v), nil
		}), nil
	}
	return nil, nil
}

func (e *Element) AttrNames() []string {
	return elementAttrs
}
