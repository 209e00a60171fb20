package directive

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/recera/reflow/pkg/diag"
	"github.com/recera/reflow/pkg/dom"
	"github.com/recera/reflow/pkg/expr"
	"github.com/recera/reflow/pkg/reactive"
	"golang.org/x/net/html"
)

type fixture struct {
	t     *testing.T
	root  *html.Node
	ctx   *Context
	scope *reactive.Scope
	errs  *diag.List
	log   *bytes.Buffer
}

// mount parses markup, seeds a scope from alternating name/value pairs
// and initializes the tree.
func mount(t *testing.T, markup string, state ...any) *fixture {
	t.Helper()
	f := setup(t, markup, state...)
	f.flush()
	return f
}

func setup(t *testing.T, markup string, state ...any) *fixture {
	t.Helper()
	root, err := dom.ParseString(markup)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	f := &fixture{t: t, root: root, scope: reactive.NewScope(), errs: &diag.List{}, log: &bytes.Buffer{}}
	for i := 0; i+1 < len(state); i += 2 {
		f.scope.Define(state[i].(string), expr.MustValue(state[i+1]))
	}
	f.ctx = NewContext(dom.NewDocument(root), f.errs)
	f.ctx.Logger = slog.New(slog.NewTextHandler(f.log, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return f
}

func (f *fixture) flush() {
	f.ctx.Init(f.root, f.scope)
}

func (f *fixture) set(name string, v any) {
	f.scope.Set(name, expr.MustValue(v))
	f.flush()
}

func (f *fixture) query(sel string) *html.Node {
	f.t.Helper()
	n, err := dom.Query(f.root, sel)
	if err != nil {
		f.t.Fatalf("query %q: %v", sel, err)
	}
	return n
}

func (f *fixture) queryAll(sel string) []*html.Node {
	f.t.Helper()
	ns, err := dom.QueryAll(f.root, sel)
	if err != nil {
		f.t.Fatalf("query %q: %v", sel, err)
	}
	return ns
}

func (f *fixture) fire(n *html.Node, typ string) {
	f.ctx.Doc.Dispatch(dom.NewEvent(typ, n))
}

// render returns the live tree without placeholders.
func (f *fixture) render() string {
	var buf bytes.Buffer
	for c := f.root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			f.t.Fatalf("render: %v", err)
		}
	}
	return strings.ReplaceAll(buf.String(), "<!---->", "")
}

func (f *fixture) drain() []*diag.Error {
	return f.errs.Drain()
}

func (f *fixture) expectNoErrors() {
	f.t.Helper()
	for _, e := range f.drain() {
		f.t.Errorf("unexpected error: %v", e)
	}
}
