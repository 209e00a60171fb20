// Package directive binds directive attributes to live expressions.
//
// A directive is an attribute whose name starts with a colon. During
// initialization every such attribute is removed from its element and
// handed to the factory registered for its name, which performs any one-off
// setup and returns an Updater. Updaters run once right away and again each
// time the owning runtime flushes.
package directive

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/recera/reflow/pkg/diag"
	"github.com/recera/reflow/pkg/dom"
	"github.com/recera/reflow/pkg/reactive"
	"golang.org/x/net/html"
)

// Prefix marks directive attributes.
const Prefix = ":"

// Updater recomputes a directive's output from s.
type Updater func(s *reactive.Scope)

// Factory sets up a directive on el. text is the attribute value and s
// the scope the element is initialized in. A nil Updater leaves the
// directive inert.
type Factory func(ctx *Context, el *html.Node, text string, s *reactive.Scope) Updater

// Fallback handles directive names that have no registered factory.
type Fallback func(ctx *Context, el *html.Node, name, text string, s *reactive.Scope) Updater

// Registry maps directive names, without the prefix, to factories.
type Registry struct {
	factories map[string]Factory
	fallback  Fallback
}

// NewRegistry returns an empty registry whose fallback sets the attribute
// of the same name.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		fallback:  Attribute,
	}
}

// Default returns a registry holding every built-in directive.
func Default() *Registry {
	r := NewRegistry()
	r.Register("", Bag)
	r.Register("if", If)
	r.Register("each", Each)
	r.Register("on", On)
	r.Register("ref", Ref)
	r.Register("id", ID)
	r.Register("class", Class)
	r.Register("style", Style)
	r.Register("text", Text)
	r.Register("value", Value)
	r.Register("data", Data)
	r.Register("aria", Aria)
	r.SetFallback(Any)
	return r
}

// Register installs f under name, replacing any previous factory.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// SetFallback replaces the factory used for unregistered names.
func (r *Registry) SetFallback(f Fallback) {
	r.fallback = f
}

// Lookup returns the factory for name, falling back to the registry's
// fallback bound to name.
func (r *Registry) Lookup(name string) Factory {
	if f, ok := r.factories[name]; ok {
		return f
	}
	fb := r.fallback
	return func(ctx *Context, el *html.Node, text string, s *reactive.Scope) Updater {
		return fb(ctx, el, name, text, s)
	}
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fragment is a directive that stands in the tree through a placeholder
// rather than through its own element. Controllers that mount a fragment's
// element mount its placeholder instead.
type Fragment interface {
	Placeholder() *html.Node
	Unmount()
}

// Context is the state shared by every directive of one mounted tree. It
// is not safe for concurrent use.
type Context struct {
	Doc      *dom.Document
	Registry *Registry
	Reporter diag.Reporter
	Logger   *slog.Logger

	// Retain is how many consecutive updates an :each item may be absent
	// before its element and scope are dropped. Zero means 2; a negative
	// value keeps them for the life of the controller.
	Retain int

	bound     map[*html.Node]*binding
	fragments map[*html.Node]Fragment
	stack     []*binding
}

// NewContext returns a context over doc using the default registry.
// Failures go to rep.
func NewContext(doc *dom.Document, rep diag.Reporter) *Context {
	return &Context{
		Doc:       doc,
		Registry:  Default(),
		Reporter:  rep,
		Logger:    slog.Default(),
		bound:     make(map[*html.Node]*binding),
		fragments: make(map[*html.Node]Fragment),
	}
}

func (c *Context) report(kind diag.Kind, el *html.Node, text, label string, err error) {
	if c.Reporter != nil {
		c.Reporter.Report(diag.New(kind, el, text, label, err))
	}
}

func (c *Context) retain() int {
	if c.Retain == 0 {
		return 2
	}
	return c.Retain
}

// SetFragment records that el is represented in the tree by f.
func (c *Context) SetFragment(el *html.Node, f Fragment) {
	c.fragments[el] = f
}

// mounted returns the node that stands in the tree for n.
func (c *Context) mounted(n *html.Node) *html.Node {
	if f, ok := c.fragments[n]; ok {
		return f.Placeholder()
	}
	return n
}

func (c *Context) unmount(n *html.Node) {
	if f, ok := c.fragments[n]; ok {
		f.Unmount()
	}
}

func isDirective(key string) bool {
	return strings.HasPrefix(key, Prefix)
}
