package directive

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/recera/reflow/pkg/diag"
	"github.com/recera/reflow/pkg/dom"
	"github.com/recera/reflow/pkg/expr"
	"github.com/recera/reflow/pkg/reactive"
	"github.com/recera/reflow/pkg/swap"
	"go.starlark.net/starlark"
	"golang.org/x/net/html"
)

var (
	eachAlias = regexp.MustCompile(`^\s*([\s\S]*?)\s+(?:in|of)\s+([\s\S]*?)\s*$`)
	ident     = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Loop is a parsed :each attribute.
type Loop struct {
	Item   string
	Index  string
	Source string
}

// ParseLoop parses "item[, index] in|of source". The binding may be
// wrapped in parentheses.
func ParseLoop(text string) (Loop, error) {
	m := eachAlias.FindStringSubmatch(text)
	if m == nil {
		return Loop{}, fmt.Errorf("expected \"item[, index] in source\", got %q", text)
	}
	binding := strings.TrimSpace(m[1])
	binding = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(binding, "("), ")"))
	l := Loop{Source: strings.TrimSpace(m[2])}
	item, index, hasIndex := strings.Cut(binding, ",")
	l.Item = strings.TrimSpace(item)
	if hasIndex {
		l.Index = strings.TrimSpace(index)
		if !ident.MatchString(l.Index) {
			return Loop{}, fmt.Errorf("bad index name %q", l.Index)
		}
	}
	if !ident.MatchString(l.Item) {
		return Loop{}, fmt.Errorf("bad item name %q", l.Item)
	}
	if l.Source == "" {
		return Loop{}, fmt.Errorf("missing source in %q", text)
	}
	return l, nil
}

// Pair is one normalized :each entry.
type Pair struct {
	Key  starlark.Value
	Item starlark.Value
}

// Normalize turns an :each source value into ordered pairs. None yields
// nothing; a non-negative int n yields (0, 1) ... (n-1, n); a mapping
// yields its (key, value) entries in insertion order; a sequence yields
// (position, element) with 1-based positions. Anything else is an error.
func Normalize(v starlark.Value) ([]Pair, error) {
	switch v := v.(type) {
	case nil, starlark.NoneType:
		return nil, nil
	case starlark.Int:
		n, ok := v.Int64()
		if !ok || n < 0 {
			return nil, fmt.Errorf("cannot iterate over %s", v)
		}
		out := make([]Pair, n)
		for i := range out {
			out[i] = Pair{Key: starlark.MakeInt(i), Item: starlark.MakeInt(i + 1)}
		}
		return out, nil
	case starlark.String, starlark.Bytes, starlark.Bool, starlark.Float:
		return nil, fmt.Errorf("cannot iterate over %s %s", v.Type(), v)
	case starlark.IterableMapping:
		items := v.Items()
		out := make([]Pair, len(items))
		for i, kv := range items {
			out[i] = Pair{Key: kv[0], Item: kv[1]}
		}
		return out, nil
	case starlark.Indexable:
		out := make([]Pair, v.Len())
		for i := range out {
			out[i] = Pair{Key: starlark.MakeInt(i + 1), Item: v.Index(i)}
		}
		return out, nil
	case starlark.Iterable:
		var out []Pair
		iter := v.Iterate()
		defer iter.Done()
		var x starlark.Value
		for iter.Next(&x) {
			out = append(out, Pair{Key: starlark.MakeInt(len(out) + 1), Item: x})
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot iterate over %s", v.Type())
}

type entry struct {
	el    *html.Node
	scope *reactive.Scope
	seen  int
}

type eachController struct {
	ctx    *Context
	tpl    *html.Node
	holder *html.Node
	loop   Loop
	ref    string
	source expr.Func
	text   string

	pool    *Pool
	entries map[*Token]*entry
	current []*html.Node
	gen     int
}

// Each sets up list rendering: el becomes a template that is stamped once
// per item of the source and replaced in the tree by a placeholder. Items
// keep their element and scope for as long as their identity recurs.
func Each(ctx *Context, el *html.Node, text string, s *reactive.Scope) Updater {
	ref, hasRef := dom.Attr(el, ":ref")
	dom.RemoveAttr(el, ":ref")

	loop, err := ParseLoop(text)
	if err != nil {
		ctx.report(diag.ConfigurationError, el, text, ":each", err)
		return nil
	}
	source, err := expr.Compile(el, loop.Source, ":each", ctx.Reporter)
	if err != nil {
		return nil
	}

	c := &eachController{
		ctx:     ctx,
		tpl:     el,
		holder:  dom.NewPlaceholder(),
		loop:    loop,
		source:  source,
		text:    text,
		pool:    NewPool(),
		entries: make(map[*Token]*entry),
	}
	if hasRef {
		c.ref = strings.TrimSpace(ref)
	}
	dom.ReplaceWith(el, c.holder)
	ctx.SetFragment(el, c)
	return c.update
}

func (c *eachController) Placeholder() *html.Node {
	return c.holder
}

func (c *eachController) Unmount() {
	for _, el := range c.current {
		dom.Remove(el)
	}
}

func (c *eachController) update(s *reactive.Scope) {
	c.gen++
	pairs, err := Normalize(c.source(s))
	if err != nil {
		c.ctx.report(diag.ConfigurationError, c.tpl, c.text, ":each", err)
		pairs = nil
	}

	items := make([]starlark.Value, len(pairs))
	for i, p := range pairs {
		items[i] = p.Item
	}
	tokens := c.pool.Tokens(items)

	next := make([]*html.Node, len(pairs))
	scopes := make([]*reactive.Scope, len(pairs))
	for i, p := range pairs {
		e := c.entries[tokens[i]]
		if e == nil {
			e = &entry{el: dom.Clone(c.tpl), scope: s.Child()}
			if c.ref != "" {
				e.scope.Define(c.ref, expr.ElementOf(e.el))
			}
			c.entries[tokens[i]] = e
		}
		e.scope.Define(c.loop.Item, p.Item)
		if c.loop.Index != "" {
			e.scope.Define(c.loop.Index, p.Key)
		}
		e.seen = c.gen
		next[i] = e.el
		scopes[i] = e.scope
	}

	ops := swap.Swap(c.holder, c.current, next)
	if c.ctx.Logger != nil && len(ops) > 0 {
		inserts, moves, removes := swap.Count(ops)
		c.ctx.Logger.Debug("each swap", "source", c.loop.Source, "items", len(next),
			"inserts", inserts, "moves", moves, "removes", removes)
	}
	c.current = next

	for i, el := range next {
		c.ctx.Init(el, scopes[i])
	}
	c.purge()
}

// purge drops entries whose identity has been absent for the retention
// window.
func (c *eachController) purge() {
	retain := c.ctx.retain()
	if retain < 0 {
		return
	}
	for tok, e := range c.entries {
		if e.seen == c.gen || c.gen-e.seen < retain {
			continue
		}
		delete(c.entries, tok)
		c.pool.Release(tok)
		c.ctx.Forget(e.el)
		dom.Remove(e.el)
	}
}

// Len returns the number of cached items, present or not.
func (c *eachController) Len() int {
	return len(c.entries)
}
