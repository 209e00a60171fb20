package directive

import (
	"errors"

	"github.com/recera/reflow/pkg/diag"
	"github.com/recera/reflow/pkg/dom"
	"github.com/recera/reflow/pkg/expr"
	"github.com/recera/reflow/pkg/reactive"
	"go.starlark.net/starlark"
	"golang.org/x/net/html"
)

type clause struct {
	cond expr.Func // nil for a bare :else
	node *html.Node
}

// If sets up a conditional chain: el and the contiguous :else siblings that
// follow it. The chain is replaced by a placeholder and at most one of its
// elements is mounted at a time, the first whose condition holds.
func If(ctx *Context, el *html.Node, text string, s *reactive.Scope) Updater {
	var chain []*html.Node
	for cur := dom.NextElementSibling(el); cur != nil && dom.HasAttr(cur, ":else"); cur = dom.NextElementSibling(cur) {
		chain = append(chain, cur)
	}
	inert := func() Updater {
		for _, n := range chain {
			dom.RemoveAttr(n, ":else")
			dom.RemoveAttr(n, ":if")
		}
		return nil
	}

	cond, err := expr.Compile(el, text, ":if", ctx.Reporter)
	if err != nil {
		return inert()
	}
	for i, cur := range chain {
		if i < len(chain)-1 && !dom.HasAttr(cur, ":if") {
			ctx.report(diag.ConfigurationError, cur, "", ":else", errors.New(":else without a condition must be the last clause"))
			return inert()
		}
	}

	clauses := []clause{{cond: cond, node: el}}
	for _, cur := range chain {
		dom.RemoveAttr(cur, ":else")
		dom.Remove(cur)
		c := clause{node: cur}
		if text, ok := dom.Attr(cur, ":if"); ok {
			dom.RemoveAttr(cur, ":if")
			fn, err := expr.Compile(cur, text, ":else :if", ctx.Reporter)
			if err != nil {
				fn = func(*reactive.Scope) starlark.Value { return starlark.False }
			}
			c.cond = fn
		}
		clauses = append(clauses, c)
	}

	holder := dom.NewPlaceholder()
	dom.ReplaceWith(el, holder)
	cur := holder

	return func(s *reactive.Scope) {
		target := holder
		for _, c := range clauses {
			if c.cond == nil || expr.Truthy(c.cond(s)) {
				target = c.node
				break
			}
		}
		if target != cur {
			dom.ReplaceWith(ctx.mounted(cur), ctx.mounted(target))
			ctx.unmount(cur)
			cur = target
		}
		if cur != holder {
			ctx.Init(cur, s)
		}
	}
}
