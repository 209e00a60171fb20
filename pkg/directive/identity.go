package directive

import (
	"reflect"

	"github.com/recera/reflow/pkg/expr"
	"go.starlark.net/starlark"
)

// Token is the identity of an :each item. Tokens are compared by pointer.
type Token struct {
	key   any
	base  *Token
	occur int
}

type primKey struct {
	typ  string
	repr string
}

type dupKey struct {
	base  *Token
	occur int
}

// Pool hands out tokens. Mutable values (records, lists, dicts, elements,
// functions) are identified by reference; immutable values by type and
// value, so equal strings or numbers share a token. An identity repeated
// within one sequence gets a distinct token per occurrence.
type Pool struct {
	tokens map[any]*Token
	dups   map[dupKey]*Token
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{
		tokens: make(map[any]*Token),
		dups:   make(map[dupKey]*Token),
	}
}

// Len returns how many tokens are live.
func (p *Pool) Len() int {
	return len(p.tokens) + len(p.dups)
}

// Token returns the token for v.
func (p *Pool) Token(v starlark.Value) *Token {
	k := identityKey(v)
	t, ok := p.tokens[k]
	if !ok {
		t = &Token{key: k}
		p.tokens[k] = t
	}
	return t
}

// Tokens returns one token per item, qualifying repeated identities by
// their occurrence.
func (p *Pool) Tokens(items []starlark.Value) []*Token {
	out := make([]*Token, len(items))
	seen := make(map[*Token]int, len(items))
	for i, v := range items {
		t := p.Token(v)
		n := seen[t]
		seen[t] = n + 1
		if n > 0 {
			dk := dupKey{base: t, occur: n}
			d, ok := p.dups[dk]
			if !ok {
				d = &Token{base: t, occur: n}
				p.dups[dk] = d
			}
			t = d
		}
		out[i] = t
	}
	return out
}

// Release forgets t. A later item with the same identity gets a new token.
func (p *Pool) Release(t *Token) {
	if t.base != nil {
		delete(p.dups, dupKey{base: t.base, occur: t.occur})
		return
	}
	if p.tokens[t.key] == t {
		delete(p.tokens, t.key)
	}
}

func identityKey(v starlark.Value) any {
	switch v := v.(type) {
	case nil:
		return primKey{typ: "NoneType", repr: "None"}
	case *expr.Element:
		return v.Node()
	case *expr.Record, *starlark.List, *starlark.Dict, *starlark.Set,
		*starlark.Function, *starlark.Builtin:
		return v
	case starlark.NoneType, starlark.Bool, starlark.String, starlark.Bytes,
		starlark.Int, starlark.Float, starlark.Tuple:
		return primKey{typ: v.Type(), repr: v.String()}
	}
	if t := reflect.TypeOf(v); t.Kind() == reflect.Pointer && t.Comparable() {
		return v
	}
	return primKey{typ: v.Type(), repr: v.String()}
}
