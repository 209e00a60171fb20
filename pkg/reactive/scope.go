// Package reactive holds the state that directives read. State is a chain
// of scopes: each scope is an ordered layer of named values with a parent
// it delegates unresolved lookups to. Writes through Set notify the root,
// which is how a runtime learns that its bindings are stale.
package reactive

import (
	"go.starlark.net/starlark"
)

// debugLog is set by hosts that want to trace state writes.
var debugLog func(args ...interface{})

// SetDebugLog sets the debug logging function
func SetDebugLog(fn func(args ...interface{})) {
	debugLog = fn
}

// Scope is one layer of state. The zero value is not usable; create scopes
// with NewScope or Child.
type Scope struct {
	parent *Scope
	root   *Scope

	keys []string
	vars map[string]starlark.Value

	// root only
	watchers []*watcher
	batch    int
	pending  []string
}

type watcher struct {
	fn func(name string)
}

// NewScope creates an empty root scope.
func NewScope() *Scope {
	s := &Scope{vars: make(map[string]starlark.Value)}
	s.root = s
	return s
}

// FromDict creates a root scope from a StringDict. Keys are defined in
// sorted order.
func FromDict(d starlark.StringDict) *Scope {
	s := NewScope()
	for _, k := range d.Keys() {
		s.Define(k, d[k])
	}
	return s
}

// Child creates a scope that inherits from s. Definitions in the child
// shadow, and never modify, the parent.
func (s *Scope) Child() *Scope {
	return &Scope{
		parent: s,
		root:   s.root,
		vars:   make(map[string]starlark.Value),
	}
}

// Parent returns the enclosing scope, or nil for a root.
func (s *Scope) Parent() *Scope {
	return s.parent
}

// Root returns the outermost scope of the chain.
func (s *Scope) Root() *Scope {
	return s.root
}

// Lookup resolves name through the chain, innermost first.
func (s *Scope) Lookup(name string) (starlark.Value, bool) {
	for c := s; c != nil; c = c.parent {
		if v, ok := c.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Has reports whether name resolves anywhere in the chain.
func (s *Scope) Has(name string) bool {
	_, ok := s.Lookup(name)
	return ok
}

// Owns reports whether name is defined in this layer itself.
func (s *Scope) Owns(name string) bool {
	_, ok := s.vars[name]
	return ok
}

// Keys returns the names defined in this layer, in definition order.
func (s *Scope) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Names returns every visible name, innermost layer first, without
// duplicates.
func (s *Scope) Names() []string {
	seen := make(map[string]bool)
	var out []string
	for c := s; c != nil; c = c.parent {
		for _, k := range c.keys {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

// Define binds name in this layer without notifying watchers. Directives
// use it to seed scopes they create.
func (s *Scope) Define(name string, v starlark.Value) {
	if _, ok := s.vars[name]; !ok {
		s.keys = append(s.keys, name)
	}
	s.vars[name] = v
}

// Set writes name in the nearest layer that already defines it, or in s
// when no layer does, and notifies the root's watchers.
func (s *Scope) Set(name string, v starlark.Value) {
	target := s
	for c := s; c != nil; c = c.parent {
		if _, ok := c.vars[name]; ok {
			target = c
			break
		}
	}
	target.Define(name, v)
	if debugLog != nil {
		debugLog("[Scope] Set", name, "=", v)
	}
	s.root.notify(name)
}

// Delete removes name from this layer and notifies watchers if it was
// present.
func (s *Scope) Delete(name string) {
	if _, ok := s.vars[name]; !ok {
		return
	}
	delete(s.vars, name)
	for i, k := range s.keys {
		if k == name {
			s.keys = append(s.keys[:i:i], s.keys[i+1:]...)
			break
		}
	}
	s.root.notify(name)
}

// Watch registers fn to be called after every Set in the chain rooted at
// s. It returns a function that unregisters fn.
func (s *Scope) Watch(fn func(name string)) (cancel func()) {
	r := s.root
	w := &watcher{fn: fn}
	r.watchers = append(r.watchers, w)
	return func() {
		for i, x := range r.watchers {
			if x == w {
				r.watchers = append(r.watchers[:i:i], r.watchers[i+1:]...)
				return
			}
		}
	}
}

// Batch runs fn and delivers the notifications of all writes it makes
// once fn returns, one per distinct name.
func (s *Scope) Batch(fn func()) {
	r := s.root
	r.batch++
	defer func() {
		r.batch--
		if r.batch > 0 {
			return
		}
		pending := r.pending
		r.pending = nil
		seen := make(map[string]bool, len(pending))
		for _, name := range pending {
			if seen[name] {
				continue
			}
			seen[name] = true
			r.deliver(name)
		}
	}()
	fn()
}

func (s *Scope) notify(name string) {
	if s.batch > 0 {
		s.pending = append(s.pending, name)
		return
	}
	s.deliver(name)
}

func (s *Scope) deliver(name string) {
	watchers := make([]*watcher, len(s.watchers))
	copy(watchers, s.watchers)
	for _, w := range watchers {
		w.fn(name)
	}
}
