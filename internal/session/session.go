// Package session pairs a mounted tree with its state and the failures it
// produced, and applies scripted or remote actions to it. Every method
// takes the session lock, so a session can be driven from several
// goroutines.
package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/recera/reflow/pkg/diag"
	"github.com/recera/reflow/pkg/dom"
	"github.com/recera/reflow/pkg/expr"
	"github.com/recera/reflow/pkg/reactive"
	rhtml "github.com/recera/reflow/pkg/renderer/html"
	"github.com/recera/reflow/pkg/runtime"
	"gopkg.in/yaml.v3"
)

// Action is one step of a script: exactly one field is set.
type Action struct {
	Set      map[string]any `yaml:"set,omitempty" json:"set,omitempty"`
	Dispatch *Dispatch      `yaml:"dispatch,omitempty" json:"dispatch,omitempty"`
}

// Dispatch fires an event at the first element matching Target.
type Dispatch struct {
	Target string         `yaml:"target" json:"target"`
	Event  string         `yaml:"event" json:"event"`
	Detail map[string]any `yaml:"detail,omitempty" json:"detail,omitempty"`
}

func (a Action) String() string {
	switch {
	case a.Dispatch != nil:
		return fmt.Sprintf("dispatch %s %s", a.Dispatch.Event, a.Dispatch.Target)
	case a.Set != nil:
		keys := make([]string, 0, len(a.Set))
		for k := range a.Set {
			keys = append(keys, k)
		}
		return "set " + strings.Join(keys, ",")
	}
	return "noop"
}

// ParseScript reads a YAML list of actions.
func ParseScript(r io.Reader) ([]Action, error) {
	var actions []Action
	if err := yaml.NewDecoder(r).Decode(&actions); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse script: %w", err)
	}
	for i, a := range actions {
		if (a.Set == nil) == (a.Dispatch == nil) {
			return nil, fmt.Errorf("parse script: action %d: want exactly one of set or dispatch", i+1)
		}
		if a.Dispatch != nil && (a.Dispatch.Target == "" || a.Dispatch.Event == "") {
			return nil, fmt.Errorf("parse script: action %d: dispatch needs a target and an event", i+1)
		}
	}
	return actions, nil
}

// Session is a mounted tree plus the failures not yet drained.
type Session struct {
	ID      string
	Created time.Time

	mu         sync.Mutex
	rt         *runtime.Runtime
	errs       []*diag.Error
	lastAccess time.Time
}

// New parses markup, seeds a root scope from state in its key order and
// mounts the tree. Failures of the first render are kept for Drain.
func New(id string, markup io.Reader, state *expr.Record, opts runtime.Options) (*Session, error) {
	root, err := dom.ParseFragment(markup)
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}
	scope := reactive.NewScope()
	if state != nil {
		for _, k := range state.Keys() {
			v, _ := state.Field(k)
			scope.Define(k, v)
		}
	}

	now := time.Now()
	s := &Session{ID: id, Created: now, lastAccess: now}
	opts.Sinks = append(append([]diag.Sink(nil), opts.Sinks...), s.collect)
	s.rt = runtime.Mount(root, scope, opts)
	return s, nil
}

// Load reads markup and an optional YAML state file from disk.
func Load(id, markupPath, statePath string, opts runtime.Options) (*Session, error) {
	markup, err := os.Open(markupPath)
	if err != nil {
		return nil, err
	}
	defer markup.Close()

	state := expr.NewRecord()
	if statePath != "" {
		f, err := os.Open(statePath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if state, err = expr.DecodeYAML(f); err != nil {
			return nil, fmt.Errorf("%s: %w", statePath, err)
		}
	}
	return New(id, markup, state, opts)
}

// collect is the session's sink. It runs inside runtime calls, which
// already hold s.mu.
func (s *Session) collect(errs []*diag.Error) {
	s.errs = append(s.errs, errs...)
}

// Apply performs one action.
func (s *Session) Apply(a Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAccess = time.Now()

	switch {
	case a.Dispatch != nil:
		target, err := dom.Query(s.rt.Root(), a.Dispatch.Target)
		if err != nil {
			return fmt.Errorf("dispatch %s: %w", a.Dispatch.Event, err)
		}
		s.rt.Dispatch(target, a.Dispatch.Event, a.Dispatch.Detail)
		return nil
	case a.Set != nil:
		_, err := s.rt.Set(a.Set)
		return err
	}
	return errors.New("empty action")
}

// Run applies actions in order and stops at the first error.
func (s *Session) Run(actions []Action) error {
	for i, a := range actions {
		if err := s.Apply(a); err != nil {
			return fmt.Errorf("action %d (%s): %w", i+1, a, err)
		}
	}
	return nil
}

// Render serializes the live tree.
func (s *Session) Render(opts rhtml.Options) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return rhtml.RenderWith(s.rt.Root(), opts)
}

// Drain returns the failures reported since the last Drain.
func (s *Session) Drain() []*diag.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.errs
	s.errs = nil
	return out
}

// State returns the root scope as plain Go data.
func (s *Session) State() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	scope := s.rt.Scope()
	out := make(map[string]any)
	for _, k := range scope.Keys() {
		v, _ := scope.Lookup(k)
		if expr.Callable(v) {
			continue
		}
		out[k] = expr.FromValue(v)
	}
	return out
}

// LastAccess returns when an action was last applied.
func (s *Session) LastAccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

// Close unmounts the tree.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rt.Unmount()
}
