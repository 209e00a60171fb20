// Package runtime mounts directive markup on a scope and keeps it
// current: writes to the scope mark the tree dirty, and Flush re-runs the
// directive updaters until the state settles.
package runtime

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/recera/reflow/pkg/diag"
	"github.com/recera/reflow/pkg/directive"
	"github.com/recera/reflow/pkg/dom"
	"github.com/recera/reflow/pkg/expr"
	"github.com/recera/reflow/pkg/reactive"
	"github.com/recera/reflow/pkg/scheduler"
	"go.starlark.net/starlark"
	"golang.org/x/net/html"
)

// Options configures a mount. The zero value is usable.
type Options struct {
	// Logger receives debug traces and, unless Sinks is set, failures.
	Logger *slog.Logger
	// Sinks receive the failures of every pass once it is over.
	Sinks []diag.Sink
	// Retain is passed to the directive context; see directive.Context.
	Retain int
	// Registry overrides the built-in directives.
	Registry *directive.Registry
	// Scheduler lets several mounts share one queue.
	Scheduler *scheduler.Scheduler
}

// Runtime is one mounted tree. It is not safe for concurrent use.
type Runtime struct {
	root   *html.Node
	scope  *reactive.Scope
	doc    *dom.Document
	ctx    *directive.Context
	logger *slog.Logger
	sinks  []diag.Sink

	errs   diag.List
	last   []*diag.Error
	sched  *scheduler.Scheduler
	fiber  *scheduler.Fiber
	cancel func()
	passes int
}

// Mount binds the directives under root to scope and renders them once.
func Mount(root *html.Node, scope *reactive.Scope, opts Options) *Runtime {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sinks := opts.Sinks
	if len(sinks) == 0 {
		sinks = []diag.Sink{diag.LogSink(logger)}
	}
	sched := opts.Scheduler
	if sched == nil {
		sched = scheduler.NewScheduler()
	}

	r := &Runtime{
		root:   root,
		scope:  scope,
		doc:    dom.NewDocument(root),
		logger: logger,
		sinks:  sinks,
		sched:  sched,
	}
	r.ctx = directive.NewContext(r.doc, &r.errs)
	r.ctx.Logger = logger
	r.ctx.Retain = opts.Retain
	if opts.Registry != nil {
		r.ctx.Registry = opts.Registry
	}

	r.fiber = sched.CreateFiber("mount", r.render)
	r.fiber.SetErrorHandler(func(_ *scheduler.Fiber, err error) bool {
		r.errs.Report(diag.New(diag.EvaluationError, root, "", "mount", err))
		return true
	})
	r.cancel = scope.Watch(func(string) {
		sched.MarkDirty(r.fiber)
	})

	sched.MarkDirty(r.fiber)
	r.Flush()
	return r
}

func (r *Runtime) render() {
	r.passes++
	r.ctx.Init(r.root, r.scope)
}

// Flush runs pending updates, hands the failures collected since the last
// flush to the sinks and returns them.
func (r *Runtime) Flush() []*diag.Error {
	passes, err := r.sched.Flush()
	if err != nil {
		r.errs.Report(diag.New(diag.EvaluationError, r.root, "", "flush", err))
	}
	errs := r.errs.Drain()
	if passes > 0 || len(errs) > 0 {
		r.logger.Debug("flush", "passes", passes, "errors", len(errs), "bindings", r.ctx.Bindings(), "programs", expr.Cached())
	}
	if len(errs) > 0 {
		for _, sink := range r.sinks {
			sink(errs)
		}
	}
	r.last = errs
	return errs
}

// Dispatch fires an event of type typ at target, then flushes. It returns
// how many listeners ran.
func (r *Runtime) Dispatch(target *html.Node, typ string, detail map[string]any) int {
	e := dom.NewEvent(typ, target)
	e.Detail = detail
	n := r.doc.Dispatch(e)
	r.Flush()
	return n
}

// Update runs fn against the root scope with notifications batched, then
// flushes.
func (r *Runtime) Update(fn func(s *reactive.Scope)) []*diag.Error {
	r.scope.Batch(func() { fn(r.scope) })
	return r.Flush()
}

// Set converts each value with expr.ToValue and writes it to the scope in
// one batch, in key order, then flushes.
func (r *Runtime) Set(values map[string]any) ([]*diag.Error, error) {
	converted := make(map[string]starlark.Value, len(values))
	var errs []error
	for k, v := range values {
		sv, err := expr.ToValue(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", k, err))
			continue
		}
		converted[k] = sv
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return r.Update(func(s *reactive.Scope) {
		for _, k := range slices.Sorted(maps.Keys(converted)) {
			s.Set(k, converted[k])
		}
	}), nil
}

// Unmount stops reacting to the scope and drops every binding.
func (r *Runtime) Unmount() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.sched.RemoveFiber(r.fiber)
	r.ctx.Forget(r.root)
}

// Root returns the mounted tree.
func (r *Runtime) Root() *html.Node { return r.root }

// Scope returns the root scope.
func (r *Runtime) Scope() *reactive.Scope { return r.scope }

// Document returns the event target wrapping the tree.
func (r *Runtime) Document() *dom.Document { return r.doc }

// Context returns the directive context.
func (r *Runtime) Context() *directive.Context { return r.ctx }

// Errors returns the failures handed out by the last flush.
func (r *Runtime) Errors() []*diag.Error { return r.last }

// Passes returns how many times the tree has been updated.
func (r *Runtime) Passes() int { return r.passes }
