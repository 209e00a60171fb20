package expr

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/recera/reflow/pkg/diag"
	"github.com/recera/reflow/pkg/reactive"
	"go.starlark.net/starlark"
	"golang.org/x/net/html"
)

// debugLog is set by hosts that want to trace compilation.
var debugLog func(args ...interface{})

// SetDebugLog sets the debug logging function
func SetDebugLog(fn func(args ...interface{})) {
	debugLog = fn
}

// MaxSteps bounds the work a single evaluation may do. Zero means no
// limit.
var MaxSteps uint64 = 1 << 20

// ProgramStore persists compiled programs across processes.
type ProgramStore interface {
	LoadProgram(text string) (*Evaluator, bool)
	SaveProgram(ev *Evaluator) error
}

var store atomic.Pointer[ProgramStore]

// SetProgramStore installs a persistent store consulted before compiling
// text that is not yet in memory. Pass nil to remove it.
func SetProgramStore(s ProgramStore) {
	if s == nil {
		store.Store(nil)
		return
	}
	store.Store(&s)
}

func currentStore() ProgramStore {
	if p := store.Load(); p != nil {
		return *p
	}
	return nil
}

// UndefinedError is returned when an expression reads a name that no
// layer of the scope chain defines.
type UndefinedError struct {
	Name string
}

func (e *UndefinedError) Error() string {
	return "undefined: " + e.Name
}

// Eval runs the evaluator against s and returns its value. Panics raised
// by Go functions the expression calls are returned as errors.
func (e *Evaluator) Eval(s *reactive.Scope) (v starlark.Value, err error) {
	if e.err != nil {
		return nil, e.err
	}
	env := make(starlark.StringDict, len(e.free))
	for _, name := range e.free {
		if v, ok := s.Lookup(name); ok {
			env[name] = v
			continue
		}
		if name == updateName {
			env[name] = updateBuiltin(s)
			continue
		}
		if v, ok := starlark.Universe[name]; ok {
			env[name] = v
			continue
		}
		return nil, &UndefinedError{Name: name}
	}

	defer func() {
		if r := recover(); r != nil {
			v, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	globals, err := e.prog.Init(newThread(e.Text), env)
	if err != nil {
		return nil, unwrapEval(err)
	}
	if v, ok := globals[resultName]; ok && v != nil {
		return v, nil
	}
	return starlark.None, nil
}

func newThread(name string) *starlark.Thread {
	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			slog.Debug(msg, "source", "expr")
		},
	}
	if MaxSteps > 0 {
		thread.SetMaxExecutionSteps(MaxSteps)
	}
	return thread
}

// unwrapEval drops the backtrace wrapper so messages stay short.
func unwrapEval(err error) error {
	var ee *starlark.EvalError
	if errors.As(err, &ee) {
		if cause := ee.Unwrap(); cause != nil {
			var ue *UndefinedError
			if errors.As(cause, &ue) {
				return ue
			}
		}
		return errors.New(ee.Msg)
	}
	return err
}

// updateBuiltin returns the update(**kw) intrinsic bound to s. Each
// keyword is written with Scope.Set inside one batch.
func updateBuiltin(s *reactive.Scope) *starlark.Builtin {
	return starlark.NewBuiltin(updateName, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(args) > 1 {
			return nil, fmt.Errorf("%s: got %d positional arguments, want at most 1", b.Name(), len(args))
		}
		s.Batch(func() {
			if len(args) == 1 {
				if m, ok := args[0].(starlark.IterableMapping); ok {
					for _, kv := range m.Items() {
						if k, ok := kv[0].(starlark.String); ok {
							s.Set(string(k), kv[1])
						}
					}
				}
			}
			for _, kv := range kwargs {
				s.Set(string(kv[0].(starlark.String)), kv[1])
			}
		})
		return starlark.None, nil
	})
}

// Func evaluates a compiled expression. It never fails: errors are
// reported and the result is None.
type Func func(s *reactive.Scope) starlark.Value

// Compile returns a Func for text as used by the directive label on host.
// Compile errors are reported once, here, and also returned so callers can
// leave their directive inert; the returned Func then yields None.
// Evaluation errors are reported on every call that hits them.
func Compile(host *html.Node, text, label string, rep diag.Reporter) (Func, error) {
	ev, err := Lookup(text)
	if err != nil {
		if rep != nil {
			rep.Report(diag.New(diag.CompileError, host, text, label, err))
		}
		return func(*reactive.Scope) starlark.Value { return starlark.None }, err
	}
	return func(s *reactive.Scope) starlark.Value {
		v, err := ev.Eval(s)
		if err != nil {
			if rep != nil {
				rep.Report(diag.New(diag.EvaluationError, host, text, label, err))
			}
			return starlark.None
		}
		return v
	}, nil
}

// Call invokes fn with args. Starlark functions declared without
// parameters are called with no arguments. A panic inside fn, typically
// from a wrapped Go function, is returned as an error.
func Call(fn starlark.Value, args ...starlark.Value) (v starlark.Value, err error) {
	if f, ok := fn.(*starlark.Function); ok && f.NumParams() == 0 && !f.HasVarargs() {
		args = nil
	}
	name := "call"
	if c, ok := fn.(starlark.Callable); ok {
		name = c.Name()
	}
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, fmt.Errorf("%s: panic: %v", name, r)
		}
	}()
	v, err = starlark.Call(newThread(name), fn, starlark.Tuple(args), nil)
	if err != nil {
		return nil, unwrapEval(err)
	}
	return v, nil
}

// Callable reports whether v can be called.
func Callable(v starlark.Value) bool {
	_, ok := v.(starlark.Callable)
	return ok
}
