// Package diag carries directive failures from the place they happen to
// whoever is watching. Failures never interrupt a render pass: they are
// collected while the pass runs and flushed to sinks once it is over.
package diag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/net/html"
)

// Kind classifies a failure.
type Kind uint8

const (
	// CompileError is malformed expression text.
	CompileError Kind = iota + 1
	// EvaluationError is a failure while running a compiled expression.
	EvaluationError
	// ConfigurationError is malformed directive syntax or a value of the
	// wrong shape, such as a bad :each pattern.
	ConfigurationError
)

func (k Kind) String() string {
	switch k {
	case CompileError:
		return "compile"
	case EvaluationError:
		return "evaluation"
	case ConfigurationError:
		return "configuration"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Error is a failure annotated with where it happened.
type Error struct {
	Kind    Kind
	Element *html.Node
	Expr    string
	Label   string
	Err     error
}

// New builds an Error.
func New(kind Kind, el *html.Node, expr, label string, err error) *Error {
	return &Error{Kind: kind, Element: el, Expr: expr, Label: label, Err: err}
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString("∴ ")
	if e.Err != nil {
		sb.WriteString(e.Err.Error())
	} else {
		sb.WriteString(e.Kind.String() + " error")
	}
	sb.WriteString("\n\n")
	sb.WriteString(e.Label)
	if e.Expr != "" {
		fmt.Fprintf(&sb, "=%q", e.Expr)
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so callers can test with
// errors.Is(err, &diag.Error{Kind: diag.CompileError}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Err == nil && t.Element == nil && t.Kind == e.Kind
}

// Reporter accepts failures.
type Reporter interface {
	Report(err *Error)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(err *Error)

func (f ReporterFunc) Report(err *Error) { f(err) }

// List collects failures during a pass.
type List struct {
	errs []*Error
}

func (l *List) Report(err *Error) {
	l.errs = append(l.errs, err)
}

// Len returns the number of collected failures.
func (l *List) Len() int {
	return len(l.errs)
}

// Drain returns the collected failures and empties the list.
func (l *List) Drain() []*Error {
	out := l.errs
	l.errs = nil
	return out
}

// Join combines failures into one error, or nil.
func Join(errs []*Error) error {
	if len(errs) == 0 {
		return nil
	}
	list := make([]error, len(errs))
	for i, e := range errs {
		list[i] = e
	}
	return errors.Join(list...)
}

// Sink receives the failures of a finished pass.
type Sink func(errs []*Error)

// LogSink writes each failure as a warning.
func LogSink(logger *slog.Logger) Sink {
	return func(errs []*Error) {
		for _, e := range errs {
			attrs := []slog.Attr{
				slog.String("kind", e.Kind.String()),
				slog.String("directive", e.Label),
				slog.String("expr", e.Expr),
			}
			if e.Element != nil {
				attrs = append(attrs, slog.String("element", Describe(e.Element)))
			}
			msg := "directive failed"
			if e.Err != nil {
				msg = e.Err.Error()
			}
			logger.LogAttrs(context.Background(), slog.LevelWarn, msg, attrs...)
		}
	}
}

// Describe renders the start tag of an element for messages.
func Describe(n *html.Node) string {
	switch n.Type {
	case html.TextNode:
		s := n.Data
		if r := []rune(s); len(r) > 24 {
			s = string(r[:24]) + "…"
		}
		return fmt.Sprintf("#text %q", s)
	case html.ElementNode:
	default:
		return fmt.Sprintf("node(%d)", n.Type)
	}
	var sb strings.Builder
	sb.WriteString("<" + n.Data)
	for _, a := range n.Attr {
		fmt.Fprintf(&sb, " %s=%q", a.Key, a.Val)
	}
	sb.WriteString(">")
	return sb.String()
}
