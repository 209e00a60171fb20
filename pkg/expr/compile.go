// Package expr compiles directive expression text into evaluators and
// runs them against a scope chain.
//
// Expressions are Starlark. Text that parses as a single expression is
// evaluated for its value; anything else is treated as a statement body,
// wrapped in a generated function and called immediately, so it may use
// if, for, assignments and return. Identifiers that are not bound inside the
// text are resolved through the evaluating scope at call time.
package expr

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

const (
	resultName = "__result__"
	bodyName   = "__expr__"
	updateName = "update"
)

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// Evaluator is compiled expression text. Evaluators are immutable and
// shared between every element that uses the same text.
type Evaluator struct {
	Text string
	// Statement reports whether the text was compiled as a statement body.
	Statement bool

	prog *starlark.Program
	free []string
	err  error
}

// Free returns the identifiers the evaluator reads from its scope.
func (e *Evaluator) Free() []string {
	out := make([]string, len(e.free))
	copy(out, e.free)
	return out
}

// Err returns the compile error, if any.
func (e *Evaluator) Err() error {
	return e.err
}

var cache sync.Map // string -> *Evaluator

// Lookup returns the evaluator for text, compiling it on first use. Every
// call with the same text returns the same pointer; texts that fail to
// compile are remembered too, and report the same error each time.
func Lookup(text string) (*Evaluator, error) {
	if v, ok := cache.Load(text); ok {
		ev := v.(*Evaluator)
		return ev, ev.err
	}
	ev := load(text)
	actual, _ := cache.LoadOrStore(text, ev)
	ev = actual.(*Evaluator)
	return ev, ev.err
}

// Cached reports how many distinct texts have been compiled.
func Cached() int {
	n := 0
	cache.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func load(text string) *Evaluator {
	if store := currentStore(); store != nil {
		if ev, ok := store.LoadProgram(text); ok {
			return ev
		}
		ev := compile(text)
		if ev.err == nil {
			if err := store.SaveProgram(ev); err != nil && debugLog != nil {
				debugLog("[expr] save program:", err)
			}
		}
		return ev
	}
	return compile(text)
}

func compile(text string) *Evaluator {
	if strings.TrimSpace(text) == "" {
		return &Evaluator{Text: text, err: fmt.Errorf("empty expression")}
	}
	src, statement, perr := wrap(text)
	if perr != nil {
		return &Evaluator{Text: text, err: perr}
	}

	f, err := fileOptions.Parse("expr", src, 0)
	if err != nil {
		return &Evaluator{Text: text, err: err}
	}

	var free []string
	seen := make(map[string]bool)
	// Every name that is not bound in the text is predeclared, including
	// universals: state may shadow them and the environment falls back to
	// the universe at call time.
	prog, err := starlark.FileProgram(f, func(name string) bool {
		if !seen[name] {
			seen[name] = true
			free = append(free, name)
		}
		return true
	})
	if err != nil {
		return &Evaluator{Text: text, err: err}
	}
	return &Evaluator{Text: text, Statement: statement, prog: prog, free: free}
}

// wrap turns text into a program that leaves its value in __result__.
func wrap(text string) (src string, statement bool, err error) {
	if _, exprErr := fileOptions.ParseExpr("expr", text, 0); exprErr == nil {
		return resultName + " = (" + text + "\n)\n", false, nil
	} else if !looksLikeStatements(text) {
		return "", false, exprErr
	}

	var sb strings.Builder
	sb.WriteString("def " + bodyName + "():\n")
	body := dedent(text)
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) == "" {
			sb.WriteByte('\n')
			continue
		}
		sb.WriteString("    ")
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	sb.WriteString(resultName + " = " + bodyName + "()\n")
	return sb.String(), true, nil
}

var statementKeywords = []string{"if", "for", "while", "return", "pass", "def", "break", "continue"}

// looksLikeStatements reports whether text should be compiled as a
// statement body: it starts with a statement keyword or an assignment, or
// spans several lines.
func looksLikeStatements(text string) bool {
	t := strings.TrimSpace(text)
	if strings.Contains(t, "\n") || strings.Contains(t, ";") {
		return true
	}
	for _, kw := range statementKeywords {
		if t == kw || strings.HasPrefix(t, kw+" ") || strings.HasPrefix(t, kw+"(") || strings.HasPrefix(t, kw+":") {
			return true
		}
	}
	return isAssignment(t)
}

func isAssignment(t string) bool {
	depth := 0
	for i := 0; i < len(t); i++ {
		switch c := t[i]; c {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case '"', '\'':
			j := strings.IndexByte(t[i+1:], c)
			if j < 0 {
				return false
			}
			i += j + 1
		case '=':
			if depth != 0 {
				continue
			}
			if i+1 < len(t) && t[i+1] == '=' {
				i++
				continue
			}
			if i > 0 && strings.IndexByte("!<>=", t[i-1]) >= 0 {
				continue
			}
			return true
		}
	}
	return false
}

// dedent removes the indentation common to every non-blank line.
func dedent(text string) string {
	lines := strings.Split(strings.Trim(text, "\n"), "\n")
	prefix := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		n := len(line) - len(strings.TrimLeft(line, " \t"))
		if prefix < 0 || n < prefix {
			prefix = n
		}
	}
	if prefix <= 0 {
		return strings.Join(lines, "\n")
	}
	for i, line := range lines {
		if len(line) >= prefix {
			lines[i] = line[prefix:]
		} else {
			lines[i] = strings.TrimLeft(line, " \t")
		}
	}
	return strings.Join(lines, "\n")
}

// Encode writes the compiled form of e for a persistent store.
func (e *Evaluator) Encode() ([]byte, error) {
	if e.prog == nil {
		return nil, fmt.Errorf("evaluator for %q has no program", e.Text)
	}
	var buf bytes.Buffer
	if e.Statement {
		buf.WriteString("s ")
	} else {
		buf.WriteString("e ")
	}
	buf.WriteString(strings.Join(e.free, " "))
	buf.WriteByte('\n')
	if err := e.prog.Write(&buf); err != nil {
		return nil, fmt.Errorf("write program: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode restores an evaluator written by Encode.
func Decode(text string, data []byte) (*Evaluator, error) {
	header, body, ok := bytes.Cut(data, []byte{'\n'})
	if !ok || len(header) < 2 {
		return nil, fmt.Errorf("decode %q: missing header", text)
	}
	prog, err := starlark.CompiledProgram(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("decode %q: %w", text, err)
	}
	return &Evaluator{
		Text:      text,
		Statement: header[0] == 's',
		prog:      prog,
		free:      strings.Fields(string(header[2:])),
	}, nil
}
