package session

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/recera/reflow/pkg/diag"
	"github.com/recera/reflow/pkg/dom"
	"github.com/recera/reflow/pkg/expr"
	rhtml "github.com/recera/reflow/pkg/renderer/html"
	"github.com/recera/reflow/pkg/runtime"
)

const counter = `<button id="inc" :onclick="lambda e: update(count = count + step)">+</button><b :text="count"></b>`

func quiet() runtime.Options {
	return runtime.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func newSession(t *testing.T, markup, state string) *Session {
	t.Helper()
	rec, err := expr.DecodeYAML(strings.NewReader(state))
	if err != nil {
		t.Fatal(err)
	}
	s, err := New("t", strings.NewReader(markup), rec, quiet())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func render(t *testing.T, s *Session) string {
	t.Helper()
	out, err := s.Render(rhtml.Options{})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestParseScript(t *testing.T) {
	script := `
- set: {count: 5, name: Al}
- dispatch: {target: "#inc", event: click}
- dispatch:
    target: input
    event: input
    detail: {value: hi}
`
	actions, err := ParseScript(strings.NewReader(script))
	if err != nil {
		t.Fatal(err)
	}
	want := []Action{
		{Set: map[string]any{"count": 5, "name": "Al"}},
		{Dispatch: &Dispatch{Target: "#inc", Event: "click"}},
		{Dispatch: &Dispatch{Target: "input", Event: "input", Detail: map[string]any{"value": "hi"}}},
	}
	if diff := cmp.Diff(want, actions); diff != "" {
		t.Errorf("actions (-want +got):\n%s", diff)
	}

	bad := []string{
		"- {}",
		"- set: {a: 1}\n  dispatch: {target: a, event: b}",
		"- dispatch: {target: a}",
		"not a list",
	}
	for _, b := range bad {
		if _, err := ParseScript(strings.NewReader(b)); err == nil {
			t.Errorf("%q: expected an error", b)
		}
	}
	if actions, err := ParseScript(strings.NewReader("")); err != nil || actions != nil {
		t.Errorf("empty script = %v, %v", actions, err)
	}
}

func TestSession_Run(t *testing.T) {
	s := newSession(t, counter, "count: 0\nstep: 1\n")
	if got := render(t, s); got != `<button id="inc">+</button><b>0</b>` {
		t.Fatalf("initial: %q", got)
	}

	err := s.Run([]Action{
		{Dispatch: &Dispatch{Target: "#inc", Event: "click"}},
		{Set: map[string]any{"step": 10}},
		{Dispatch: &Dispatch{Target: "button", Event: "click"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := render(t, s); got != `<button id="inc">+</button><b>11</b>` {
		t.Errorf("after run: %q", got)
	}
	if diff := cmp.Diff(map[string]any{"count": int64(11), "step": int64(10)}, s.State()); diff != "" {
		t.Errorf("state (-want +got):\n%s", diff)
	}
}

func TestSession_DispatchNoMatch(t *testing.T) {
	s := newSession(t, counter, "count: 0\nstep: 1\n")
	err := s.Run([]Action{{Dispatch: &Dispatch{Target: "#nope", Event: "click"}}})
	if !errors.Is(err, dom.ErrNoMatch) {
		t.Errorf("err = %v, want ErrNoMatch", err)
	}
}

func TestSession_DrainCollectsEveryPass(t *testing.T) {
	s := newSession(t, `<p :text="missing"></p><i :text="(("></i>`, "")
	errs := s.Drain()
	if len(errs) != 2 {
		t.Fatalf("errors = %v", errs)
	}
	if errs[0].Kind != diag.CompileError || errs[1].Kind != diag.EvaluationError {
		t.Errorf("kinds = %v, %v", errs[0].Kind, errs[1].Kind)
	}
	if len(s.Drain()) != 0 {
		t.Error("Drain should empty the list")
	}

	s.Apply(Action{Set: map[string]any{"other": 1}})
	if n := len(s.Drain()); n != 1 {
		t.Errorf("a new pass should report again, got %d", n)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	markup := filepath.Join(dir, "app.html")
	state := filepath.Join(dir, "state.yaml")
	os.WriteFile(markup, []byte(`<ul><li :each="u in users">{{u.name}}</li></ul>`), 0o644)
	os.WriteFile(state, []byte("users:\n  - name: Ann\n  - name: Bo\n"), 0o644)

	s, err := Load("x", markup, state, quiet())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if got := render(t, s); got != "<ul><li>Ann</li><li>Bo</li></ul>" {
		t.Errorf("got %q", got)
	}

	if _, err := Load("x", filepath.Join(dir, "missing.html"), "", quiet()); err == nil {
		t.Error("missing markup should fail")
	}
	os.WriteFile(state, []byte("- not a mapping\n"), 0o644)
	if _, err := Load("x", markup, state, quiet()); err == nil {
		t.Error("a state file that is not a mapping should fail")
	}
}
