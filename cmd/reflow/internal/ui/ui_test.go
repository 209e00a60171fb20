package ui

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/go-cmp/cmp"
	"github.com/recera/reflow/internal/session"
	"github.com/recera/reflow/pkg/diag"
	"github.com/recera/reflow/pkg/runtime"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want session.Action
	}{
		{"set count=3", session.Action{Set: map[string]any{"count": 3}}},
		{"set name=Al on=true tags=[a,b]", session.Action{Set: map[string]any{
			"name": "Al", "on": true, "tags": []any{"a", "b"},
		}}},
		{"fire #inc click", session.Action{Dispatch: &session.Dispatch{Target: "#inc", Event: "click"}}},
	}
	for _, tt := range tests {
		got, err := ParseCommand(tt.line)
		if err != nil {
			t.Errorf("%q: %v", tt.line, err)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("%q (-want +got):\n%s", tt.line, diff)
		}
	}

	for _, bad := range []string{"", "set", "set =1", "set x", "fire #inc", "jump"} {
		if _, err := ParseCommand(bad); err == nil {
			t.Errorf("%q: expected an error", bad)
		}
	}
	if _, err := ParseCommand("quit"); !errors.Is(err, ErrQuit) {
		t.Errorf("quit: %v", err)
	}
}

func newModel(t *testing.T, markup string) Model {
	t.Helper()
	s, err := session.New("play", strings.NewReader(markup), nil, runtime.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return NewModel("test", s)
}

func TestModel_Run(t *testing.T) {
	m := newModel(t, `<button id="b" :onclick="lambda e: update(n = n + 1)"></button><p :text="n"></p>`)
	if len(m.Diagnostics()) == 0 {
		t.Fatal("n is undefined before the first set")
	}

	if m.Run("set n=1") {
		t.Fatal("set should not quit")
	}
	m.Run("fire #b click")
	if len(m.Diagnostics()) != 0 {
		t.Errorf("diagnostics = %v", m.Diagnostics())
	}
	if !strings.Contains(m.Content(), "<p>2</p>") {
		t.Errorf("content = %q", m.Content())
	}

	m.Run("fire #missing click")
	if !m.statusErr || !strings.Contains(m.status, "#missing") {
		t.Errorf("status = %q", m.status)
	}
	if !m.Run("quit") {
		t.Error("quit should quit")
	}
	if diff := cmp.Diff([]string{"set n=1", "fire #b click", "fire #missing click"}, m.history); diff != "" {
		t.Errorf("history (-want +got):\n%s", diff)
	}
}

func TestModel_Update(t *testing.T) {
	m := newModel(t, `<p :text="'hi'"></p>`)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = next.(Model)
	for _, r := range "set x=1" {
		next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(Model)
	}
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)

	if m.input.Value() != "" {
		t.Errorf("input not reset: %q", m.input.Value())
	}
	view := m.View()
	for _, want := range []string{"reflow play", "<p>", "hi", "set x"} {
		if !strings.Contains(view, want) {
			t.Errorf("view is missing %q", want)
		}
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if cmd == nil {
		t.Error("esc should quit")
	}
}

func TestSink(t *testing.T) {
	var buf bytes.Buffer
	Sink(&buf)([]*diag.Error{
		diag.New(diag.CompileError, nil, "((", ":text", errors.New("got end of file")),
	})
	out := buf.String()
	for _, want := range []string{"compile", "got end of file", `:text="(("`} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q is missing %q", out, want)
		}
	}
	if !strings.Contains(FormatDiagnostics(nil), "no errors") {
		t.Error("empty diagnostics should say so")
	}
}
