package expr

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/recera/reflow/pkg/dom"
	"go.starlark.net/starlark"
)

func TestRecordAccess(t *testing.T) {
	user := RecordOf("name", "Al", "age", 30)
	s := scopeOf()
	s.Define("user", user)

	tests := []struct {
		text string
		want string
	}{
		{`user.name`, "Al"},
		{`user["age"]`, "30"},
		{`user.get("missing", "x")`, "x"},
		{`",".join(user.keys())`, "name,age"},
		{`",".join([k for k in user])`, "name,age"},
		{`len(user)`, "2"},
		{`"name" in user`, "true"},
		{`str(user)`, `{"name": "Al", "age": 30}`},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := Text(eval(t, tt.text, s)); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	eval(t, "user.name = 'Bo'\nuser['email'] = 'bo@x'", s)
	if diff := cmp.Diff([]string{"name", "age", "email"}, user.Keys()); diff != "" {
		t.Errorf("keys (-want +got):\n%s", diff)
	}
	if v, _ := user.Field("name"); Text(v) != "Bo" {
		t.Errorf("name = %v", v)
	}

	if _, err := user.Hash(); err == nil {
		t.Error("records should be unhashable")
	}
	user.Freeze()
	if err := user.SetField("name", starlark.None); err == nil {
		t.Error("frozen records should reject writes")
	}
}

func TestToValue(t *testing.T) {
	type account struct {
		Name    string `json:"name"`
		Balance int
		Secret  string `json:"-"`
		hidden  bool
	}
	v, err := ToValue(map[string]any{
		"b":    []int{1, 2},
		"a":    account{Name: "x", Balance: 3, hidden: true},
		"nil":  nil,
		"f":    1.5,
		"ptr":  &account{Name: "p"},
		"flag": true,
	})
	if err != nil {
		t.Fatal(err)
	}
	got := FromValue(v)
	want := map[string]any{
		"a":    map[string]any{"name": "x", "Balance": int64(3)},
		"b":    []any{int64(1), int64(2)},
		"f":    1.5,
		"flag": true,
		"nil":  nil,
		"ptr":  map[string]any{"name": "p", "Balance": int64(0)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b", "f", "flag", "nil", "ptr"}, v.(*Record).Keys()); diff != "" {
		t.Errorf("map keys should be sorted (-want +got):\n%s", diff)
	}

	if _, err := ToValue(make(chan int)); err == nil {
		t.Error("channels should not convert")
	}
}

func TestToValue_Functions(t *testing.T) {
	type point struct{ X, Y int }
	s := scopeOf(
		"greet", func(name string) string { return "hi " + name },
		"total", func(r map[string]any) int64 { return r["a"].(int64) + r["b"].(int64) },
		"scale", func(n int, f float64) float64 { return float64(n) * f },
		"join", func(sep string, parts ...string) string { return strings.Join(parts, sep) },
		"pair", func() (string, int) { return "x", 2 },
		"sum", func(p point) int { return p.X + p.Y },
		"ints", func(xs []int) int { return len(xs) },
		"kind", func(v starlark.Value) string { return v.Type() },
		"check", func(ok bool) (string, error) {
			if !ok {
				return "", errors.New("not ok")
			}
			return "ok", nil
		},
		"boom", func() { panic("kaboom") },
		"rec", RecordOf("a", 1, "b", 2),
	)

	tests := []struct {
		text string
		want string
	}{
		{`greet("al")`, "hi al"},
		{`total(rec)`, "3"},
		{`total({"a": 4, "b": 5})`, "9"},
		{`scale(2, 1.5)`, "3"},
		{`join("-", "a", "b", "c")`, "a-b-c"},
		{`pair()[1]`, "2"},
		{`sum({"X": 1, "Y": 2})`, "3"},
		{`sum(rec2)`, "7"},
		{`ints([1, 2, 3])`, "3"},
		{`kind(rec)`, "record"},
		{`check(True)`, "ok"},
		{`type(greet)`, "builtin_function_or_method"},
	}
	s.Define("rec2", RecordOf("X", 3, "Y", 4))
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := Text(eval(t, tt.text, s)); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	for text, want := range map[string]string{
		`greet(1)`:     "argument 1",
		`greet()`:      "got 0 arguments",
		`greet(x=1)`:   "keyword",
		`check(False)`: "not ok",
		`boom()`:       "kaboom",
	} {
		t.Run(text, func(t *testing.T) {
			ev, err := Lookup(text)
			if err != nil {
				t.Fatal(err)
			}
			_, err = ev.Eval(s)
			if err == nil || !strings.Contains(err.Error(), want) {
				t.Errorf("err = %v, want it to mention %q", err, want)
			}
		})
	}

	if v, err := ToValue((func())(nil)); err != nil || v != starlark.None {
		t.Errorf("nil func = %v, %v", v, err)
	}
}

func TestText(t *testing.T) {
	tests := []struct {
		in   starlark.Value
		want string
	}{
		{nil, ""},
		{starlark.None, ""},
		{starlark.String("hi"), "hi"},
		{starlark.MakeInt(7), "7"},
		{starlark.Float(2), "2"},
		{starlark.Float(2.5), "2.5"},
		{starlark.True, "true"},
		{starlark.NewList([]starlark.Value{starlark.MakeInt(1)}), "[1]"},
	}
	for _, tt := range tests {
		if got := Text(tt.in); got != tt.want {
			t.Errorf("Text(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDecodeYAMLKeepsOrder(t *testing.T) {
	rec, err := DecodeYAML(strings.NewReader(`
title: Users
users:
  - {name: Al, id: 1}
  - {name: Bo, id: 2}
count: 0
ratio: 0.5
none: ~
ports: {80: http}
`))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"title", "users", "count", "ratio", "none", "ports"}, rec.Keys()); diff != "" {
		t.Errorf("keys (-want +got):\n%s", diff)
	}
	users, _ := rec.Field("users")
	first := users.(*starlark.List).Index(0).(*Record)
	if diff := cmp.Diff([]string{"name", "id"}, first.Keys()); diff != "" {
		t.Errorf("nested keys (-want +got):\n%s", diff)
	}
	if v, _ := rec.Field("ratio"); v != starlark.Float(0.5) {
		t.Errorf("ratio = %v", v)
	}
	if v, _ := rec.Field("none"); v != starlark.None {
		t.Errorf("none = %v", v)
	}
	if v, _ := rec.Field("ports"); v.Type() != "dict" {
		t.Errorf("non-string keys should make a dict, got %s", v.Type())
	}

	empty, err := DecodeYAML(strings.NewReader(""))
	if err != nil || empty.Len() != 0 {
		t.Errorf("empty document = %v, %v", empty, err)
	}
	if _, err := DecodeYAML(strings.NewReader("- 1\n- 2\n")); err == nil {
		t.Error("a top-level sequence should be rejected")
	}
}

func TestElement(t *testing.T) {
	root, err := dom.ParseString(`<input id="name" value="Al" data-x="1"><input type="checkbox" checked>`)
	if err != nil {
		t.Fatal(err)
	}
	input := root.FirstChild
	s := scopeOf()
	s.Define("el", ElementOf(input))
	s.Define("box", ElementOf(input.NextSibling))
	s.Define("same", ElementOf(input))

	tests := []struct {
		text string
		want string
	}{
		{"el.tag", "input"},
		{"el.id", "name"},
		{"el.value", "Al"},
		{"el.attr('data-x')", "1"},
		{"el.attr('nope')", ""},
		{"box.checked", "true"},
		{"el == same", "true"},
		{"el == box", "false"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := Text(eval(t, tt.text, s)); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
