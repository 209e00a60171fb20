package expr

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/recera/reflow/pkg/diag"
	"github.com/recera/reflow/pkg/reactive"
	"go.starlark.net/starlark"
)

func scopeOf(kv ...any) *reactive.Scope {
	s := reactive.NewScope()
	for i := 0; i+1 < len(kv); i += 2 {
		s.Define(kv[i].(string), MustValue(kv[i+1]))
	}
	return s
}

func eval(t *testing.T, text string, s *reactive.Scope) starlark.Value {
	t.Helper()
	ev, err := Lookup(text)
	if err != nil {
		t.Fatalf("Lookup(%q): %v", text, err)
	}
	v, err := ev.Eval(s)
	if err != nil {
		t.Fatalf("Eval(%q): %v", text, err)
	}
	return v
}

func TestLookupIsCachedByText(t *testing.T) {
	a, err := Lookup("count + 1")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := Lookup("count + 1")
	if a != b {
		t.Error("identical text should yield the identical evaluator")
	}
	c, _ := Lookup("count + 2")
	if a == c {
		t.Error("different text should yield different evaluators")
	}

	bad1, err1 := Lookup("1 +")
	bad2, err2 := Lookup("1 +")
	if err1 == nil || err2 == nil {
		t.Fatal("malformed text should fail to compile")
	}
	if bad1 != bad2 {
		t.Error("compile failures should be cached too")
	}
}

func TestEvaluatorsHoldNoState(t *testing.T) {
	one := scopeOf("count", 1)
	two := scopeOf("count", 41)
	if v := eval(t, "count + 1", one); Text(v) != "2" {
		t.Errorf("first scope = %v", v)
	}
	if v := eval(t, "count + 1", two); Text(v) != "42" {
		t.Errorf("second scope = %v", v)
	}
	if v := eval(t, "count + 1", one); Text(v) != "2" {
		t.Errorf("first scope again = %v", v)
	}
}

func TestFreeNamesResolveThroughChain(t *testing.T) {
	root := scopeOf("users", []any{"Al", "Bo"}, "title", "Users")
	item := root.Child()
	item.Define("user", starlark.String("Bo"))
	item.Define("len", starlark.String("shadowed"))

	if v := eval(t, `title + ": " + user`, item); Text(v) != "Users: Bo" {
		t.Errorf("got %v", v)
	}
	if v := eval(t, `len`, item); Text(v) != "shadowed" {
		t.Errorf("state should shadow universals, got %v", v)
	}
	if v := eval(t, `str(len(users))`, root); Text(v) != "2" {
		t.Errorf("universals should resolve when state lacks them, got %v", v)
	}

	ev, _ := Lookup(`[u for u in users if u != skip]`)
	if diff := cmp.Diff([]string{"users", "skip"}, ev.Free()); diff != "" {
		t.Errorf("Free mismatch (-want +got):\n%s", diff)
	}
}

func TestStatementForm(t *testing.T) {
	s := scopeOf("n", 3)
	tests := []struct {
		text string
		want string
	}{
		{"if n > 2:\n    return 'big'\nreturn 'small'", "big"},
		{"x = n * 2\nreturn x", "6"},
		{"total = 0\nfor i in range(n):\n    total += i\nreturn total", "3"},
		{"    y = n\n    return y + 1", "4"},
		{"return n", "3"},
		{"z = 1", ""},
		{"n if n else 0", "3"},
	}
	for _, tt := range tests {
		t.Run(strings.ReplaceAll(tt.text, "\n", "; "), func(t *testing.T) {
			if got := Text(eval(t, tt.text, s)); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	ev, _ := Lookup("n if n else 0")
	if ev.Statement {
		t.Error("conditional expressions are not statements")
	}
}

func TestUndefinedName(t *testing.T) {
	ev, err := Lookup("missing + 1")
	if err != nil {
		t.Fatal(err)
	}
	_, err = ev.Eval(reactive.NewScope())
	var ue *UndefinedError
	if !errors.As(err, &ue) || ue.Name != "missing" {
		t.Fatalf("err = %v, want undefined: missing", err)
	}
}

func TestCompileContainsErrors(t *testing.T) {
	var list diag.List
	fn, err := Compile(nil, "(", ":text", &list)
	if err == nil {
		t.Fatal("Compile should return the compile error")
	}
	if v := fn(reactive.NewScope()); v != starlark.None {
		t.Errorf("failed compile should evaluate to None, got %v", v)
	}
	errs := list.Drain()
	if len(errs) != 1 || errs[0].Kind != diag.CompileError || errs[0].Label != ":text" || errs[0].Expr != "(" {
		t.Fatalf("errors = %v", errs)
	}

	fn, err = Compile(nil, "1 // zero", ":text", &list)
	if err != nil {
		t.Fatal(err)
	}
	s := scopeOf("zero", 0)
	if v := fn(s); v != starlark.None {
		t.Errorf("failed evaluation should be None, got %v", v)
	}
	fn(s)
	errs = list.Drain()
	if len(errs) != 2 || errs[0].Kind != diag.EvaluationError {
		t.Fatalf("each failing call should report, got %v", errs)
	}
	if !strings.Contains(errs[0].Error(), "division by zero") {
		t.Errorf("message = %q", errs[0].Error())
	}
}

func TestUpdateWritesThroughScope(t *testing.T) {
	root := scopeOf("count", 1)
	child := root.Child()
	var changed []string
	root.Watch(func(name string) { changed = append(changed, name) })

	eval(t, "update(count = count + 1, flag = True)", child)

	if v, _ := root.Lookup("count"); Text(v) != "2" {
		t.Errorf("count = %v", v)
	}
	if !child.Owns("flag") {
		t.Error("new names land in the evaluating scope")
	}
	if diff := cmp.Diff([]string{"count", "flag"}, changed); diff != "" {
		t.Errorf("notifications (-want +got):\n%s", diff)
	}
}

func TestCall(t *testing.T) {
	s := scopeOf("count", 0)
	handler := eval(t, "lambda e: update(count = count + e)", s)
	if !Callable(handler) {
		t.Fatalf("handler is %s", handler.Type())
	}
	if _, err := Call(handler, starlark.MakeInt(5)); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.Lookup("count"); Text(v) != "5" {
		t.Errorf("count = %v", v)
	}

	noArgs := eval(t, "lambda: 'ok'", s)
	v, err := Call(noArgs, starlark.MakeInt(1))
	if err != nil || Text(v) != "ok" {
		t.Errorf("zero-parameter call = %v, %v", v, err)
	}

	_, err = Call(eval(t, "lambda e: e.nope", s), starlark.MakeInt(1))
	if err == nil {
		t.Error("errors inside handlers should be returned")
	}

	panics := starlark.NewBuiltin("panics", func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
		panic("kaboom")
	})
	if _, err := Call(panics, starlark.MakeInt(1)); err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Errorf("a panicking handler should come back as an error, got %v", err)
	}
}

func TestEncodeDecode(t *testing.T) {
	ev, err := Lookup("a * b")
	if err != nil {
		t.Fatal(err)
	}
	data, err := ev.Encode()
	if err != nil {
		t.Fatal(err)
	}
	back, err := Decode("a * b", data)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(ev.Free(), back.Free()); diff != "" {
		t.Errorf("free names (-want +got):\n%s", diff)
	}
	v, err := back.Eval(scopeOf("a", 6, "b", 7))
	if err != nil || Text(v) != "42" {
		t.Errorf("decoded eval = %v, %v", v, err)
	}
}

type memStore struct {
	saved map[string][]byte
	loads int
}

func (m *memStore) LoadProgram(text string) (*Evaluator, bool) {
	data, ok := m.saved[text]
	if !ok {
		return nil, false
	}
	ev, err := Decode(text, data)
	if err != nil {
		return nil, false
	}
	m.loads++
	return ev, true
}

func (m *memStore) SaveProgram(ev *Evaluator) error {
	data, err := ev.Encode()
	if err != nil {
		return err
	}
	m.saved[ev.Text] = data
	return nil
}

func TestProgramStore(t *testing.T) {
	m := &memStore{saved: make(map[string][]byte)}
	SetProgramStore(m)
	defer SetProgramStore(nil)

	if _, err := Lookup("stored_a + 1"); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.saved["stored_a + 1"]; !ok {
		t.Error("compiled programs should be saved")
	}

	data := m.saved["stored_a + 1"]
	m.saved["stored_b + 1"] = data
	ev, err := Lookup("stored_b + 1")
	if err != nil {
		t.Fatal(err)
	}
	if m.loads != 1 {
		t.Errorf("loads = %d, want 1", m.loads)
	}
	if diff := cmp.Diff([]string{"stored_a"}, ev.Free()); diff != "" {
		t.Errorf("loaded program should be the stored one (-want +got):\n%s", diff)
	}
}
