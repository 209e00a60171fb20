package directive

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/recera/reflow/pkg/diag"
	"github.com/recera/reflow/pkg/dom"
	"github.com/recera/reflow/pkg/reactive"
	"golang.org/x/net/html"
)

func attr(t *testing.T, n *html.Node, name string) string {
	t.Helper()
	v, ok := dom.Attr(n, name)
	if !ok {
		return "<unset>"
	}
	return v
}

func TestClass(t *testing.T) {
	f := mount(t, `<p class="a" :class="c"></p>`, "c", map[string]any{"b": true, "x": false})
	p := f.query("p")

	tests := []struct {
		name string
		c    any
		want string
	}{
		{"mapping", map[string]any{"b": true, "x": false}, "a b"},
		{"list", []any{"c", "", "d"}, "a c d"},
		{"string", "e f", "a e f"},
		{"none", nil, "a"},
	}
	for _, tt := range tests {
		f.set("c", tt.c)
		if got := attr(t, p, "class"); got != tt.want {
			t.Errorf("%s: class = %q, want %q", tt.name, got, tt.want)
		}
	}
	f.expectNoErrors()

	f.set("c", 5)
	errs := f.drain()
	if len(errs) != 1 || errs[0].Kind != diag.ConfigurationError {
		t.Errorf("errors = %v", errs)
	}

	g := mount(t, `<p :class="{'on': flag}"></p>`, "flag", false)
	if got := attr(t, g.query("p"), "class"); got != "<unset>" {
		t.Errorf("no classes should remove the attribute, got %q", got)
	}
}

func TestStyle(t *testing.T) {
	f := mount(t, `<p style="color: red" :style="s"></p>`, "s", map[string]any{"fontSize": "12px"})
	p := f.query("p")
	if got := attr(t, p, "style"); got != "color: red; font-size: 12px;" {
		t.Errorf("mapping: %q", got)
	}
	f.set("s", map[string]any{"marginTop": "1em"})
	if got := attr(t, p, "style"); got != "color: red; margin-top: 1em;" {
		t.Errorf("a new mapping starts from the initial style: %q", got)
	}
	f.set("s", "margin: 0")
	if got := attr(t, p, "style"); got != "color: red; margin: 0" {
		t.Errorf("string: %q", got)
	}
	f.set("s", nil)
	if got := attr(t, p, "style"); got != "color: red;" {
		t.Errorf("none: %q", got)
	}
	f.expectNoErrors()
}

func TestID(t *testing.T) {
	f := mount(t, `<p :id="v"></p>`, "v", "x")
	p := f.query("p")
	tests := []struct {
		v    any
		want string
	}{
		{"main", "main"},
		{0, "0"},
		{"", "<unset>"},
		{false, "<unset>"},
		{nil, "<unset>"},
		{7, "7"},
	}
	for _, tt := range tests {
		f.set("v", tt.v)
		if got := attr(t, p, "id"); got != tt.want {
			t.Errorf("v=%v: id = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestFormValues(t *testing.T) {
	f := mount(t, `<input :value="name"><input type="checkbox" :value="agree"><textarea :value="name"></textarea>`+
		`<select :value="pick"><option>a</option><option value="b">B</option></select>`,
		"name", "Al", "agree", true, "pick", "b")
	inputs := f.queryAll("input")
	if got := dom.Value(inputs[0]); got != "Al" {
		t.Errorf("text value = %q", got)
	}
	if !dom.Checked(inputs[1]) {
		t.Error("checkbox should be checked")
	}
	if got := dom.Value(f.query("textarea")); got != "Al" {
		t.Errorf("textarea = %q", got)
	}
	if got := dom.Value(f.query("select")); got != "b" {
		t.Errorf("select = %q", got)
	}

	f.set("agree", []any{})
	if dom.Checked(inputs[1]) {
		t.Error("an empty list is falsy")
	}
	f.expectNoErrors()
}

func TestDataAriaAndBag(t *testing.T) {
	f := mount(t, `<p aria-hidden="true" :data="{'userId': id}" :aria="{'label': label, 'hidden': None}" :="{'tabIndex': 0, 'disabled': off, 'draggable': True}"></p>`,
		"id", 7, "label", "Close", "off", false)
	p := f.query("p")

	want := map[string]string{
		"data-user-id": "7",
		"aria-label":   "Close",
		"aria-hidden":  "<unset>",
		"tab-index":    "0",
		"disabled":     "<unset>",
		"draggable":    "",
	}
	got := make(map[string]string, len(want))
	for name := range want {
		got[name] = attr(t, p, name)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("attributes (-want +got):\n%s", diff)
	}

	f.set("off", true)
	if got := attr(t, p, "disabled"); got != "" {
		t.Errorf("disabled = %q", got)
	}
	f.expectNoErrors()
}

func TestFallbackSetsAttribute(t *testing.T) {
	f := mount(t, `<a :href="'/u/' + str(id)" :title="None">x</a>`, "id", 3)
	if got := f.render(); got != `<a href="/u/3">x</a>` {
		t.Errorf("got %q", got)
	}
}

func TestRef(t *testing.T) {
	f := mount(t, `<input :ref="box"><b :text="box.tag"></b><i :ref="1x"></i>`)
	if got := dom.Text(f.query("b")); got != "input" {
		t.Errorf("text = %q", got)
	}
	errs := f.drain()
	if len(errs) != 1 || errs[0].Kind != diag.ConfigurationError || errs[0].Label != ":ref" {
		t.Errorf("errors = %v", errs)
	}
}

func TestInterpolation(t *testing.T) {
	f := mount(t, `<p>Hello {{ name }}! {{ 1 + 1 }} {{}}</p><script>{{name}}</script>`, "name", "Al")
	if got := dom.Text(f.query("p")); got != "Hello Al! 2 {{}}" {
		t.Errorf("text = %q", got)
	}
	if got := dom.Text(f.query("script")); got != "{{name}}" {
		t.Errorf("script content should be left alone, got %q", got)
	}
	f.set("name", "Bo")
	if got := dom.Text(f.query("p")); got != "Hello Bo! 2 {{}}" {
		t.Errorf("after update = %q", got)
	}
	f.expectNoErrors()
}

func TestSplitInterpolation(t *testing.T) {
	tests := []struct {
		in   string
		want []segment
		ok   bool
	}{
		{in: "plain", want: []segment{{text: "plain"}}},
		{in: "{{a}}", want: []segment{{text: "a", expr: true}}, ok: true},
		{in: "x {{ a }} y", want: []segment{{text: "x "}, {text: "a", expr: true}, {text: " y"}}, ok: true},
		{in: "{{ unterminated", want: []segment{{text: "{{ unterminated"}}},
	}
	for _, tt := range tests {
		got, ok := splitInterpolation(tt.in)
		if ok != tt.ok {
			t.Errorf("%q: ok = %v", tt.in, ok)
		}
		if diff := cmp.Diff(tt.want, got, cmp.AllowUnexported(segment{})); diff != "" {
			t.Errorf("%q (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestFailuresStayLocal(t *testing.T) {
	f := mount(t, `<b :text="missing"></b><i :text="ok"></i><u :text="(">x</u><s :text="ok + '!'"></s>`, "ok", "fine")
	if got := f.render(); got != "<b></b><i>fine</i><u>x</u><s>fine!</s>" {
		t.Errorf("got %q", got)
	}
	errs := f.drain()
	if len(errs) != 2 {
		t.Fatalf("errors = %v", errs)
	}
	if errs[0].Kind != diag.CompileError || errs[1].Kind != diag.EvaluationError {
		t.Errorf("kinds = %v, %v", errs[0].Kind, errs[1].Kind)
	}
	if !strings.Contains(errs[1].Error(), "missing") {
		t.Errorf("message should name the undefined variable: %v", errs[1])
	}
}

func TestInitIsIdempotent(t *testing.T) {
	f := mount(t, `<div><p :text="n"></p><button :onclick="lambda e: None">{{n}}</button></div>`, "n", 1)
	bindings := f.ctx.Bindings()
	button := f.query("button")
	for i := 0; i < 4; i++ {
		f.flush()
	}
	if got := f.ctx.Bindings(); got != bindings {
		t.Errorf("bindings grew from %d to %d", bindings, got)
	}
	if n := f.ctx.Doc.ListenerCount(button, "click"); n != 1 {
		t.Errorf("%d click listeners", n)
	}
	f.set("n", 2)
	if got := f.render(); got != "<div><p>2</p><button>2</button></div>" {
		t.Errorf("got %q", got)
	}
}

func TestPanickingDirectiveIsContained(t *testing.T) {
	f := setup(t, `<p :boom="1"></p><b :text="'ok'"></b>`)
	f.ctx.Registry.Register("boom", func(ctx *Context, el *html.Node, text string, s *reactive.Scope) Updater {
		return func(*reactive.Scope) { panic("kaboom") }
	})
	f.flush()
	if got := f.render(); got != "<p></p><b>ok</b>" {
		t.Errorf("got %q", got)
	}
	errs := f.drain()
	if len(errs) != 1 || errs[0].Label != ":boom" || !strings.Contains(errs[0].Error(), "panic: kaboom") {
		t.Fatalf("errors = %v", errs)
	}

	f.flush()
	if n := len(f.drain()); n != 1 {
		t.Errorf("the updater should run, and fail, on every pass: %d errors", n)
	}
}

func TestRegistry(t *testing.T) {
	want := []string{"", "aria", "class", "data", "each", "id", "if", "on", "ref", "style", "text", "value"}
	if diff := cmp.Diff(want, Default().Names()); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}

	r := NewRegistry()
	var seen []string
	r.SetFallback(func(ctx *Context, el *html.Node, name, text string, s *reactive.Scope) Updater {
		seen = append(seen, name+"="+text)
		return nil
	})
	f := setup(t, `<p :one="1" :two="2"></p>`)
	f.ctx.Registry = r
	f.flush()
	if diff := cmp.Diff([]string{"one=1", "two=2"}, seen); diff != "" {
		t.Errorf("fallback calls (-want +got):\n%s", diff)
	}
	if got := f.render(); got != "<p></p>" {
		t.Errorf("directive attributes should be removed, got %q", got)
	}
}
