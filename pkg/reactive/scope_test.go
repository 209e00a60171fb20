package reactive

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.starlark.net/starlark"
)

func TestScope_LookupDelegatesToParent(t *testing.T) {
	root := NewScope()
	root.Define("a", starlark.MakeInt(1))
	child := root.Child()
	grandchild := child.Child()

	v, ok := grandchild.Lookup("a")
	if !ok || !isInt(v, 1) {
		t.Errorf("Lookup(a) = %v, %v", v, ok)
	}
	if _, ok := grandchild.Lookup("missing"); ok {
		t.Error("missing names should not resolve")
	}
	if grandchild.Root() != root {
		t.Error("Root() should return the outermost scope")
	}
}

func TestScope_ChildDefinitionsDoNotLeak(t *testing.T) {
	root := NewScope()
	root.Define("a", starlark.MakeInt(1))
	child := root.Child()
	child.Define("a", starlark.MakeInt(2))
	child.Define("b", starlark.MakeInt(3))

	if v, _ := root.Lookup("a"); !isInt(v, 1) {
		t.Errorf("parent a = %v, want 1", v)
	}
	if root.Has("b") {
		t.Error("parent should not see child definitions")
	}
	if v, _ := child.Lookup("a"); !isInt(v, 2) {
		t.Errorf("child a = %v, want 2", v)
	}
}

func TestScope_SetWritesOwner(t *testing.T) {
	root := NewScope()
	root.Define("count", starlark.MakeInt(0))
	child := root.Child()

	child.Set("count", starlark.MakeInt(5))
	child.Set("local", starlark.True)

	if child.Owns("count") {
		t.Error("Set should write to the layer that owns the name")
	}
	if v, _ := root.Lookup("count"); !isInt(v, 5) {
		t.Errorf("root count = %v, want 5", v)
	}
	if !child.Owns("local") || root.Has("local") {
		t.Error("new names should land in the scope they were set on")
	}
}

func TestScope_WatchAndBatch(t *testing.T) {
	root := NewScope()
	var got []string
	cancel := root.Watch(func(name string) { got = append(got, name) })

	root.Child().Set("x", starlark.MakeInt(1))
	root.Define("quiet", starlark.None)
	root.Batch(func() {
		root.Set("y", starlark.MakeInt(1))
		root.Set("y", starlark.MakeInt(2))
		root.Set("z", starlark.MakeInt(3))
		if len(got) != 1 {
			t.Errorf("batched writes should not notify early, got %v", got)
		}
	})
	cancel()
	root.Set("after", starlark.None)

	if diff := cmp.Diff([]string{"x", "y", "z"}, got); diff != "" {
		t.Errorf("notifications mismatch (-want +got):\n%s", diff)
	}
}

func TestScope_KeysAndNames(t *testing.T) {
	root := NewScope()
	root.Define("b", starlark.None)
	root.Define("a", starlark.None)
	child := root.Child()
	child.Define("c", starlark.None)
	child.Define("a", starlark.None)

	if diff := cmp.Diff([]string{"b", "a"}, root.Keys()); diff != "" {
		t.Errorf("Keys mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"c", "a", "b"}, child.Names()); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}

	root.Delete("b")
	if root.Has("b") {
		t.Error("Delete should remove the name")
	}
}

func isInt(v starlark.Value, want int) bool {
	if v == nil {
		return false
	}
	eq, err := starlark.Equal(v, starlark.MakeInt(want))
	return err == nil && eq
}
