package swap

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/net/html"
)

// run builds <ul> with one <li> per name followed by an anchor comment.
func run(names string) (map[string]*html.Node, *html.Node, []*html.Node) {
	ul := &html.Node{Type: html.ElementNode, Data: "ul"}
	anchor := &html.Node{Type: html.CommentNode}
	ul.AppendChild(anchor)
	nodes := make(map[string]*html.Node)
	var order []*html.Node
	for _, name := range strings.Fields(names) {
		li := &html.Node{Type: html.ElementNode, Data: "li", Attr: []html.Attribute{{Key: "id", Val: name}}}
		nodes[name] = li
		ul.InsertBefore(li, anchor)
		order = append(order, li)
	}
	return nodes, anchor, order
}

func pick(nodes map[string]*html.Node, names string) []*html.Node {
	var out []*html.Node
	for _, name := range strings.Fields(names) {
		n, ok := nodes[name]
		if !ok {
			n = &html.Node{Type: html.ElementNode, Data: "li", Attr: []html.Attribute{{Key: "id", Val: name}}}
			nodes[name] = n
		}
		out = append(out, n)
	}
	return out
}

func ids(anchor *html.Node) string {
	var out []string
	for c := anchor.Parent.FirstChild; c != nil && c != anchor; c = c.NextSibling {
		out = append(out, c.Attr[0].Val)
	}
	return strings.Join(out, " ")
}

func TestSwap(t *testing.T) {
	tests := []struct {
		name                     string
		prev, next               string
		inserts, moves, removals int
	}{
		{"rotate right", "A B C", "C A B", 0, 1, 0},
		{"rotate left", "A B C", "B C A", 0, 1, 0},
		{"reverse", "A B C D", "D C B A", 0, 3, 0},
		{"unchanged", "A B C", "A B C", 0, 0, 0},
		{"append", "A B", "A B C", 1, 0, 0},
		{"prepend", "A B", "Z A B", 1, 0, 0},
		{"remove middle", "A B C", "A C", 0, 0, 1},
		{"clear", "A B C", "", 0, 0, 3},
		{"from empty", "", "A B", 2, 0, 0},
		{"mixed", "A B C D E", "E B X D", 1, 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes, anchor, prev := run(tt.prev)
			ops := Swap(anchor, prev, pick(nodes, tt.next))

			if got := ids(anchor); got != tt.next {
				t.Errorf("order = %q, want %q", got, tt.next)
			}
			inserts, moves, removals := Count(ops)
			if diff := cmp.Diff([]int{tt.inserts, tt.moves, tt.removals}, []int{inserts, moves, removals}); diff != "" {
				t.Errorf("insert/move/remove counts (-want +got):\n%s\nops: %v", diff, ops)
			}
			if anchor.Parent.LastChild != anchor {
				t.Error("items must stay before the anchor")
			}
		})
	}
}

func TestSwapDetachedAnchor(t *testing.T) {
	nodes, anchor, prev := run("A B")
	anchor.Parent.RemoveChild(anchor)
	if ops := Swap(anchor, prev, pick(nodes, "B A")); ops != nil {
		t.Errorf("detached anchor should be a no-op, got %v", ops)
	}
}

func TestIncreasing(t *testing.T) {
	tests := []struct {
		seq  []int
		want []bool
	}{
		{[]int{2, 0, 1}, []bool{false, true, true}},
		{[]int{0, 1, 2}, []bool{true, true, true}},
		{[]int{-1, 0, -1, 1}, []bool{false, true, false, true}},
		{[]int{3, 2, 1, 0}, []bool{false, false, false, true}},
		{nil, []bool{}},
	}
	for _, tt := range tests {
		got := increasing(tt.seq)
		if len(tt.seq) == 0 {
			if len(got) != 0 {
				t.Errorf("increasing(nil) = %v", got)
			}
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("increasing(%v) (-want +got):\n%s", tt.seq, diff)
		}
	}
}
