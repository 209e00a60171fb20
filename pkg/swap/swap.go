// Package swap reorders a run of sibling nodes with as few moves as
// possible. Nodes that keep their relative order (the longest increasing
// subsequence of their old positions) stay where they are; everything else
// is moved or inserted once.
package swap

import (
	"fmt"

	"github.com/recera/reflow/pkg/diag"
	"golang.org/x/net/html"
)

// OpKind is the kind of a tree mutation.
type OpKind uint8

const (
	// OpInsert attaches a node that was not in the old run.
	OpInsert OpKind = iota + 1
	// OpMove repositions a node that was already in the old run.
	OpMove
	// OpRemove detaches a node that is not in the new run.
	OpRemove
)

// Op records one mutation made by Swap.
type Op struct {
	Kind   OpKind
	Node   *html.Node
	Before *html.Node
}

// String returns a human-readable representation of the op
func (o Op) String() string {
	switch o.Kind {
	case OpInsert:
		return fmt.Sprintf("Insert(%s, before=%s)", describe(o.Node), describe(o.Before))
	case OpMove:
		return fmt.Sprintf("Move(%s, before=%s)", describe(o.Node), describe(o.Before))
	case OpRemove:
		return fmt.Sprintf("Remove(%s)", describe(o.Node))
	default:
		return fmt.Sprintf("Unknown(op=%d)", o.Kind)
	}
}

func describe(n *html.Node) string {
	if n == nil {
		return "nil"
	}
	if n.Type == html.CommentNode && n.Data == "" {
		return "<!---->"
	}
	return diag.Describe(n)
}

// Swap turns the run prev, which sits immediately before anchor, into the
// run next. Nodes only in prev are detached, nodes only in next are
// inserted, and nodes in both are moved only when they fall outside the
// longest run that already has the right relative order. It returns the
// mutations made, in order. A detached anchor leaves the tree untouched.
func Swap(anchor *html.Node, prev, next []*html.Node) []Op {
	parent := anchor.Parent
	if parent == nil {
		return nil
	}

	var ops []Op
	inNext := make(map[*html.Node]bool, len(next))
	for _, n := range next {
		inNext[n] = true
	}

	old := make(map[*html.Node]int, len(prev))
	for _, n := range prev {
		if inNext[n] {
			old[n] = len(old)
			continue
		}
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
			ops = append(ops, Op{Kind: OpRemove, Node: n})
		}
	}

	seq := make([]int, len(next))
	for i, n := range next {
		if j, ok := old[n]; ok && n.Parent == parent {
			seq[i] = j
		} else {
			seq[i] = -1
		}
	}
	stable := increasing(seq)

	ref := anchor
	for i := len(next) - 1; i >= 0; i-- {
		n := next[i]
		if !stable[i] {
			kind := OpInsert
			if seq[i] >= 0 {
				kind = OpMove
			}
			if n.Parent != nil {
				n.Parent.RemoveChild(n)
			}
			parent.InsertBefore(n, ref)
			ops = append(ops, Op{Kind: kind, Node: n, Before: ref})
		}
		ref = n
	}
	return ops
}

// increasing marks the positions of a longest strictly increasing
// subsequence of seq, ignoring negative entries.
func increasing(seq []int) []bool {
	marks := make([]bool, len(seq))
	// tails[k] is the position in seq of the smallest tail of an
	// increasing subsequence of length k+1.
	var tails []int
	prevPos := make([]int, len(seq))
	for i, v := range seq {
		if v < 0 {
			continue
		}
		lo, hi := 0, len(tails)
		for lo < hi {
			mid := (lo + hi) / 2
			if seq[tails[mid]] < v {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		if lo > 0 {
			prevPos[i] = tails[lo-1]
		} else {
			prevPos[i] = -1
		}
		if lo == len(tails) {
			tails = append(tails, i)
		} else {
			tails[lo] = i
		}
	}
	if len(tails) == 0 {
		return marks
	}
	for i := tails[len(tails)-1]; i >= 0; i = prevPos[i] {
		marks[i] = true
	}
	return marks
}

// Count tallies ops by kind.
func Count(ops []Op) (inserts, moves, removes int) {
	for _, op := range ops {
		switch op.Kind {
		case OpInsert:
			inserts++
		case OpMove:
			moves++
		case OpRemove:
			removes++
		}
	}
	return
}
