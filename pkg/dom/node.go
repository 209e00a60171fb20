// Package dom is the host tree the directive runtime mutates. It works on
// golang.org/x/net/html node trees and adds the pieces a browser DOM would
// provide: style and dataset access, deep cloning, position-preserving
// replacement, form control state and event listeners.
package dom

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ParseFragment parses markup as the children of a <body> element and
// returns them under a fresh document node.
func ParseFragment(r io.Reader) (*html.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(r, ctx)
	if err != nil {
		return nil, err
	}
	root := &html.Node{Type: html.DocumentNode}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return root, nil
}

// ParseString is ParseFragment over a string.
func ParseString(markup string) (*html.Node, error) {
	return ParseFragment(strings.NewReader(markup))
}

// NewPlaceholder returns an inert anchor node. Placeholders are empty
// comments: they keep a position in the tree and render as nothing.
func NewPlaceholder() *html.Node {
	return &html.Node{Type: html.CommentNode}
}

// IsPlaceholder reports whether n is an anchor created by NewPlaceholder.
func IsPlaceholder(n *html.Node) bool {
	return n != nil && n.Type == html.CommentNode && n.Data == ""
}

// IsElement reports whether n is an element node.
func IsElement(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode
}

// Attr returns the value of the named attribute.
func Attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// HasAttr reports whether the named attribute is present.
func HasAttr(n *html.Node, name string) bool {
	_, ok := Attr(n, name)
	return ok
}

// SetAttr sets an attribute, keeping its position if it already exists.
func SetAttr(n *html.Node, name, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: val})
}

// RemoveAttr deletes an attribute. Missing attributes are ignored.
func RemoveAttr(n *html.Node, name string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			n.Attr = append(n.Attr[:i:i], n.Attr[i+1:]...)
			return
		}
	}
}

// Text returns the concatenated text content of n and its descendants.
func Text(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		for ; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				sb.WriteString(c.Data)
			case html.ElementNode:
				walk(c.FirstChild)
			}
		}
	}
	walk(n.FirstChild)
	return sb.String()
}

// SetText replaces all children of n with a single text node.
func SetText(n *html.Node, s string) {
	if n.Type == html.TextNode {
		n.Data = s
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	if s != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: s})
	}
}

// Clone returns a deep copy of n that is not attached to any tree.
func Clone(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		c.Attr = make([]html.Attribute, len(n.Attr))
		copy(c.Attr, n.Attr)
	}
	for k := n.FirstChild; k != nil; k = k.NextSibling {
		c.AppendChild(Clone(k))
	}
	return c
}

// Remove detaches n from its parent. Detached nodes are left alone.
func Remove(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// ReplaceWith puts repl at the position of old and detaches old. If repl
// is attached elsewhere it is moved. Nothing happens when old is detached.
func ReplaceWith(old, repl *html.Node) {
	if old == repl || old.Parent == nil {
		return
	}
	parent := old.Parent
	Remove(repl)
	parent.InsertBefore(repl, old)
	parent.RemoveChild(old)
}

// InsertBefore inserts n into parent before ref, or appends it when ref is
// nil. An attached n is moved.
func InsertBefore(parent, n, ref *html.Node) {
	if n == ref {
		return
	}
	Remove(n)
	parent.InsertBefore(n, ref)
}

// NextElementSibling returns the next sibling that is an element,
// skipping text, comments and placeholders.
func NextElementSibling(n *html.Node) *html.Node {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}
	return nil
}

// Contains reports whether n is root or one of its descendants.
func Contains(root, n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == root {
			return true
		}
	}
	return false
}

// Dashcase converts camelCase keys to dash-case: ariaLabel -> aria-label.
func Dashcase(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= 'A' && r <= 'Z' || r >= 0xC0 && r <= 0xDE && r != 0xD7 {
			sb.WriteByte('-')
			sb.WriteString(strings.ToLower(string(r)))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
