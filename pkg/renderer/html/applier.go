// Package html serializes a live tree for inspection: placeholders left by
// :if and :each are dropped, and output can be indented for reading.
package html

import (
	"fmt"
	"io"
	"strings"

	"github.com/recera/reflow/pkg/directive"
	"github.com/recera/reflow/pkg/dom"
	"golang.org/x/net/html"
)

// voidElements are HTML elements that cannot have children
var voidElements = map[string]bool{
	"area":   true,
	"base":   true,
	"br":     true,
	"col":    true,
	"embed":  true,
	"hr":     true,
	"img":    true,
	"input":  true,
	"link":   true,
	"meta":   true,
	"param":  true,
	"source": true,
	"track":  true,
	"wbr":    true,
}

// booleanAttributes are HTML attributes that are boolean flags
var booleanAttributes = map[string]bool{
	"checked":   true,
	"disabled":  true,
	"readonly":  true,
	"required":  true,
	"selected":  true,
	"defer":     true,
	"async":     true,
	"multiple":  true,
	"autofocus": true,
	"hidden":    true,
}

// Options controls serialization.
type Options struct {
	// Indent, when set, puts each child element on its own line.
	Indent string
	// Placeholders renders the comment anchors of :if and :each.
	Placeholders bool
}

// Renderer writes nodes as HTML.
type Renderer struct {
	w    io.Writer
	opts Options
	err  error
}

// NewRenderer creates a renderer writing to w.
func NewRenderer(w io.Writer, opts Options) *Renderer {
	return &Renderer{w: w, opts: opts}
}

// Render writes n. A document node renders its children.
func (r *Renderer) Render(n *html.Node) error {
	if n == nil {
		return nil
	}
	if n.Type == html.DocumentNode {
		r.renderChildren(n, 0)
	} else {
		r.renderNode(n, 0)
	}
	if r.err == nil && r.opts.Indent != "" {
		r.write("\n")
	}
	return r.err
}

// write helper that tracks errors
func (r *Renderer) write(s string) {
	if r.err != nil {
		return
	}
	_, r.err = io.WriteString(r.w, s)
}

func (r *Renderer) newline(depth int) {
	if r.opts.Indent == "" {
		return
	}
	r.write("\n")
	r.write(strings.Repeat(r.opts.Indent, depth))
}

// renderNode renders a single node
func (r *Renderer) renderNode(n *html.Node, depth int) {
	if r.err != nil {
		return
	}
	switch n.Type {
	case html.TextNode:
		text := n.Data
		if r.opts.Indent != "" {
			text = strings.TrimSpace(text)
		}
		r.write(html.EscapeString(text))
	case html.ElementNode:
		r.renderElement(n, depth)
	case html.CommentNode:
		if dom.IsPlaceholder(n) && !r.opts.Placeholders {
			return
		}
		r.write("<!--" + n.Data + "-->")
	case html.DoctypeNode:
		r.write("<!DOCTYPE " + n.Data + ">")
	case html.DocumentNode:
		r.renderChildren(n, depth)
	}
}

// visible reports whether n produces output.
func (r *Renderer) visible(n *html.Node) bool {
	switch n.Type {
	case html.TextNode:
		return r.opts.Indent == "" || strings.TrimSpace(n.Data) != ""
	case html.CommentNode:
		return !dom.IsPlaceholder(n) || r.opts.Placeholders
	}
	return true
}

func (r *Renderer) renderChildren(parent *html.Node, depth int) {
	first := true
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if !r.visible(c) {
			continue
		}
		if !first || parent.Type != html.DocumentNode {
			r.newline(depth)
		}
		first = false
		r.renderNode(c, depth)
	}
}

// inline reports whether an element's content stays on its line: no
// child elements, or nothing at all.
func inline(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return false
		}
	}
	return true
}

// renderElement renders an element node
func (r *Renderer) renderElement(n *html.Node, depth int) {
	r.write("<")
	r.write(n.Data)

	for _, a := range n.Attr {
		// Unprocessed directives are not part of the output.
		if a.Namespace == "" && strings.HasPrefix(a.Key, directive.Prefix) {
			continue
		}
		key := a.Key
		if a.Namespace != "" {
			key = a.Namespace + ":" + key
		}
		if booleanAttributes[key] && (a.Val == "" || a.Val == key) {
			r.write(" ")
			r.write(key)
			continue
		}

		val := a.Val
		// Security: prevent javascript: URLs in href/src attributes
		if (key == "href" || key == "src") && strings.HasPrefix(strings.ToLower(strings.TrimSpace(val)), "javascript:") {
			val = "#"
		}
		r.write(" ")
		r.write(key)
		r.write(`="`)
		r.write(html.EscapeString(val))
		r.write(`"`)
	}
	r.write(">")

	// Void elements don't have closing tags or children
	if voidElements[n.Data] {
		return
	}

	// Script and style content is raw text
	if n.Data == "script" || n.Data == "style" {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				r.write(c.Data)
			}
		}
	} else if inline(n) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if r.visible(c) {
				r.renderNode(c, depth+1)
			}
		}
	} else {
		r.renderChildren(n, depth+1)
		r.newline(depth)
	}

	r.write("</")
	r.write(n.Data)
	r.write(">")
}

// RenderToString is a convenience function to render a node to a string
func RenderToString(n *html.Node) (string, error) {
	return RenderWith(n, Options{})
}

// RenderWith renders n with opts.
func RenderWith(n *html.Node, opts Options) (string, error) {
	var buf strings.Builder
	if err := NewRenderer(&buf, opts).Render(n); err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	return buf.String(), nil
}
