package dom

import (
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// InputType returns the control type of a form element the way
// HTMLInputElement.type reports it: "text" for inputs without a type,
// "select-one"/"select-multiple" for selects and "textarea".
func InputType(n *html.Node) string {
	switch n.DataAtom {
	case atom.Select:
		if HasAttr(n, "multiple") {
			return "select-multiple"
		}
		return "select-one"
	case atom.Textarea:
		return "textarea"
	case atom.Input:
		if t, ok := Attr(n, "type"); ok && t != "" {
			return t
		}
		return "text"
	}
	return ""
}

// Value returns the current value of a form control.
func Value(n *html.Node) string {
	switch n.DataAtom {
	case atom.Textarea:
		return Text(n)
	case atom.Select:
		for _, o := range Options(n) {
			if HasAttr(o, "selected") {
				return optionValue(o)
			}
		}
		if opts := Options(n); len(opts) > 0 {
			return optionValue(opts[0])
		}
		return ""
	}
	v, _ := Attr(n, "value")
	return v
}

// SetValue sets the value of a form control. For selects the matching
// option becomes the only selected one.
func SetValue(n *html.Node, v string) {
	switch n.DataAtom {
	case atom.Textarea:
		SetText(n, v)
	case atom.Select:
		for _, o := range Options(n) {
			if optionValue(o) == v {
				SetAttr(o, "selected", "")
			} else {
				RemoveAttr(o, "selected")
			}
		}
	default:
		SetAttr(n, "value", v)
	}
}

// Checked reports the checked state of a checkbox or radio input.
func Checked(n *html.Node) bool {
	return HasAttr(n, "checked")
}

// SetChecked sets or clears the checked state.
func SetChecked(n *html.Node, on bool) {
	if on {
		SetAttr(n, "checked", "")
	} else {
		RemoveAttr(n, "checked")
	}
}

// Selected returns the options of a select that are currently selected.
func Selected(n *html.Node) []*html.Node {
	var out []*html.Node
	for _, o := range Options(n) {
		if HasAttr(o, "selected") {
			out = append(out, o)
		}
	}
	return out
}

// Options returns the option descendants of a select in document order.
func Options(n *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		for ; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if c.DataAtom == atom.Option {
				out = append(out, c)
				continue
			}
			walk(c.FirstChild)
		}
	}
	walk(n.FirstChild)
	return out
}

func optionValue(o *html.Node) string {
	if v, ok := Attr(o, "value"); ok {
		return v
	}
	return Text(o)
}
