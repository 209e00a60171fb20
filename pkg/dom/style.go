package dom

import (
	"strings"

	"golang.org/x/net/html"
)

type declaration struct {
	prop, val string
}

func parseStyle(s string) []declaration {
	var decls []declaration
	for _, part := range strings.Split(s, ";") {
		prop, val, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		prop = strings.TrimSpace(prop)
		if prop == "" {
			continue
		}
		decls = append(decls, declaration{prop: prop, val: strings.TrimSpace(val)})
	}
	return decls
}

func formatStyle(decls []declaration) string {
	parts := make([]string, 0, len(decls))
	for _, d := range decls {
		parts = append(parts, d.prop+": "+d.val)
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "; ") + ";"
}

// Style returns one property of the inline style attribute.
func Style(n *html.Node, prop string) string {
	s, _ := Attr(n, "style")
	for _, d := range parseStyle(s) {
		if d.prop == prop {
			return d.val
		}
	}
	return ""
}

// SetStyle sets one inline style property. An empty value removes it.
func SetStyle(n *html.Node, prop, val string) {
	s, _ := Attr(n, "style")
	decls := parseStyle(s)
	found := false
	for i := 0; i < len(decls); i++ {
		if decls[i].prop != prop {
			continue
		}
		found = true
		if val == "" {
			decls = append(decls[:i], decls[i+1:]...)
			i--
			continue
		}
		decls[i].val = val
	}
	if !found && val != "" {
		decls = append(decls, declaration{prop: prop, val: val})
	}
	if out := formatStyle(decls); out != "" {
		SetAttr(n, "style", out)
	} else {
		RemoveAttr(n, "style")
	}
}

// Data returns a dataset entry. Keys are camelCase, as in element.dataset.
func Data(n *html.Node, key string) (string, bool) {
	return Attr(n, "data-"+Dashcase(key))
}

// SetData sets a dataset entry.
func SetData(n *html.Node, key, val string) {
	SetAttr(n, "data-"+Dashcase(key), val)
}
