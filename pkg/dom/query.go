package dom

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// ErrNoMatch is returned by Query when nothing matches the selector.
var ErrNoMatch = errors.New("no element matches selector")

// compile parses a CSS selector group. A trailing :nth(n) picks the n-th
// match (1-based) out of everything the rest of the selector matches.
func compile(s string) (cascadia.Selector, int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, 0, fmt.Errorf("empty selector")
	}
	nth := 0
	if i := strings.LastIndex(s, ":nth("); i >= 0 {
		arg, ok := strings.CutSuffix(s[i+len(":nth("):], ")")
		if !ok {
			return nil, 0, fmt.Errorf("bad selector %q: text after :nth()", s)
		}
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			return nil, 0, fmt.Errorf("bad selector %q: nth wants a positive integer", s)
		}
		nth = n
		s = s[:i]
		if s == "" {
			s = "*"
		}
	}
	sel, err := cascadia.Compile(s)
	if err != nil {
		return nil, 0, fmt.Errorf("bad selector %q: %w", s, err)
	}
	return sel, nth, nil
}

// QueryAll returns every element at or under root matching the selector,
// in document order.
func QueryAll(root *html.Node, s string) ([]*html.Node, error) {
	sel, nth, err := compile(s)
	if err != nil {
		return nil, err
	}
	out := sel.MatchAll(root)
	if nth > 0 {
		if nth > len(out) {
			return nil, nil
		}
		return out[nth-1 : nth], nil
	}
	return out, nil
}

// Query returns the first element at or under root matching the selector.
func Query(root *html.Node, s string) (*html.Node, error) {
	sel, nth, err := compile(s)
	if err != nil {
		return nil, err
	}
	var n *html.Node
	if nth == 0 {
		n = sel.MatchFirst(root)
	} else if all := sel.MatchAll(root); nth <= len(all) {
		n = all[nth-1]
	}
	if n == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoMatch, s)
	}
	return n, nil
}
