// Package selector derives XPath expressions that re-locate a node in
// future versions of the same page.
package selector

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/net/html"
)

// Derive returns an XPath for node, preferring its id, then its first class
// token, then the absolute element path from <html>. It returns "" for nil,
// non-element and detached nodes.
func Derive(node *html.Node) string {
	if node == nil || node.Type != html.ElementNode || !attached(node) {
		return ""
	}
	if id := strings.TrimSpace(attr(node, "id")); id != "" {
		return fmt.Sprintf("//*[@id=%s]", literal(id))
	}
	if classes := strings.Fields(attr(node, "class")); len(classes) > 0 {
		return fmt.Sprintf("//%s[contains(@class, %s)]", node.Data, literal(classes[0]))
	}
	return AbsolutePath(node)
}

// AbsolutePath returns /html/body/... for node. Positions are 1-based and
// only emitted when the parent has more than one child with the same tag.
func AbsolutePath(node *html.Node) string {
	if node == nil || node.Type != html.ElementNode || !attached(node) {
		return ""
	}
	var steps []string
	for n := node; n != nil && n.Type == html.ElementNode; n = n.Parent {
		steps = append(steps, step(n))
	}
	slices.Reverse(steps)
	return "/" + strings.Join(steps, "/")
}

func step(n *html.Node) string {
	if n.Parent == nil {
		return n.Data
	}
	index, same := 0, 0
	for sib := n.Parent.FirstChild; sib != nil; sib = sib.NextSibling {
		if sib.Type != html.ElementNode || sib.Data != n.Data {
			continue
		}
		same++
		if sib == n {
			index = same
		}
	}
	if same <= 1 {
		return n.Data
	}
	return fmt.Sprintf("%s[%d]", n.Data, index)
}

// attached reports whether node hangs off a document node.
func attached(node *html.Node) bool {
	for n := node; n != nil; n = n.Parent {
		if n.Type == html.DocumentNode {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

// literal quotes s as an XPath 1.0 string literal.
func literal(s string) string {
	switch {
	case !strings.Contains(s, `"`):
		return `"` + s + `"`
	case !strings.Contains(s, "'"):
		return "'" + s + "'"
	default:
		parts := strings.Split(s, `"`)
		quoted := make([]string, 0, 2*len(parts))
		for i, p := range parts {
			if i > 0 {
				quoted = append(quoted, `'"'`)
			}
			if p != "" {
				quoted = append(quoted, `"`+p+`"`)
			}
		}
		return "concat(" + strings.Join(quoted, ", ") + ")"
	}
}
