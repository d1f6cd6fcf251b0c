package extract

import (
	"strings"

	"golang.org/x/net/html"
)

var skipped = map[string]struct{}{
	"script":   {},
	"style":    {},
	"noscript": {},
}

// rawText collects the text below n, one text node per line, ignoring
// script, style and noscript subtrees. The tree is not modified.
func rawText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte('\n')
			return
		case html.ElementNode:
			if _, skip := skipped[n.Data]; skip {
				return
			}
		case html.CommentNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// cleanText trims every line, splits lines on runs of two spaces and drops
// empty chunks.
func cleanText(raw string) string {
	var chunks []string
	for _, line := range strings.Split(raw, "\n") {
		for _, phrase := range strings.Split(strings.TrimSpace(line), "  ") {
			if phrase = strings.TrimSpace(phrase); phrase != "" {
				chunks = append(chunks, phrase)
			}
		}
	}
	return strings.Join(chunks, "\n")
}

// inlineText collapses the text below n into one line.
func inlineText(n *html.Node) string {
	return strings.Join(strings.Fields(rawText(n)), " ")
}
