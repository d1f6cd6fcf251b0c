package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// query evaluates expr and treats invalid expressions as no match.
func query(doc *html.Node, expr string) []*html.Node {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	nodes, err := htmlquery.QueryAll(doc, expr)
	if err != nil {
		return nil
	}
	return nodes
}

func ruleTitle(doc *html.Node, expr string) string {
	for _, n := range query(doc, expr) {
		if t := inlineText(n); t != "" {
			return t
		}
	}
	return ""
}

func ruleContent(doc *html.Node, expr string) string {
	var parts []string
	for _, n := range query(doc, expr) {
		if t := cleanText(rawText(n)); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// fallbackTitle tries og:title, then <title>, then the first <h1>.
func fallbackTitle(doc *html.Node) string {
	if meta := htmlquery.FindOne(doc, `//meta[@property="og:title"]`); meta != nil {
		if t := strings.Join(strings.Fields(htmlquery.SelectAttr(meta, "content")), " "); t != "" {
			return t
		}
	}
	for _, expr := range []string{"//title", "//h1"} {
		if n := htmlquery.FindOne(doc, expr); n != nil {
			if t := inlineText(n); t != "" {
				return t
			}
		}
	}
	return ""
}

type block struct {
	node  *html.Node
	text  string
	runes int
}

// bestBlock returns the content candidate with the longest cleaned text:
// <article> elements, elements with more than MinParagraphs direct <p>
// children, and blocks whose text exceeds MinBlockChars.
func (e *Extractor) bestBlock(doc *html.Node) *block {
	var best *block
	consider := func(n *html.Node, minRunes int) {
		text := cleanText(rawText(n))
		runes := utf8.RuneCountInString(text)
		if runes == 0 || runes <= minRunes {
			return
		}
		if best == nil || runes > best.runes {
			best = &block{node: n, text: text, runes: runes}
		}
	}
	for _, n := range htmlquery.Find(doc, "//article") {
		consider(n, 0)
	}
	for _, n := range htmlquery.Find(doc, "//*[p]") {
		if directParagraphs(n) > e.cfg.MinParagraphs {
			consider(n, 0)
		}
	}
	for _, n := range htmlquery.Find(doc, "//div | //section | //main | //td") {
		consider(n, e.cfg.MinBlockChars)
	}
	return best
}

func directParagraphs(n *html.Node) int {
	count := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "p" {
			count++
		}
	}
	return count
}
