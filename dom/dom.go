// Package dom is the queryable document the extractors read from. Every
// fetch layer ends up handing over a goquery document wrapped as a Node.
package dom

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Node is one element (or document root) that can be queried with CSS
// selectors.
type Node interface {
	// Find returns the matches of selector under the node in document order.
	// An invalid selector is an error, not an empty result.
	Find(selector string) ([]Node, error)
	// Attr returns the value of an attribute on the node itself.
	Attr(name string) (string, bool)
	// Text returns the rendered text of the node, block elements separated
	// by whitespace.
	Text() (string, error)
}

// Selection adapts a goquery selection to Node.
type Selection struct {
	sel *goquery.Selection
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*Selection, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Selection{sel: doc.Selection}, nil
}

// ParseBytes is Parse over an in-memory body.
func ParseBytes(body []byte) (*Selection, error) {
	return Parse(bytes.NewReader(body))
}

// Find implements Node.
func (s *Selection) Find(selector string) ([]Node, error) {
	// goquery silently matches nothing for a selector it cannot compile.
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("selector %q: %w", selector, err)
	}

	found := s.sel.FindMatcher(matcher)
	nodes := make([]Node, 0, found.Length())
	found.Each(func(_ int, child *goquery.Selection) {
		nodes = append(nodes, &Selection{sel: child})
	})
	return nodes, nil
}

// Attr implements Node.
func (s *Selection) Attr(name string) (string, bool) {
	return s.sel.Attr(name)
}

// Text implements Node.
func (s *Selection) Text() (string, error) {
	if s.sel.Length() == 0 {
		return "", fmt.Errorf("text of empty selection")
	}
	var b strings.Builder
	for _, n := range s.sel.Nodes {
		renderText(n, &b)
	}
	return b.String(), nil
}

// FirstMatch tries selectors in order and returns the matches of the first
// one that selects anything. Selector errors count as no match.
func FirstMatch(n Node, selectors []string) []Node {
	for _, selector := range selectors {
		nodes, err := n.Find(selector)
		if err != nil || len(nodes) == 0 {
			continue
		}
		return nodes
	}
	return nil
}

// blockElements get a separator around their content so that adjacent
// paragraphs do not run together.
var blockElements = map[string]bool{
	"address": true, "article": true, "blockquote": true, "br": true,
	"dd": true, "div": true, "dl": true, "dt": true, "footer": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "li": true, "ol": true, "p": true,
	"section": true, "table": true, "td": true, "th": true, "tr": true,
	"ul": true,
}

func renderText(node *html.Node, b *strings.Builder) {
	if node == nil {
		return
	}
	switch node.Type {
	case html.TextNode:
		b.WriteString(node.Data)
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		if node.Data == "script" || node.Data == "style" {
			return
		}
	}

	block := node.Type == html.ElementNode && blockElements[node.Data]
	if block {
		b.WriteByte('\n')
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		renderText(child, b)
	}
	if block {
		b.WriteByte('\n')
	}
}
