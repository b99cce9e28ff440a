package extract

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// extractCSS collects content from every node matched by the selector list.
// Fragments below minLen are dropped; matching nothing at all is an error
// so the controller can fall back to density mode.
func extractCSS(doc *html.Node, selectors []string, title string, minLen int) (*Result, error) {
	var texts, htmls []string
	for _, sel := range selectors {
		for _, n := range selectNodes(doc, sel) {
			if text := collectText(n); len(text) >= minLen {
				texts = append(texts, text)
				htmls = append(htmls, renderNode(n))
			}
		}
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("no content matched selectors: %v", selectors)
	}

	combined := strings.Join(texts, "\n\n")
	return &Result{
		Text:  combined,
		HTML:  strings.Join(htmls, "\n"),
		Title: title,
		Hash:  hashText(combined),
	}, nil
}

// selectNodes evaluates a selector against the document. Whitespace between
// parts is the descendant combinator: each part narrows to the subtrees of
// the previous round's matches.
//
// The grammar is the subset page authors actually pass here:
//
//	tag  .class  #id  tag.class  tag#id  tag[attr]  tag[attr=val]
func selectNodes(doc *html.Node, selector string) []*html.Node {
	parts := strings.Fields(selector)
	if len(parts) == 0 {
		return nil
	}

	matches := matchPart(doc, parseQuery(parts[0]))
	for _, part := range parts[1:] {
		q := parseQuery(part)
		var next []*html.Node
		for _, scope := range matches {
			next = append(next, matchPart(scope, q)...)
		}
		matches = next
	}
	return matches
}

// matchPart walks a subtree and returns every element the query accepts.
func matchPart(root *html.Node, q cssQuery) []*html.Node {
	var found []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if q.matches(n) {
			found = append(found, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return found
}

// cssQuery is one parsed simple-selector part. Empty fields are wildcards.
type cssQuery struct {
	tag     string
	id      string
	class   string
	attrKey string
	attrVal string
}

// parseQuery splits "tag#id", "tag.class" and "tag[attr=val]" forms into
// their components. The attribute suffix is peeled first so '#' and '.'
// inside quoted values cannot confuse the tag parse.
func parseQuery(part string) cssQuery {
	var q cssQuery

	if i := strings.IndexByte(part, '['); i >= 0 {
		attr := strings.TrimRight(part[i+1:], "]")
		part = part[:i]
		if eq := strings.IndexByte(attr, '='); eq >= 0 {
			q.attrKey = attr[:eq]
			q.attrVal = strings.Trim(attr[eq+1:], `"'`)
		} else {
			q.attrKey = attr
		}
	}
	if i := strings.IndexByte(part, '#'); i >= 0 {
		q.id = part[i+1:]
		part = part[:i]
	}
	if i := strings.IndexByte(part, '.'); i >= 0 {
		q.class = part[i+1:]
		part = part[:i]
	}
	q.tag = part
	return q
}

func (q cssQuery) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if q.tag != "" && n.Data != q.tag {
		return false
	}
	if q.id != "" && getAttr(n, "id") != q.id {
		return false
	}
	if q.class != "" && !hasClass(n, q.class) {
		return false
	}
	if q.attrKey != "" {
		val, present := lookupAttr(n, q.attrKey)
		if !present {
			return false
		}
		if q.attrVal != "" && val != q.attrVal {
			return false
		}
	}
	return true
}

// hasClass reports whether name appears in the node's class list.
func hasClass(n *html.Node, name string) bool {
	for _, c := range strings.Fields(getAttr(n, "class")) {
		if c == name {
			return true
		}
	}
	return false
}

// lookupAttr distinguishes an empty attribute value from an absent one.
func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// getAttr returns an attribute value, empty when absent.
func getAttr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}
