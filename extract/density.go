package extract

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// extractDensity picks the content subtree without selectors. Semantic
// landmarks (<main>, then <article>) win when they carry enough text;
// otherwise the body is scored by text-to-markup density and the best
// block is taken.
func extractDensity(doc *html.Node, title string, minLen int) (*Result, error) {
	if nodes := landmarkNodes(doc); len(nodes) > 0 {
		var texts, htmls []string
		for _, n := range nodes {
			if isBoilerplate(n) {
				continue
			}
			if text := collectText(n); len(text) >= minLen {
				texts = append(texts, text)
				htmls = append(htmls, renderNode(n))
			}
		}
		if len(texts) > 0 {
			combined := strings.Join(texts, "\n\n")
			return &Result{
				Text:  combined,
				HTML:  strings.Join(htmls, "\n"),
				Title: title,
				Hash:  hashText(combined),
			}, nil
		}
	}

	root := bodyNode(doc)
	if root == nil {
		root = doc
	}

	best := densestBlock(root, minLen)
	if best == nil {
		// Nothing scored; fall back to whatever visible text the body has.
		text := visibleText(root)
		if len(text) < minLen {
			return &Result{Title: title, Hash: hashText("")}, nil
		}
		return &Result{
			Text:  text,
			HTML:  renderNode(root),
			Title: title,
			Hash:  hashText(text),
		}, nil
	}

	text := collectText(best)
	return &Result{
		Text:  text,
		HTML:  renderNode(best),
		Title: title,
		Hash:  hashText(text),
	}, nil
}

// landmarkNodes returns the page's HTML5 content landmarks. <main> takes
// precedence over <article>; only one kind is ever returned.
func landmarkNodes(doc *html.Node) []*html.Node {
	for _, tag := range []atom.Atom{atom.Main, atom.Article} {
		var found []*html.Node
		var walk func(*html.Node)
		walk = func(n *html.Node) {
			if n.Type == html.ElementNode && n.DataAtom == tag {
				found = append(found, n)
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
		}
		walk(doc)
		if len(found) > 0 {
			return found
		}
	}
	return nil
}

// densestBlock scores every content-capable subtree and returns the one
// with the best composite of density, text length and low link density.
// Blocks whose text is mostly links are navigation, not content.
func densestBlock(root *html.Node, minLen int) *html.Node {
	var best *html.Node
	var bestScore float64

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type != html.ElementNode || isBoilerplate(n) {
			return
		}
		if isContentTag(n.DataAtom) || n.DataAtom == atom.Body {
			if score, ok := scoreBlock(n, minLen); ok && score > bestScore {
				bestScore = score
				best = n
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return best
}

// scoreBlock rates one subtree. ok is false when the block is too short
// or too link-heavy to be a candidate at all.
func scoreBlock(n *html.Node, minLen int) (score float64, ok bool) {
	textLen := len(collectText(n))
	if textLen < minLen {
		return 0, false
	}

	markupLen := len(renderNode(n))
	if markupLen == 0 {
		markupLen = 1
	}

	linkDens := float64(linkTextLen(n)) / float64(textLen)
	if linkDens > 0.5 {
		return 0, false
	}

	density := float64(textLen) / float64(markupLen)
	return density * lengthWeight(textLen) * (1 - linkDens), true
}

// lengthWeight grows logarithmically with text length so a long article
// beats a short dense snippet.
func lengthWeight(n int) float64 {
	if n <= 0 {
		return 0
	}
	w := 1.0
	for ; n > 100; n /= 2 {
		w++
	}
	return w
}

// linkTextLen counts the bytes of trimmed text sitting inside <a> subtrees.
func linkTextLen(n *html.Node) int {
	total := 0
	var walk func(*html.Node, bool)
	walk = func(n *html.Node, inLink bool) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			inLink = true
		}
		if n.Type == html.TextNode && inLink {
			total += len(strings.TrimSpace(n.Data))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inLink)
		}
	}
	walk(n, false)
	return total
}

// visibleText gathers space-joined text under n, skipping boilerplate
// regions and non-rendered tags.
func visibleText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if isBoilerplate(n) {
				return
			}
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// bodyNode returns the document's <body>, nil when the parse has none.
func bodyNode(doc *html.Node) *html.Node {
	var body *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if body != nil {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Body {
			body = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return body
}
