// Package extract pulls readable content out of page HTML. The raw markup
// is sanitized first, then one of two strategies finds the content: a CSS
// selector list, or text-density scoring over semantic landmarks with
// boilerplate filtered out. Results carry plain text, cleaned HTML and a
// markdown rendering.
package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Mode selects the extraction strategy.
type Mode string

const (
	ModeCSS     Mode = "css"
	ModeDensity Mode = "density"
)

// defaultMinLength filters fragments too short to be content.
const defaultMinLength = 50

// Result is the extracted content.
type Result struct {
	Text     string `json:"text"`
	HTML     string `json:"html"`
	Markdown string `json:"markdown"`
	Title    string `json:"title"`
	Hash     string `json:"hash"`
}

// Options tunes an extraction.
type Options struct {
	Mode Mode
	// Selectors drive ModeCSS; ignored otherwise.
	Selectors []string
	// MinLength is the minimum text length for a fragment to count.
	// Zero means 50.
	MinLength int
}

// sanitizer strips scripts, styles and event handlers but keeps the HTML5
// landmark tags and the structural attributes the density analysis reads.
var sanitizer = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("main", "article", "section", "nav", "aside", "header", "footer")
	p.AllowAttrs("class", "id", "role").Globally()
	p.SkipElementsContent("title", "script", "style", "noscript", "iframe", "object")
	return p
}()

// Extract runs the selected strategy over the page HTML.
func Extract(rawHTML string, opts Options) (*Result, error) {
	minLen := opts.MinLength
	if minLen <= 0 {
		minLen = defaultMinLength
	}

	// Title comes from the raw document; sanitization drops the head.
	title := ""
	if rawDoc, err := html.Parse(strings.NewReader(rawHTML)); err == nil {
		title = documentTitle(rawDoc)
	}

	clean := sanitizer.Sanitize(rawHTML)
	doc, err := html.Parse(strings.NewReader(clean))
	if err != nil {
		return nil, fmt.Errorf("extract: parse html: %w", err)
	}

	var res *Result
	switch opts.Mode {
	case ModeCSS:
		if len(opts.Selectors) == 0 {
			return nil, fmt.Errorf("extract: css mode needs at least one selector")
		}
		res, err = extractCSS(doc, opts.Selectors, title, minLen)
	case ModeDensity, "":
		res, err = extractDensity(doc, title, minLen)
	default:
		return nil, fmt.Errorf("extract: unknown mode %q", opts.Mode)
	}
	if err != nil {
		return nil, err
	}

	if res.HTML != "" {
		md, err := toMarkdown(res.HTML)
		if err == nil {
			res.Markdown = md
		}
	}
	return res, nil
}

// documentTitle returns the <title> text, trimmed.
func documentTitle(doc *html.Node) string {
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Title {
			title = strings.TrimSpace(collectText(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}

// collectText gathers all text under n, whitespace-normalized.
func collectText(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return sb.String()
}

// renderNode serializes a subtree back to HTML.
func renderNode(n *html.Node) string {
	var sb strings.Builder
	if err := html.Render(&sb, n); err != nil {
		return ""
	}
	return sb.String()
}

func hashText(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// boilerplateHints flag navigation, chrome and ad containers by class/id.
var boilerplateHints = []string{
	"nav", "menu", "sidebar", "footer", "header", "banner",
	"advert", "ad-", "-ad", "promo", "cookie", "comment", "share", "social",
}

// isBoilerplate reports whether an element is page chrome rather than
// content: semantic nav/aside/footer/header tags, matching ARIA roles, or
// telltale class and id names.
func isBoilerplate(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.Nav, atom.Aside, atom.Footer, atom.Header:
		return true
	}
	switch getAttr(n, "role") {
	case "navigation", "banner", "contentinfo", "complementary":
		return true
	}
	marker := strings.ToLower(getAttr(n, "class") + " " + getAttr(n, "id"))
	if marker == " " {
		return false
	}
	for _, hint := range boilerplateHints {
		if strings.Contains(marker, hint) {
			return true
		}
	}
	return false
}

// isContentTag reports whether a tag can anchor a content block for the
// density scorer.
func isContentTag(a atom.Atom) bool {
	switch a {
	case atom.Div, atom.Article, atom.Section, atom.Main,
		atom.Td, atom.Pre, atom.Blockquote:
		return true
	}
	return false
}
