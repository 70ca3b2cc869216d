// Package markdown converts scraped HTML into a compact markdown
// rendition suitable for LLM context. Navigation chrome, media, and
// link targets are dropped; only readable copy survives.
package markdown

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
)

// Elements that never contain lead-relevant copy.
const strippedSelectors = "script, style, noscript, template, iframe, svg, img, picture, video, audio, canvas, form, button, input, select, textarea, nav, header, footer, aside"

var (
	rawURLRe     = regexp.MustCompile(`https?://\S+|www\.\S+`)
	multiBlankRe = regexp.MustCompile(`\n{3,}`)
	spaceRunRe   = regexp.MustCompile(`[ \t]+`)
)

// Convert renders raw HTML as markdown text. Links are reduced to their
// anchor text and raw URLs are removed outright; the scoring prompts
// work from prose, not hyperlinks.
func Convert(rawHTML string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", eris.Wrap(err, "markdown: parse html")
	}

	doc.Find(strippedSelectors).Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	var sb strings.Builder
	root.Each(func(_ int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			renderNode(&sb, n)
		}
	})

	return tidy(sb.String()), nil
}

func renderNode(sb *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(strings.ReplaceAll(n.Data, "\n", " "))
	case html.ElementNode:
		switch n.Data {
		case "h1":
			sb.WriteString("\n\n# ")
		case "h2":
			sb.WriteString("\n\n## ")
		case "h3":
			sb.WriteString("\n\n### ")
		case "h4", "h5", "h6":
			sb.WriteString("\n\n#### ")
		case "li":
			sb.WriteString("\n- ")
		case "br":
			sb.WriteString("\n")
			return
		case "p", "div", "section", "article", "main", "table", "tr", "ul", "ol", "blockquote", "dl", "dt", "dd", "figcaption":
			sb.WriteString("\n")
		case "td", "th":
			sb.WriteString(" ")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderNode(sb, c)
	}

	if n.Type == html.ElementNode {
		switch n.Data {
		case "h1", "h2", "h3", "h4", "h5", "h6", "p", "div", "section", "article", "main", "table", "tr", "ul", "ol", "blockquote", "dl":
			sb.WriteString("\n")
		}
	}
}

// tidy strips raw URLs, collapses whitespace runs, and trims each line.
func tidy(text string) string {
	text = rawURLRe.ReplaceAllString(text, "")
	text = spaceRunRe.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")

	text = multiBlankRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
