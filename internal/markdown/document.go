package markdown

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/leadqual/internal/model"
)

// DefaultMaxChars caps the assembled document context per lead.
const DefaultMaxChars = 60000

// Page is one normalized page ready for document assembly.
type Page struct {
	URL      string
	Title    string
	Markdown string
}

// pagePriority orders pages by how much qualification signal their URL
// path usually carries. Lower sorts first.
func pagePriority(pageURL string) int {
	u, err := url.Parse(pageURL)
	if err != nil {
		return 6
	}
	path := strings.ToLower(strings.Trim(u.Path, "/"))

	switch {
	case containsAny(path, "about", "our-story", "company", "who-we-are", "history"):
		return 0
	case containsAny(path, "team", "staff", "people", "leadership", "meet-"):
		return 1
	case containsAny(path, "contact"):
		return 2
	case containsAny(path, "service", "what-we-do", "solutions"):
		return 3
	case path == "":
		return 4
	default:
		return 5
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// NormalizePages converts each scraped page to markdown and orders the
// result by page priority. Pages whose HTML fails to parse or renders
// empty are skipped. When a page has pre-extracted text but no HTML,
// the text is used as-is.
func NormalizePages(pages []model.ScrapedPage) []Page {
	out := make([]Page, 0, len(pages))
	for _, p := range pages {
		var md string
		switch {
		case p.HTML != "":
			var err error
			md, err = Convert(p.HTML)
			if err != nil {
				zap.L().Warn("page failed to normalize",
					zap.String("url", p.URL),
					zap.Error(err))
				continue
			}
		case p.Text != "":
			md = tidy(p.Text)
		}
		if strings.TrimSpace(md) == "" {
			continue
		}
		out = append(out, Page{URL: p.URL, Title: p.Title, Markdown: md})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return pagePriority(out[i].URL) < pagePriority(out[j].URL)
	})
	return out
}

// BuildDocument assembles prioritized pages into a single context
// document under maxChars. The last page that does not fit is truncated
// mid-page rather than dropped, so high-priority copy always survives.
func BuildDocument(pages []Page, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	var sb strings.Builder
	remaining := maxChars

	for _, p := range pages {
		if remaining <= 0 {
			break
		}

		section := formatPageSection(p)
		if len(section) > remaining {
			section = section[:remaining]
		}

		sb.WriteString(section)
		sb.WriteString("\n\n")
		remaining -= len(section) + 2
	}

	return strings.TrimSpace(sb.String())
}

// formatPageSection prefixes a page's markdown with its title and URL.
// In-body links and raw URLs are stripped during normalization; the
// header URL stays so fact extraction can attribute quotes to a page.
func formatPageSection(p Page) string {
	var sb strings.Builder
	title := p.Title
	if title == "" {
		title = p.URL
	}
	fmt.Fprintf(&sb, "--- Page: %s ---\n", title)
	fmt.Fprintf(&sb, "URL: %s\n\n", p.URL)
	sb.WriteString(p.Markdown)
	return sb.String()
}
