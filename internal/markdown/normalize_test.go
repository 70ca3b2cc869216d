package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadqual/internal/model"
)

func TestConvert_StripsChrome(t *testing.T) {
	html := `<html><head><style>body{color:red}</style></head><body>
		<nav><a href="/">Home</a><a href="/about">About</a></nav>
		<script>track();</script>
		<main><h1>Acme Plumbing</h1><p>Family owned since 1998.</p></main>
		<footer>© 2026 Acme</footer>
	</body></html>`

	md, err := Convert(html)
	require.NoError(t, err)
	assert.Contains(t, md, "# Acme Plumbing")
	assert.Contains(t, md, "Family owned since 1998.")
	assert.NotContains(t, md, "track()")
	assert.NotContains(t, md, "color:red")
	assert.NotContains(t, md, "Home")
	assert.NotContains(t, md, "© 2026")
}

func TestConvert_LinksBecomeText(t *testing.T) {
	html := `<body><p>Call us or visit <a href="https://maps.example.com/acme">our location page</a>.</p></body>`

	md, err := Convert(html)
	require.NoError(t, err)
	assert.Contains(t, md, "our location page")
	assert.NotContains(t, md, "maps.example.com")
	assert.NotContains(t, md, "href")
}

func TestConvert_RawURLsRemoved(t *testing.T) {
	md, err := Convert(`<body><p>Find us at https://acme.example.com/contact or www.acme.example.com today</p></body>`)
	require.NoError(t, err)
	assert.NotContains(t, md, "https://")
	assert.NotContains(t, md, "www.acme")
	assert.Contains(t, md, "Find us at")
}

func TestConvert_ListsAndHeadings(t *testing.T) {
	html := `<body><h2>Services</h2><ul><li>Drain cleaning</li><li>Water heaters</li></ul></body>`

	md, err := Convert(html)
	require.NoError(t, err)
	assert.Contains(t, md, "## Services")
	assert.Contains(t, md, "- Drain cleaning")
	assert.Contains(t, md, "- Water heaters")
}

func TestConvert_CollapsesBlankRuns(t *testing.T) {
	html := `<body><div><div><div><p>one</p></div></div></div><div></div><div></div><p>two</p></body>`

	md, err := Convert(html)
	require.NoError(t, err)
	assert.NotContains(t, md, "\n\n\n")
}

func TestNormalizePages_PriorityOrder(t *testing.T) {
	pages := []model.ScrapedPage{
		{URL: "https://acme.com/blog/post-1", HTML: "<body><p>blog post</p></body>"},
		{URL: "https://acme.com/", HTML: "<body><p>homepage</p></body>"},
		{URL: "https://acme.com/about-us", HTML: "<body><p>about copy</p></body>"},
		{URL: "https://acme.com/our-team", HTML: "<body><p>team copy</p></body>"},
	}

	out := NormalizePages(pages)
	require.Len(t, out, 4)
	assert.Equal(t, "https://acme.com/about-us", out[0].URL)
	assert.Equal(t, "https://acme.com/our-team", out[1].URL)
	assert.Equal(t, "https://acme.com/", out[2].URL)
	assert.Equal(t, "https://acme.com/blog/post-1", out[3].URL)
}

func TestNormalizePages_SkipsEmptyAndUsesText(t *testing.T) {
	pages := []model.ScrapedPage{
		{URL: "https://acme.com/empty", HTML: "<body><script>x()</script></body>"},
		{URL: "https://acme.com/plain", Text: "pre-extracted   text"},
	}

	out := NormalizePages(pages)
	require.Len(t, out, 1)
	assert.Equal(t, "https://acme.com/plain", out[0].URL)
	assert.Equal(t, "pre-extracted text", out[0].Markdown)
}

func TestBuildDocument_Budget(t *testing.T) {
	pages := []Page{
		{URL: "https://acme.com/about", Title: "About", Markdown: strings.Repeat("a", 300)},
		{URL: "https://acme.com/blog", Title: "Blog", Markdown: strings.Repeat("b", 300)},
	}

	doc := BuildDocument(pages, 400)
	assert.LessOrEqual(t, len(doc), 400)
	// High-priority page survives in full; the next one is cut mid-page.
	assert.Contains(t, doc, strings.Repeat("a", 300))
	assert.Contains(t, doc, "--- Page: Blog ---")
	assert.NotContains(t, doc, strings.Repeat("b", 300))
}

func TestBuildDocument_SectionHeaders(t *testing.T) {
	doc := BuildDocument([]Page{
		{URL: "https://acme.com/about", Title: "About Acme", Markdown: "copy"},
	}, 0)
	assert.Contains(t, doc, "--- Page: About Acme ---")
	assert.Contains(t, doc, "URL: https://acme.com/about")
	assert.Contains(t, doc, "copy")
}
