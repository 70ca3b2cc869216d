// Package extract pulls deterministic facts out of scraped pages:
// contact details, social profiles, named team members, headcount
// claims, and notable copy snippets. Everything here is heuristic and
// cheap; the LLM passes handle what rules cannot.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/leadqual/internal/model"
)

// TeamMember is one named person with an organizational title.
type TeamMember struct {
	Name  string `json:"name"`
	Title string `json:"title"`
}

// Snippet is one sentence of site copy worth quoting, tagged by what it
// signals.
type Snippet struct {
	Category  string `json:"category"`
	Text      string `json:"text"`
	SourceURL string `json:"source_url"`
}

// Result aggregates extraction output across all pages of one lead.
type Result struct {
	Emails      []string          `json:"emails,omitempty"`
	Phones      []string          `json:"phones,omitempty"`
	Social      map[string]string `json:"social,omitempty"`
	TeamMembers []TeamMember      `json:"team_members,omitempty"`
	Headcount   int               `json:"headcount,omitempty"`
	Snippets    []Snippet         `json:"snippets,omitempty"`
	Tagline     string            `json:"tagline,omitempty"`
}

// PrimaryEmail returns the best email found, or empty. Trusted mailto:
// hits sort first.
func (r *Result) PrimaryEmail() string {
	if len(r.Emails) > 0 {
		return r.Emails[0]
	}
	return ""
}

// PrimaryPhone returns the best phone number found, or empty.
func (r *Result) PrimaryPhone() string {
	if len(r.Phones) > 0 {
		return r.Phones[0]
	}
	return ""
}

// page is one parsed input page.
type page struct {
	url  string
	doc  *goquery.Document
	text string
}

// Run extracts facts from every page of a scrape artifact. Pages that
// fail to parse are skipped; extraction never fails a lead.
func Run(pages []model.ScrapedPage) *Result {
	res := &Result{Social: map[string]string{}}

	parsed := make([]page, 0, len(pages))
	for _, p := range pages {
		pg := page{url: p.URL, text: p.Text}
		if p.HTML != "" {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.HTML))
			if err != nil {
				zap.L().Warn("page failed to parse", zap.String("url", p.URL), zap.Error(err))
				continue
			}
			pg.doc = doc
			if pg.text == "" {
				pg.text = doc.Find("body").Text()
			}
		}
		if pg.doc == nil && pg.text == "" {
			continue
		}
		parsed = append(parsed, pg)

		if res.Tagline == "" && p.MetaDescription != "" {
			res.Tagline = strings.TrimSpace(p.MetaDescription)
		}
	}

	res.Emails = extractEmails(parsed)
	res.Phones = extractPhones(parsed)
	res.Social = extractSocial(parsed)
	res.TeamMembers = extractTeam(parsed)
	res.Headcount = extractHeadcount(parsed)
	res.Snippets = extractSnippets(parsed)

	return res
}
