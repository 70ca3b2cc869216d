package extract

import (
	"regexp"
	"strings"
	"unicode"
)

// Snippet categories and the phrases that place a sentence in them.
var snippetCategories = []struct {
	name     string
	keywords []string
	reject   []string
}{
	{
		name: "history",
		keywords: []string{
			"since 19", "since 20", "founded", "established", "years in business",
			"years of experience", "family-owned", "family owned",
			"second generation", "third generation", "family business",
		},
	},
	{
		name: "new_hire",
		keywords: []string{
			"joined our team", "joined the team", "welcome to the team",
			"new hire", "recently joined", "newest member",
		},
	},
	{
		name: "certification",
		keywords: []string{
			"certified", "certification", "accredited", "factory-trained",
			"factory trained",
		},
	},
	{
		name: "award",
		keywords: []string{
			"award", "winner", "best of", "voted", "top rated", "angie's list",
		},
		// Loyalty programs use award language without meaning any.
		reject: []string{"rewards program", "reward points", "loyalty"},
	},
	{
		name:     "licensing",
		keywords: []string{"licensed", "license #", "license no", "lic #", "lic."},
	},
	{
		name:     "insurance",
		keywords: []string{"insured", "bonded", "liability coverage"},
	},
	{
		name: "service_area",
		keywords: []string{
			"serving", "service area", "we serve", "proudly serve",
			"surrounding areas",
		},
	},
}

const (
	snippetMinLen          = 30
	snippetMaxLen          = 300
	snippetMinWords        = 5
	maxSnippetsPerCategory = 5
)

// Abbreviations whose trailing period does not end a sentence.
var abbreviations = []string{
	"Inc.", "Ltd.", "Co.", "Corp.", "LLC.", "Dr.", "Mr.", "Mrs.", "Ms.",
	"St.", "Ave.", "Blvd.", "No.", "U.S.", "Jr.", "Sr.", "vs.", "etc.",
	"approx.", "est.",
}

var sentenceEndRe = regexp.MustCompile(`([.!?])\s+`)

// splitSentences breaks text into sentences without cutting at known
// abbreviations.
func splitSentences(text string) []string {
	const placeholder = "\x00"
	protected := text
	for _, abbr := range abbreviations {
		protected = strings.ReplaceAll(protected, abbr,
			strings.ReplaceAll(abbr, ".", placeholder))
	}

	marked := sentenceEndRe.ReplaceAllString(protected, "$1\n")
	parts := strings.Split(marked, "\n")

	out := make([]string, 0, len(parts))
	for _, s := range parts {
		s = strings.TrimSpace(strings.ReplaceAll(s, placeholder, "."))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// extractSnippets pulls categorized quote-worthy sentences from every
// page, capped per category across the whole lead.
func extractSnippets(pages []page) []Snippet {
	var out []Snippet
	perCategory := map[string]int{}
	seen := map[string]bool{}

	for _, p := range pages {
		for _, sentence := range splitSentences(p.text) {
			key := normalizeSnippet(sentence)
			if !usableSentence(sentence) || seen[key] {
				continue
			}
			category, ok := classifySnippet(sentence)
			if !ok || perCategory[category] >= maxSnippetsPerCategory {
				continue
			}
			seen[key] = true
			perCategory[category]++
			out = append(out, Snippet{
				Category:  category,
				Text:      sentence,
				SourceURL: p.url,
			})
		}
	}
	return out
}

// normalizeSnippet builds the dedupe key: the same sentence with
// different casing or spacing across pages counts once.
func normalizeSnippet(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func classifySnippet(sentence string) (string, bool) {
	lower := strings.ToLower(sentence)
	for _, cat := range snippetCategories {
		rejected := false
		for _, r := range cat.reject {
			if strings.Contains(lower, r) {
				rejected = true
				break
			}
		}
		if rejected {
			continue
		}
		for _, kw := range cat.keywords {
			if strings.Contains(lower, kw) {
				return cat.name, true
			}
		}
	}
	return "", false
}

// usableSentence rejects fragments, shouting, and navigation debris.
func usableSentence(s string) bool {
	if len(s) < snippetMinLen || len(s) > snippetMaxLen {
		return false
	}
	if len(strings.Fields(s)) < snippetMinWords {
		return false
	}
	if strings.Count(s, "|") >= 2 || strings.Count(s, "\t") >= 2 {
		return false
	}

	letters, uppers := 0, 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				uppers++
			}
		}
	}
	if letters == 0 {
		return false
	}
	// Mostly-uppercase lines are banners, not copy.
	return float64(uppers)/float64(letters) < 0.6
}
