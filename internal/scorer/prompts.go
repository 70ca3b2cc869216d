package scorer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/leadqual/internal/extract"
	"github.com/sells-group/leadqual/internal/model"
)

const factsSystemPrompt = `You are a research analyst reviewing the website of a small service business on behalf of a buyer evaluating acquisition targets. Extract only facts stated on the site. Do not infer, estimate, or embellish.

Respond with a single JSON object and nothing else:
{
  "owner_names": ["string"],
  "team_size": 0,
  "team_members_named": ["string"],
  "founding_year": 0,
  "years_in_business": 0,
  "services": ["string"],
  "certifications": ["string"],
  "pricing_signals": ["string"],
  "red_flags": ["string"],
  "notable_quotes": [{"text": "verbatim site copy", "source_url": "page url"}],
  "has_commercial_clients": false,
  "ownership_type": "family|solo|partnership|franchise|corporate|unknown"
}

Rules:
- Omit fields you found nothing for, or use the zero value.
- notable_quotes must be verbatim sentences copied from the site, with the page they came from.
- red_flags are statements suggesting decline, disputes, or thin operations.
- A franchise disclosure anywhere on the site means ownership_type is "franchise".`

const scoreSystemPrompt = `You are an acquisition analyst scoring a small service business as a purchase target. You are given a structured digest of everything known about the business. Score strictly from the digest; never invent facts.

Respond with a single JSON object and nothing else:
{
  "business_quality_score": 0.0,
  "exit_readiness_score": 0.0,
  "ownership_type": "family|solo|partnership|franchise|corporate|unknown",
  "is_excluded": false,
  "exclusion_reason": "",
  "rationale": "2-4 sentences"
}

Scoring guide:
- business_quality_score (0-100): operational maturity, team depth, service breadth, reputation relative to the market percentiles provided.
- exit_readiness_score (0-100): how plausibly the owner could hand the business over, considering tenure, named second-level staff, and succession signals.
- is_excluded is true for franchises, national chains, and businesses that have visibly ceased operating; give the reason.
- Scores are decimals. Stay inside 0-100.`

const repairPrompt = `Your previous response could not be parsed as JSON (%s). Respond again with ONLY the JSON object, no prose, no markdown fences.`

// buildRepairPrompt names the failure so the model sees what was wrong
// with its previous turn.
func buildRepairPrompt(parseErr error) string {
	reason := "a required score field was missing"
	if parseErr != nil {
		reason = parseErr.Error()
	}
	return fmt.Sprintf(repairPrompt, reason)
}

// buildFactsPrompt renders the Pass 1 user message: the lead header and
// the assembled site document.
func buildFactsPrompt(lead *model.Lead, doc string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Business: %s\n", lead.Name)
	if lead.City != "" || lead.State != "" {
		fmt.Fprintf(&sb, "Location: %s, %s\n", lead.City, lead.State)
	}
	if lead.BusinessType != "" {
		fmt.Fprintf(&sb, "Category: %s\n", lead.BusinessType)
	}
	sb.WriteString("\nWebsite content:\n\n")
	sb.WriteString(doc)
	return sb.String()
}

// buildDigest renders the Pass 2 user message: everything known about
// the lead in one structured block.
func buildDigest(lead *model.Lead, facts *model.ExtractedFacts, ext *extract.Result, mc *model.MarketContext) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "## Business\nName: %s\n", lead.Name)
	if lead.City != "" || lead.State != "" {
		fmt.Fprintf(&sb, "Location: %s, %s\n", lead.City, lead.State)
	}
	if lead.BusinessType != "" {
		fmt.Fprintf(&sb, "Category: %s\n", lead.BusinessType)
	}
	fmt.Fprintf(&sb, "Reviews: %d at %.1f stars\n", lead.ReviewCount, lead.Rating)

	if mc != nil {
		sb.WriteString("\n## Market position\n")
		fmt.Fprintf(&sb, "Cohort: %s (%d scored peers)\n", mc.BusinessType, mc.CohortSize)
		fmt.Fprintf(&sb, "Review count percentiles: p25=%.0f p50=%.0f p75=%.0f p90=%.0f\n",
			mc.ReviewCount.P25, mc.ReviewCount.P50, mc.ReviewCount.P75, mc.ReviewCount.P90)
		fmt.Fprintf(&sb, "Rating percentiles: p25=%.1f p50=%.1f p75=%.1f p90=%.1f\n",
			mc.Rating.P25, mc.Rating.P50, mc.Rating.P75, mc.Rating.P90)
	}

	if facts != nil {
		sb.WriteString("\n## Facts from site copy\n")
		writeFactsSection(&sb, facts)
	}

	if ext != nil {
		sb.WriteString("\n## Deterministic extraction\n")
		if len(ext.TeamMembers) > 0 {
			sb.WriteString("Named staff:\n")
			for _, m := range ext.TeamMembers {
				fmt.Fprintf(&sb, "- %s (%s)\n", m.Name, m.Title)
			}
		}
		if ext.Headcount > 0 {
			fmt.Fprintf(&sb, "Stated headcount: %d\n", ext.Headcount)
		}
		if ext.Tagline != "" {
			fmt.Fprintf(&sb, "Tagline: %s\n", ext.Tagline)
		}
		if len(ext.Social) > 0 {
			fmt.Fprintf(&sb, "Social profiles: %s\n", strings.Join(socialNames(ext.Social), ", "))
		}
		for _, s := range ext.Snippets {
			fmt.Fprintf(&sb, "[%s] %s\n", s.Category, s.Text)
		}
	}

	return sb.String()
}

// writeFactsSection renders the extracted facts as labeled lines. The
// scoring model reads prose better than raw JSON, and it is shorter.
func writeFactsSection(sb *strings.Builder, f *model.ExtractedFacts) {
	if len(f.OwnerNames) > 0 {
		fmt.Fprintf(sb, "Owners: %s\n", strings.Join(f.OwnerNames, ", "))
	}
	switch {
	case f.FoundingYear > 0 && f.YearsInBusiness > 0:
		fmt.Fprintf(sb, "Founded: %d (%d years in business)\n", f.FoundingYear, f.YearsInBusiness)
	case f.FoundingYear > 0:
		fmt.Fprintf(sb, "Founded: %d\n", f.FoundingYear)
	case f.YearsInBusiness > 0:
		fmt.Fprintf(sb, "Years in business: %d\n", f.YearsInBusiness)
	}
	if f.TeamSize > 0 {
		fmt.Fprintf(sb, "Team size: %d\n", f.TeamSize)
	}
	if len(f.TeamMembersNamed) > 0 {
		fmt.Fprintf(sb, "Named team members: %s\n", strings.Join(f.TeamMembersNamed, ", "))
	}
	if len(f.Services) > 0 {
		fmt.Fprintf(sb, "Services: %s\n", strings.Join(f.Services, ", "))
	}
	if len(f.Certifications) > 0 {
		fmt.Fprintf(sb, "Certifications: %s\n", strings.Join(f.Certifications, ", "))
	}
	if len(f.PricingSignals) > 0 {
		fmt.Fprintf(sb, "Pricing signals: %s\n", strings.Join(f.PricingSignals, ", "))
	}
	if len(f.RedFlags) > 0 {
		fmt.Fprintf(sb, "Red flags: %s\n", strings.Join(f.RedFlags, ", "))
	}
	if f.OwnershipType != "" {
		fmt.Fprintf(sb, "Ownership type: %s\n", f.OwnershipType)
	}
	if f.HasCommercialClients {
		sb.WriteString("Serves commercial clients: yes\n")
	}
	for _, q := range f.NotableQuotes {
		fmt.Fprintf(sb, "Quote: %q (%s)\n", q.Text, q.SourceURL)
	}
}

func socialNames(social map[string]string) []string {
	names := make([]string, 0, len(social))
	for name := range social {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
