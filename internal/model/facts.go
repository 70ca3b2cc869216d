package model

// Quote is a verbatim snippet of site copy with its source page.
type Quote struct {
	Text      string `json:"text"`
	SourceURL string `json:"source_url"`
}

// ExtractedFacts is the structured output of scoring Pass 1. Every field
// is optional; the zero value means "nothing found" and is a valid,
// degraded result. Pass 1 never fails a lead on malformed model output.
type ExtractedFacts struct {
	OwnerNames          []string `json:"owner_names,omitempty"`
	TeamSize            int      `json:"team_size,omitempty"`
	TeamMembersNamed    []string `json:"team_members_named,omitempty"`
	FoundingYear        int      `json:"founding_year,omitempty"`
	YearsInBusiness     int      `json:"years_in_business,omitempty"`
	Services            []string `json:"services,omitempty"`
	Certifications      []string `json:"certifications,omitempty"`
	PricingSignals      []string `json:"pricing_signals,omitempty"`
	RedFlags            []string `json:"red_flags,omitempty"`
	NotableQuotes       []Quote  `json:"notable_quotes,omitempty"`
	HasCommercialClients bool    `json:"has_commercial_clients,omitempty"`
	OwnershipType       string   `json:"ownership_type,omitempty"`
}

// ScoreOutcome tags how a Pass 2 response was obtained.
type ScoreOutcome string

const (
	OutcomeParsed   ScoreOutcome = "parsed"
	OutcomeRepaired ScoreOutcome = "repaired"
	OutcomeFailed   ScoreOutcome = "failed"
)

// ScoringResult is the output of scoring Pass 2. SupportingEvidence is
// always copied from the Pass 1 verbatim quotes; Pass 2 never originates
// evidence text of its own.
type ScoringResult struct {
	BusinessQualityScore float64      `json:"business_quality_score"`
	ExitReadinessScore   float64      `json:"exit_readiness_score"`
	OwnershipType        string       `json:"ownership_type,omitempty"`
	IsExcluded           bool         `json:"is_excluded"`
	ExclusionReason      string       `json:"exclusion_reason,omitempty"`
	Rationale            string       `json:"rationale,omitempty"`
	SupportingEvidence   []Quote      `json:"supporting_evidence"`
	Outcome              ScoreOutcome `json:"outcome,omitempty"`
}

// CohortPercentiles holds percentile thresholds for one engagement
// signal within a business-type cohort.
type CohortPercentiles struct {
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P90 float64 `json:"p90"`
}

// MarketContext places a cohort's engagement signals on a percentile
// scale. Derived from the pool of already-scored leads, never stored
// per-lead.
type MarketContext struct {
	BusinessType string            `json:"business_type"`
	CohortSize   int               `json:"cohort_size"`
	ReviewCount  CohortPercentiles `json:"review_count"`
	Rating       CohortPercentiles `json:"rating"`
}
