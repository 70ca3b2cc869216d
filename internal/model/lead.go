package model

import "time"

// PipelineStatus marks which pipeline stage currently owns a lead.
// A lead is owned by the pipeline while the status is non-idle, and is
// mutated only by the stage named in the status.
type PipelineStatus string

const (
	StatusIdle          PipelineStatus = "idle"
	StatusScraping      PipelineStatus = "scraping"
	StatusScoring       PipelineStatus = "scoring"
	StatusScoringFailed PipelineStatus = "scoring_failed"
)

// Lead represents a business record being enriched and qualified.
type Lead struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Website      string         `json:"website"`
	City         string         `json:"city,omitempty"`
	State        string         `json:"state,omitempty"`
	BusinessType string         `json:"business_type,omitempty"`
	Email        string         `json:"email,omitempty"`
	Phone        string         `json:"phone,omitempty"`
	ReviewCount  int            `json:"review_count"`
	Rating       float64        `json:"rating"`
	Status       PipelineStatus `json:"pipeline_status"`

	// ScrapeRef is the object-store key of the crawl artifact for this lead.
	ScrapeRef string `json:"scrape_ref,omitempty"`
	// FactsRef is the object-store key of the persisted Pass 1 facts.
	FactsRef string `json:"facts_ref,omitempty"`

	// Scoring outputs.
	BusinessQualityScore *float64   `json:"business_quality_score,omitempty"`
	ExitReadinessScore   *float64   `json:"exit_readiness_score,omitempty"`
	OwnershipType        string     `json:"ownership_type,omitempty"`
	IsExcluded           bool       `json:"is_excluded"`
	ExclusionReason      string     `json:"exclusion_reason,omitempty"`
	Rank                 int        `json:"rank,omitempty"`
	ScoredAt             *time.Time `json:"scored_at,omitempty"`
	ScoreError           string     `json:"score_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Scored reports whether the lead already has persisted scoring output
// for its current scrape artifact. Used for idempotent re-processing:
// a redelivered trigger for an unchanged lead is skipped, not re-scored.
func (l *Lead) Scored() bool {
	return l.ScoredAt != nil && l.BusinessQualityScore != nil
}

// ScrapedPage is one crawled page supplied by the upstream crawl stage.
type ScrapedPage struct {
	URL             string `json:"url"`
	Title           string `json:"title,omitempty"`
	HTML            string `json:"html,omitempty"`
	Text            string `json:"text,omitempty"`
	MetaDescription string `json:"meta_description,omitempty"`
	StatusCode      int    `json:"status_code,omitempty"`
}

// ScrapeArtifact is the persisted output of the crawl stage for one lead.
type ScrapeArtifact struct {
	LeadID    string        `json:"lead_id"`
	Pages     []ScrapedPage `json:"pages"`
	ScrapedAt time.Time     `json:"scraped_at"`
}
