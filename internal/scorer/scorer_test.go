package scorer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadqual/internal/config"
	"github.com/sells-group/leadqual/internal/extract"
	"github.com/sells-group/leadqual/internal/model"
	"github.com/sells-group/leadqual/pkg/anthropic"
)

// fakeClient returns canned responses in order and records every request.
type fakeClient struct {
	responses []string
	errs      []error
	requests  []anthropic.MessageRequest
}

func (f *fakeClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.requests = append(f.requests, req)
	i := len(f.requests) - 1
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	text := ""
	if i < len(f.responses) {
		text = f.responses[i]
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}, nil
}

func newTestEngine(client anthropic.Client) *Engine {
	e := NewEngine(client, config.AnthropicConfig{
		ExtractModel: "claude-haiku-4-5-20251001",
		ScoreModel:   "claude-sonnet-4-5-20250929",
	})
	e.ladder = []time.Duration{time.Millisecond, time.Millisecond}
	return e
}

func testLead() *model.Lead {
	return &model.Lead{
		ID:           "lead-1",
		Name:         "Apex Plumbing",
		City:         "Tulsa",
		State:        "OK",
		BusinessType: "plumber",
		ReviewCount:  84,
		Rating:       4.6,
	}
}

func TestExtractFactsParsesCleanResponse(t *testing.T) {
	client := &fakeClient{responses: []string{
		`{"owner_names":["Dave Miller"],"founding_year":1998,"services":["drain cleaning"],
		  "notable_quotes":[{"text":"Family owned since 1998.","source_url":"https://apex.example/about"}]}`,
	}}
	e := newTestEngine(client)

	facts, usage, err := e.ExtractFacts(context.Background(), testLead(), "--- Page: about ---")
	require.NoError(t, err)
	assert.Equal(t, []string{"Dave Miller"}, facts.OwnerNames)
	assert.Equal(t, 1998, facts.FoundingYear)
	require.Len(t, facts.NotableQuotes, 1)
	assert.Equal(t, "Family owned since 1998.", facts.NotableQuotes[0].Text)
	assert.Equal(t, int64(100), usage.InputTokens)
}

func TestExtractFactsStripsFences(t *testing.T) {
	client := &fakeClient{responses: []string{
		"```json\n{\"team_size\": 7}\n```",
	}}
	e := newTestEngine(client)

	facts, _, err := e.ExtractFacts(context.Background(), testLead(), "doc")
	require.NoError(t, err)
	assert.Equal(t, 7, facts.TeamSize)
}

func TestExtractFactsRepairsTruncation(t *testing.T) {
	client := &fakeClient{responses: []string{
		`{"services": ["plumbing", "heating"], "red_flags": ["closing soon`,
	}}
	e := newTestEngine(client)

	facts, _, err := e.ExtractFacts(context.Background(), testLead(), "doc")
	require.NoError(t, err)
	assert.Equal(t, []string{"plumbing", "heating"}, facts.Services)
	assert.Equal(t, []string{"closing soon"}, facts.RedFlags)
}

func TestExtractFactsGarbageYieldsEmptyFacts(t *testing.T) {
	client := &fakeClient{responses: []string{
		"I could not find any structured information on this website.",
	}}
	e := newTestEngine(client)

	facts, _, err := e.ExtractFacts(context.Background(), testLead(), "doc")
	require.NoError(t, err)
	assert.Equal(t, &model.ExtractedFacts{}, facts)
}

func TestExtractFactsDerivesYearsInBusiness(t *testing.T) {
	client := &fakeClient{responses: []string{
		`{"founding_year": 2005}`,
	}}
	e := newTestEngine(client)

	facts, _, err := e.ExtractFacts(context.Background(), testLead(), "doc")
	require.NoError(t, err)
	assert.Equal(t, time.Now().Year()-2005, facts.YearsInBusiness)
}

func TestExtractFactsFoundingScenario(t *testing.T) {
	client := &fakeClient{responses: []string{
		`{"founding_year": 2005, "team_size": 12, "has_commercial_clients": true,
		  "notable_quotes":[{"text":"We're proud to serve commercial clients","source_url":"https://apex.example/services"}]}`,
	}}
	e := newTestEngine(client)

	facts, _, err := e.ExtractFacts(context.Background(), testLead(),
		"Founded in 2005, our team of 12 serves residential and commercial clients.")
	require.NoError(t, err)
	assert.Equal(t, time.Now().Year()-2005, facts.YearsInBusiness)
	assert.Equal(t, 12, facts.TeamSize)
	assert.True(t, facts.HasCommercialClients)
	require.Len(t, facts.NotableQuotes, 1)
	assert.Equal(t, "We're proud to serve commercial clients", facts.NotableQuotes[0].Text)
}

func TestExtractFactsPromptIncludesLeadHeader(t *testing.T) {
	client := &fakeClient{responses: []string{`{}`}}
	e := newTestEngine(client)

	_, _, err := e.ExtractFacts(context.Background(), testLead(), "SITE CONTENT HERE")
	require.NoError(t, err)
	require.Len(t, client.requests, 1)
	prompt := client.requests[0].Messages[0].Content
	assert.Contains(t, prompt, "Apex Plumbing")
	assert.Contains(t, prompt, "Tulsa, OK")
	assert.Contains(t, prompt, "SITE CONTENT HERE")
}

func scoreJSON(bq, er float64) string {
	return fmt.Sprintf(`{"business_quality_score": %.1f, "exit_readiness_score": %.1f,
	  "ownership_type": "family", "is_excluded": false, "rationale": "Solid operation."}`, bq, er)
}

func TestScoreParsesCleanResponse(t *testing.T) {
	client := &fakeClient{responses: []string{scoreJSON(7.5, 6.0)}}
	e := newTestEngine(client)

	facts := &model.ExtractedFacts{NotableQuotes: []model.Quote{
		{Text: "Serving Tulsa since 1998.", SourceURL: "https://apex.example"},
	}}
	res, _, err := e.Score(context.Background(), testLead(), facts, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 7.5, res.BusinessQualityScore)
	assert.Equal(t, 6.0, res.ExitReadinessScore)
	assert.Equal(t, "family", res.OwnershipType)
	assert.Equal(t, model.OutcomeParsed, res.Outcome)
	assert.Len(t, client.requests, 1)
}

func TestScoreResultSurvivesReserialization(t *testing.T) {
	client := &fakeClient{responses: []string{
		`{"business_quality_score": 72.5, "exit_readiness_score": 41.0, "is_excluded": true, "exclusion_reason": "franchise"}`,
	}}
	e := newTestEngine(client)

	res, _, err := e.Score(context.Background(), testLead(), &model.ExtractedFacts{}, nil, nil)
	require.NoError(t, err)

	data, err := json.Marshal(res)
	require.NoError(t, err)
	var back model.ScoringResult
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, 72.5, back.BusinessQualityScore)
	assert.Equal(t, 41.0, back.ExitReadinessScore)
	assert.True(t, back.IsExcluded)
}

func TestScoreCopiesEvidenceFromFacts(t *testing.T) {
	client := &fakeClient{responses: []string{scoreJSON(8.0, 5.0)}}
	e := newTestEngine(client)

	quotes := []model.Quote{
		{Text: "Over 25 years in business.", SourceURL: "https://apex.example/about"},
		{Text: "Licensed and bonded.", SourceURL: "https://apex.example"},
	}
	res, _, err := e.Score(context.Background(), testLead(), &model.ExtractedFacts{NotableQuotes: quotes}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, quotes, res.SupportingEvidence)
}

func TestScoreEvidenceEmptyNotNil(t *testing.T) {
	client := &fakeClient{responses: []string{scoreJSON(4.0, 3.0)}}
	e := newTestEngine(client)

	res, _, err := e.Score(context.Background(), testLead(), &model.ExtractedFacts{}, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, res.SupportingEvidence)
	assert.Empty(t, res.SupportingEvidence)
}

func TestScoreRepairsOnce(t *testing.T) {
	client := &fakeClient{responses: []string{
		"Sure! Here are the scores: quality looks strong.",
		scoreJSON(6.5, 4.0),
	}}
	e := newTestEngine(client)

	res, usage, err := e.Score(context.Background(), testLead(), &model.ExtractedFacts{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeRepaired, res.Outcome)
	assert.Equal(t, 6.5, res.BusinessQualityScore)
	assert.Equal(t, int64(200), usage.InputTokens)

	require.Len(t, client.requests, 2)
	repair := client.requests[1]
	require.Len(t, repair.Messages, 3)
	assert.Equal(t, "assistant", repair.Messages[1].Role)
	assert.Contains(t, repair.Messages[2].Content, "could not be parsed")
}

func TestScoreMissingScoreTriggersRepair(t *testing.T) {
	client := &fakeClient{responses: []string{
		`{"ownership_type": "solo", "rationale": "no scores here"}`,
		scoreJSON(3.0, 2.0),
	}}
	e := newTestEngine(client)

	res, _, err := e.Score(context.Background(), testLead(), &model.ExtractedFacts{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeRepaired, res.Outcome)
}

func TestScoreFailsAfterFailedRepair(t *testing.T) {
	client := &fakeClient{responses: []string{
		"not json",
		"still not json",
	}}
	e := newTestEngine(client)

	res, _, err := e.Score(context.Background(), testLead(), &model.ExtractedFacts{}, nil, nil)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "after repair")
	assert.Len(t, client.requests, 2)
}

func TestScoreClampsScores(t *testing.T) {
	client := &fakeClient{responses: []string{
		`{"business_quality_score": 140.0, "exit_readiness_score": -2.0}`,
	}}
	e := newTestEngine(client)

	res, _, err := e.Score(context.Background(), testLead(), &model.ExtractedFacts{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.BusinessQualityScore)
	assert.Equal(t, 0.0, res.ExitReadinessScore)
}

func TestBuildDigestSections(t *testing.T) {
	facts := &model.ExtractedFacts{
		OwnerNames:      []string{"Dave Miller"},
		FoundingYear:    1998,
		YearsInBusiness: 28,
		Services:        []string{"drain cleaning", "repiping"},
		NotableQuotes: []model.Quote{
			{Text: "Family owned since 1998.", SourceURL: "https://apex.example/about"},
		},
	}
	ext := &extract.Result{
		TeamMembers: []extract.TeamMember{{Name: "Dave Miller", Title: "Owner"}},
		Headcount:   12,
		Social:      map[string]string{"facebook": "https://facebook.com/apex", "twitter": "https://x.com/apex"},
		Snippets:    []extract.Snippet{{Category: "certification", Text: "We are EPA certified."}},
	}
	mc := &model.MarketContext{
		BusinessType: "plumber",
		CohortSize:   40,
		ReviewCount:  model.CohortPercentiles{P25: 10, P50: 30, P75: 80, P90: 200},
		Rating:       model.CohortPercentiles{P25: 4.0, P50: 4.4, P75: 4.7, P90: 4.9},
	}

	digest := buildDigest(testLead(), facts, ext, mc)

	assert.Contains(t, digest, "## Business")
	assert.Contains(t, digest, "## Market position")
	assert.Contains(t, digest, "Cohort: plumber (40 scored peers)")
	assert.Contains(t, digest, "## Facts from site copy")
	assert.Contains(t, digest, "Owners: Dave Miller")
	assert.Contains(t, digest, "Founded: 1998 (28 years in business)")
	assert.Contains(t, digest, "Services: drain cleaning, repiping")
	assert.Contains(t, digest, `Quote: "Family owned since 1998." (https://apex.example/about)`)
	// The facts read as labeled lines, not serialized field names.
	assert.NotContains(t, digest, "owner_names")
	assert.NotContains(t, digest, `"notable_quotes"`)
	assert.Contains(t, digest, "Stated headcount: 12")
	assert.Contains(t, digest, "Social profiles: facebook, twitter")
	assert.Contains(t, digest, "[certification] We are EPA certified.")
}

func TestBuildDigestOmitsMissingSections(t *testing.T) {
	digest := buildDigest(testLead(), nil, nil, nil)
	assert.Contains(t, digest, "## Business")
	assert.NotContains(t, digest, "## Market position")
	assert.NotContains(t, digest, "## Facts from site copy")
	assert.NotContains(t, digest, "## Deterministic extraction")
}

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose wrapped", `Here you go: {"a":1} hope that helps`, `{"a":1}`},
		{"no object", "nothing here", "nothing here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanJSON(tt.in))
		})
	}
}

func TestRepairTruncatedJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"unclosed object", `{"a": {"b": 1`},
		{"unclosed array", `{"a": [1, 2`},
		{"unclosed string", `{"a": "hel`},
		{"escaped quote in string", `{"a": "he said \"hi`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repaired := repairTruncatedJSON(tt.in)
			var v map[string]any
			assert.NoError(t, jsonUnmarshal(repaired, &v), "repaired: %s", repaired)
		})
	}
}

func TestRepairTruncatedJSONLeavesValidAlone(t *testing.T) {
	in := `{"a": [1, 2], "b": "done"}`
	assert.Equal(t, in, repairTruncatedJSON(in))
}

func TestCallModelUsesCachedSystemBlock(t *testing.T) {
	client := &fakeClient{responses: []string{`{}`}}
	e := newTestEngine(client)

	_, _, err := e.ExtractFacts(context.Background(), testLead(), "doc")
	require.NoError(t, err)
	require.Len(t, client.requests, 1)
	sys := client.requests[0].System
	require.Len(t, sys, 1)
	assert.True(t, strings.Contains(sys[0].Text, "research analyst"))
	require.NotNil(t, sys[0].CacheControl)
	assert.Equal(t, "1h", sys[0].CacheControl.TTL)
}
