package scorer

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadqual/internal/extract"
	"github.com/sells-group/leadqual/internal/model"
	"github.com/sells-group/leadqual/pkg/anthropic"
)

// pass2Response is the wire shape of a scoring response. Pointer score
// fields distinguish "missing" from a literal zero; a response without
// both scores is malformed.
type pass2Response struct {
	BusinessQualityScore *float64 `json:"business_quality_score"`
	ExitReadinessScore   *float64 `json:"exit_readiness_score"`
	OwnershipType        string   `json:"ownership_type"`
	IsExcluded           bool     `json:"is_excluded"`
	ExclusionReason      string   `json:"exclusion_reason"`
	Rationale            string   `json:"rationale"`
}

func (r *pass2Response) valid() bool {
	return r.BusinessQualityScore != nil && r.ExitReadinessScore != nil
}

// Score runs Pass 2: the stronger model scores the assembled digest.
// A malformed response earns exactly one repair call; a second
// malformed response fails the lead. SupportingEvidence is always the
// Pass 1 verbatim quotes, never model-originated text.
func (e *Engine) Score(ctx context.Context, lead *model.Lead, facts *model.ExtractedFacts, ext *extract.Result, mc *model.MarketContext) (*model.ScoringResult, anthropic.TokenUsage, error) {
	digest := buildDigest(lead, facts, ext, mc)
	messages := []anthropic.Message{{Role: "user", Content: digest}}

	resp, err := e.callModel(ctx, e.scoreModel, scoreSystemPrompt, messages, scoreMaxTokens)
	if err != nil {
		return nil, anthropic.TokenUsage{}, err
	}
	usage := resp.Usage
	logUsage(e.scoreModel, "score", lead.ID, resp.Usage)

	var parsed pass2Response
	outcome := model.OutcomeParsed
	if perr := parseJSON(resp.Text(), &parsed); perr != nil || !parsed.valid() {
		zap.L().Warn("scoring response malformed, attempting repair",
			zap.String("lead_id", lead.ID), zap.Error(perr))

		messages = append(messages,
			anthropic.Message{Role: "assistant", Content: resp.Text()},
			anthropic.Message{Role: "user", Content: buildRepairPrompt(perr)},
		)
		repairResp, err := e.callModel(ctx, e.scoreModel, scoreSystemPrompt, messages, scoreMaxTokens)
		if err != nil {
			return nil, usage, err
		}
		usage.Add(repairResp.Usage)
		logUsage(e.scoreModel, "score-repair", lead.ID, repairResp.Usage)

		parsed = pass2Response{}
		if !tryUnmarshal(repairResp.Text(), &parsed) || !parsed.valid() {
			return nil, usage, eris.Errorf("scorer: unparseable scoring response for lead %s after repair", lead.ID)
		}
		outcome = model.OutcomeRepaired
	}

	result := &model.ScoringResult{
		BusinessQualityScore: clampScore(*parsed.BusinessQualityScore),
		ExitReadinessScore:   clampScore(*parsed.ExitReadinessScore),
		OwnershipType:        parsed.OwnershipType,
		IsExcluded:           parsed.IsExcluded,
		ExclusionReason:      parsed.ExclusionReason,
		Rationale:            parsed.Rationale,
		SupportingEvidence:   evidenceFromFacts(facts),
		Outcome:              outcome,
	}
	return result, usage, nil
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// evidenceFromFacts copies the Pass 1 quotes. An empty slice, not nil,
// so the persisted JSON always carries the field.
func evidenceFromFacts(facts *model.ExtractedFacts) []model.Quote {
	if facts == nil || len(facts.NotableQuotes) == 0 {
		return []model.Quote{}
	}
	out := make([]model.Quote, len(facts.NotableQuotes))
	copy(out, facts.NotableQuotes)
	return out
}
