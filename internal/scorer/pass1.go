package scorer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/leadqual/internal/model"
	"github.com/sells-group/leadqual/pkg/anthropic"
)

// ExtractFacts runs Pass 1: structured fact extraction from the site
// document. The parse is forgiving; a response that cannot be decoded
// yields empty facts rather than failing the lead, since Pass 2 can
// still score from the deterministic extraction.
func (e *Engine) ExtractFacts(ctx context.Context, lead *model.Lead, doc string) (*model.ExtractedFacts, anthropic.TokenUsage, error) {
	resp, err := e.callModel(ctx, e.extractModel, factsSystemPrompt,
		[]anthropic.Message{{Role: "user", Content: buildFactsPrompt(lead, doc)}},
		factsMaxTokens,
	)
	if err != nil {
		return nil, anthropic.TokenUsage{}, err
	}
	logUsage(e.extractModel, "facts", lead.ID, resp.Usage)

	facts := parseFacts(resp.Text(), lead.ID)
	postProcessFacts(facts)
	return facts, resp.Usage, nil
}

// parseFacts decodes the Pass 1 response: direct parse, then cleaned
// parse with truncation repair, then an empty default.
func parseFacts(text, leadID string) *model.ExtractedFacts {
	var facts model.ExtractedFacts
	if tryUnmarshal(text, &facts) {
		return &facts
	}

	repaired := repairTruncatedJSON(cleanJSON(text))
	facts = model.ExtractedFacts{}
	if err := jsonUnmarshal(repaired, &facts); err == nil {
		return &facts
	}

	zap.L().Warn("fact extraction response unusable, continuing with empty facts",
		zap.String("lead_id", leadID),
		zap.Int("response_len", len(text)))
	return &model.ExtractedFacts{}
}

// postProcessFacts derives fields the model tends to leave blank.
func postProcessFacts(facts *model.ExtractedFacts) {
	if facts.YearsInBusiness == 0 && facts.FoundingYear > 1800 {
		years := time.Now().Year() - facts.FoundingYear
		if years >= 0 {
			facts.YearsInBusiness = years
		}
	}
}
