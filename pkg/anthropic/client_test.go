package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageResponse_Text(t *testing.T) {
	resp := &MessageResponse{
		Content: []ContentBlock{
			{Type: "text", Text: "hello "},
			{Type: "tool_use", Text: "ignored"},
			{Type: "text", Text: "world"},
		},
	}
	assert.Equal(t, "hello world", resp.Text())
}

func TestTokenUsage_Add(t *testing.T) {
	u := TokenUsage{InputTokens: 100, OutputTokens: 50}
	u.Add(TokenUsage{InputTokens: 10, OutputTokens: 5, CacheReadInputTokens: 200})
	assert.Equal(t, int64(110), u.InputTokens)
	assert.Equal(t, int64(55), u.OutputTokens)
	assert.Equal(t, int64(200), u.CacheReadInputTokens)
}

func TestTokenUsage_EstimateCost(t *testing.T) {
	u := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}

	cost := u.EstimateCost("claude-haiku-4-5-20251001")
	assert.InDelta(t, 4.80, cost, 0.001)

	assert.Zero(t, u.EstimateCost("unknown-model"))
}

func TestBuildCachedSystemBlocks(t *testing.T) {
	blocks := BuildCachedSystemBlocks("system text")
	assert.Len(t, blocks, 1)
	assert.Equal(t, "system text", blocks[0].Text)
	assert.NotNil(t, blocks[0].CacheControl)
	assert.Equal(t, "1h", blocks[0].CacheControl.TTL)
}

func TestIsRateLimited_PlainError(t *testing.T) {
	assert.False(t, IsRateLimited(assert.AnError))
	assert.False(t, IsRateLimited(nil))
}
