// Package scorer runs the two-pass LLM evaluation: Pass 1 extracts
// structured facts from site copy with a fast model, Pass 2 scores the
// assembled digest with a stronger one.
package scorer

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadqual/internal/config"
	"github.com/sells-group/leadqual/internal/resilience"
	"github.com/sells-group/leadqual/pkg/anthropic"
)

const (
	factsMaxTokens = 2048
	scoreMaxTokens = 1024
)

// Engine drives both scoring passes against the Anthropic API. A shared
// rate limiter spaces requests across concurrent leads; 429/529
// responses climb the backoff ladder before giving up.
type Engine struct {
	client       anthropic.Client
	extractModel string
	scoreModel   string
	limiter      *rate.Limiter
	ladder       []time.Duration
}

// NewEngine creates an Engine from configuration.
func NewEngine(client anthropic.Client, cfg config.AnthropicConfig) *Engine {
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Engine{
		client:       client,
		extractModel: cfg.ExtractModel,
		scoreModel:   cfg.ScoreModel,
		limiter:      limiter,
		ladder:       resilience.DefaultThrottleLadder,
	}
}

// callModel performs one rate-limited, throttle-retried message call.
func (e *Engine) callModel(ctx context.Context, model string, system string, messages []anthropic.Message, maxTokens int64) (*anthropic.MessageResponse, error) {
	return resilience.LadderVal(ctx, e.ladder, nil, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "scorer: rate limit wait")
			}
		}
		resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     model,
			MaxTokens: maxTokens,
			System:    anthropic.BuildCachedSystemBlocks(system),
			Messages:  messages,
		})
		if err != nil {
			if anthropic.IsRateLimited(err) {
				return nil, resilience.NewThrottleError(err)
			}
			return nil, err
		}
		return resp, nil
	})
}

func logUsage(model, pass, leadID string, usage anthropic.TokenUsage) {
	usage.LogCost(model, pass)
	zap.L().Debug("model call complete",
		zap.String("lead_id", leadID),
		zap.String("pass", pass),
		zap.String("model", model))
}
