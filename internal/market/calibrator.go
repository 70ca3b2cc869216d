// Package market derives percentile context from the pool of already
// scored leads, so the scoring prompt can place a lead's engagement
// signals relative to its business-type cohort instead of judging raw
// numbers.
package market

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/leadqual/internal/model"
	"github.com/sells-group/leadqual/internal/store"
)

// minCohortSize is the smallest cohort worth calibrating against.
// Thinner cohorts fall back to the cross-type pool.
const minCohortSize = 5

// globalCohort keys the cross-type fallback pool.
const globalCohort = "_all"

// SignalSource supplies the scored-lead pool the calibrator builds from.
type SignalSource interface {
	ListScoredSignals(ctx context.Context) ([]store.CohortSignal, error)
}

// Calibrator holds per-cohort percentile tables, rebuilt on Refresh.
type Calibrator struct {
	mu      sync.RWMutex
	source  SignalSource
	cohorts map[string]*model.MarketContext
}

func NewCalibrator(source SignalSource) *Calibrator {
	return &Calibrator{source: source, cohorts: map[string]*model.MarketContext{}}
}

// Refresh rebuilds the percentile tables from every scored lead. Safe
// to call concurrently with Describe.
func (c *Calibrator) Refresh(ctx context.Context) error {
	signals, err := c.source.ListScoredSignals(ctx)
	if err != nil {
		return err
	}

	byType := map[string][]store.CohortSignal{}
	for _, s := range signals {
		byType[s.BusinessType] = append(byType[s.BusinessType], s)
		byType[globalCohort] = append(byType[globalCohort], s)
	}

	cohorts := make(map[string]*model.MarketContext, len(byType))
	for businessType, members := range byType {
		cohorts[businessType] = buildContext(businessType, members)
	}

	c.mu.Lock()
	c.cohorts = cohorts
	c.mu.Unlock()

	zap.L().Info("market calibration refreshed",
		zap.Int("scored_leads", len(signals)),
		zap.Int("cohorts", len(cohorts)))
	return nil
}

// Describe returns the percentile context for a lead's business type.
// Thin or unknown cohorts fall back to the cross-type pool; a nil
// return means nothing has been scored yet.
func (c *Calibrator) Describe(businessType string) *model.MarketContext {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if mc, ok := c.cohorts[businessType]; ok && mc.CohortSize >= minCohortSize {
		return mc
	}
	return c.cohorts[globalCohort]
}

func buildContext(businessType string, members []store.CohortSignal) *model.MarketContext {
	reviews := make([]float64, len(members))
	ratings := make([]float64, len(members))
	for i, m := range members {
		reviews[i] = float64(m.ReviewCount)
		ratings[i] = m.Rating
	}

	return &model.MarketContext{
		BusinessType: businessType,
		CohortSize:   len(members),
		ReviewCount:  percentiles(reviews),
		Rating:       percentiles(ratings),
	}
}

// percentiles computes the quartile thresholds with linear
// interpolation between adjacent values.
func percentiles(values []float64) model.CohortPercentiles {
	if len(values) == 0 {
		return model.CohortPercentiles{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	return model.CohortPercentiles{
		P25: quantile(sorted, 0.25),
		P50: quantile(sorted, 0.50),
		P75: quantile(sorted, 0.75),
		P90: quantile(sorted, 0.90),
	}
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
