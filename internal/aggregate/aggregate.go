// Package aggregate tallies per-task batch results into run counters
// and refreshes the cross-lead rank ordering.
package aggregate

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadqual/internal/model"
	"github.com/sells-group/leadqual/internal/objstore"
	"github.com/sells-group/leadqual/internal/store"
)

// Aggregator folds a run's result objects into its counters. Counter
// updates are additive, so aggregating the same job twice double-counts;
// run it once per job after the workers finish.
type Aggregator struct {
	store   store.Store
	objects objstore.Store
}

func New(st store.Store, objects objstore.Store) *Aggregator {
	return &Aggregator{store: st, objects: objects}
}

// Run lists every result object under the job's results prefix, adds
// the counters, marks the run completed, and recomputes ranks.
// Malformed result objects are skipped with a warning; an unreadable
// one result never hides the rest.
func (a *Aggregator) Run(ctx context.Context, jobID string) (*model.RunStats, error) {
	keys, err := a.objects.List(ctx, objstore.ResultsPrefix(jobID))
	if err != nil {
		return nil, eris.Wrapf(err, "aggregate: list results for job %s", jobID)
	}

	var processed, scored, failed, skipped, malformed int
	for _, key := range keys {
		var result model.BatchResult
		if err := objstore.GetJSON(ctx, a.objects, key, &result); err != nil {
			zap.L().Warn("skipping unreadable result object",
				zap.String("key", key), zap.Error(err))
			malformed++
			continue
		}
		processed += result.Processed
		scored += result.Scored
		failed += result.Failed
		skipped += result.Skipped
	}

	if err := a.store.AddRunCounters(ctx, jobID, processed, scored, failed, skipped); err != nil {
		return nil, eris.Wrapf(err, "aggregate: add counters for job %s", jobID)
	}
	if err := a.store.MarkRunCompleted(ctx, jobID); err != nil {
		return nil, eris.Wrapf(err, "aggregate: complete run %s", jobID)
	}

	ranked, err := a.store.RecomputeRanks(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "aggregate: recompute ranks")
	}

	zap.L().Info("run aggregated",
		zap.String("job_id", jobID),
		zap.Int("results", len(keys)),
		zap.Int("malformed", malformed),
		zap.Int("processed", processed),
		zap.Int("scored", scored),
		zap.Int64("ranked", ranked))

	return a.store.GetRun(ctx, jobID)
}
