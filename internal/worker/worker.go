// Package worker processes one dispatched batch: for each lead it
// normalizes the crawl artifact, runs deterministic extraction, runs
// both scoring passes, and persists the outcome.
package worker

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadqual/internal/extract"
	"github.com/sells-group/leadqual/internal/launcher"
	"github.com/sells-group/leadqual/internal/markdown"
	"github.com/sells-group/leadqual/internal/model"
	"github.com/sells-group/leadqual/internal/objstore"
	"github.com/sells-group/leadqual/internal/resilience"
	"github.com/sells-group/leadqual/internal/store"
	"github.com/sells-group/leadqual/pkg/anthropic"
)

// maxErrLen caps the persisted scoring error message.
const maxErrLen = 500

// ScoringEngine is the two-pass evaluator the worker drives.
type ScoringEngine interface {
	ExtractFacts(ctx context.Context, lead *model.Lead, doc string) (*model.ExtractedFacts, anthropic.TokenUsage, error)
	Score(ctx context.Context, lead *model.Lead, facts *model.ExtractedFacts, ext *extract.Result, mc *model.MarketContext) (*model.ScoringResult, anthropic.TokenUsage, error)
}

// MarketDescriber supplies percentile context for a business type.
type MarketDescriber interface {
	Describe(businessType string) *model.MarketContext
}

// Worker runs one batch to completion with bounded lead concurrency.
type Worker struct {
	store       store.Store
	objects     objstore.Store
	engine      ScoringEngine
	market      MarketDescriber
	concurrency int
	maxDocChars int
}

func New(st store.Store, objects objstore.Store, engine ScoringEngine, market MarketDescriber, concurrency, maxDocChars int) *Worker {
	if concurrency <= 0 {
		concurrency = 8
	}
	if maxDocChars <= 0 {
		maxDocChars = markdown.DefaultMaxChars
	}
	return &Worker{
		store:       st,
		objects:     objects,
		engine:      engine,
		market:      market,
		concurrency: concurrency,
		maxDocChars: maxDocChars,
	}
}

// JobFromEnv reads the job descriptor injected by the dispatcher's
// container launch.
func JobFromEnv() (*model.JobDescriptor, error) {
	raw := os.Getenv(launcher.JobEnvVar)
	if raw == "" {
		return nil, eris.Errorf("worker: %s not set", launcher.JobEnvVar)
	}
	var job model.JobDescriptor
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, eris.Wrap(err, "worker: parse job descriptor")
	}
	if job.BatchRef == "" || job.TaskID == "" {
		return nil, eris.New("worker: job descriptor missing batchRef or taskId")
	}
	return &job, nil
}

// counters tallies per-batch outcomes under a lock.
type counters struct {
	mu        sync.Mutex
	processed int
	scored    int
	failed    int
	skipped   int
}

func (c *counters) add(processed, scored, failed, skipped int) {
	c.mu.Lock()
	c.processed += processed
	c.scored += scored
	c.failed += failed
	c.skipped += skipped
	c.mu.Unlock()
}

// Run processes the batch named by the job descriptor and terminally
// transitions its task row. Individual lead failures are recorded and
// counted; only infrastructure errors (batch payload unreadable, store
// down) fail the task itself.
func (w *Worker) Run(ctx context.Context, job *model.JobDescriptor) (*model.BatchResult, error) {
	var items []model.BatchItem
	if err := objstore.GetJSON(ctx, w.objects, job.BatchRef, &items); err != nil {
		werr := eris.Wrapf(err, "worker: load batch %s", job.BatchRef)
		w.finishTask(ctx, job.TaskID, model.TaskStatusFailed, werr.Error(), nil)
		return nil, werr
	}

	var tally counters
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, item := range items {
		g.Go(func() error {
			w.processLead(gctx, item, &tally)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &model.BatchResult{
		JobID:      objstore.JobIDFromBatchRef(job.BatchRef),
		TaskID:     job.TaskID,
		Processed:  tally.processed,
		Scored:     tally.scored,
		Failed:     tally.failed,
		Skipped:    tally.skipped,
		FinishedAt: time.Now(),
	}
	w.writeResult(ctx, result)

	w.finishTask(ctx, job.TaskID, model.TaskStatusCompleted, "", map[string]int{
		"processed": tally.processed,
		"scored":    tally.scored,
		"failed":    tally.failed,
		"skipped":   tally.skipped,
	})

	zap.L().Info("batch complete",
		zap.String("task_id", job.TaskID),
		zap.Int("processed", tally.processed),
		zap.Int("scored", tally.scored),
		zap.Int("failed", tally.failed),
		zap.Int("skipped", tally.skipped))
	return result, nil
}

// processLead runs one lead through the full scoring path. Never
// returns an error: every outcome lands in the tally.
func (w *Worker) processLead(ctx context.Context, item model.BatchItem, tally *counters) {
	log := zap.L().With(zap.String("lead_id", item.LeadID))

	lead, err := w.store.GetLead(ctx, item.LeadID)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			log.Warn("lead in batch no longer exists, skipping")
			tally.add(0, 0, 0, 1)
			return
		}
		log.Error("load lead", zap.Error(err))
		tally.add(1, 0, 1, 0)
		return
	}

	// Redelivered trigger for an already scored lead.
	if lead.Scored() {
		log.Debug("lead already scored, skipping")
		tally.add(0, 0, 0, 1)
		return
	}

	if err := w.store.SetLeadStatus(ctx, lead.ID, model.StatusScoring); err != nil {
		log.Error("mark scoring", zap.Error(err))
		tally.add(1, 0, 1, 0)
		return
	}

	if err := w.scoreLead(ctx, lead, item.Ref); err != nil {
		log.Error("scoring failed", zap.Error(err))
		if ferr := w.store.MarkLeadScoringFailed(ctx, lead.ID, truncateErr(err)); ferr != nil {
			log.Error("record scoring failure", zap.Error(ferr))
		}
		tally.add(1, 0, 1, 0)
		return
	}
	tally.add(1, 1, 0, 0)
}

func (w *Worker) scoreLead(ctx context.Context, lead *model.Lead, scrapeRef string) error {
	var artifact model.ScrapeArtifact
	err := resilience.Do(ctx, resilience.DefaultRetryConfig(), "load scrape artifact", func(ctx context.Context) error {
		return objstore.GetJSON(ctx, w.objects, scrapeRef, &artifact)
	})
	if err != nil {
		return eris.Wrapf(err, "load scrape artifact %s", scrapeRef)
	}

	pages := markdown.NormalizePages(artifact.Pages)
	doc := markdown.BuildDocument(pages, w.maxDocChars)
	if doc == "" {
		return eris.New("scrape artifact has no usable page content")
	}
	w.persistPages(ctx, lead.ID, pages)

	ext := extract.Run(artifact.Pages)
	if email, phone := ext.PrimaryEmail(), ext.PrimaryPhone(); email != "" || phone != "" {
		if err := w.store.UpdateLeadContact(ctx, lead.ID, email, phone); err != nil {
			zap.L().Warn("update contact", zap.String("lead_id", lead.ID), zap.Error(err))
		}
	}

	facts, _, err := w.engine.ExtractFacts(ctx, lead, doc)
	if err != nil {
		return eris.Wrap(err, "extract facts")
	}

	factsRef := objstore.FactsKey(lead.ID)
	if err := objstore.PutJSON(ctx, w.objects, factsRef, facts); err != nil {
		return eris.Wrap(err, "persist facts")
	}

	var mc *model.MarketContext
	if w.market != nil {
		mc = w.market.Describe(lead.BusinessType)
	}

	result, _, err := w.engine.Score(ctx, lead, facts, ext, mc)
	if err != nil {
		return eris.Wrap(err, "score")
	}

	if err := w.store.SaveScoringOutput(ctx, lead.ID, result, factsRef); err != nil {
		return eris.Wrap(err, "save scoring output")
	}
	return nil
}

// persistPages stores each normalized page on its own so a reviewer
// can see exactly what the model was shown. Failures are logged, never
// fatal.
func (w *Worker) persistPages(ctx context.Context, leadID string, pages []markdown.Page) {
	for i, pg := range pages {
		key := objstore.PageKey(leadID, i)
		if err := w.objects.Put(ctx, key, []byte(pg.Markdown), "text/markdown"); err != nil {
			zap.L().Warn("persist page markdown", zap.String("key", key), zap.Error(err))
		}
	}
}

// writeResult persists the per-task summary. Queue-driven batches have
// no job; their results are keyed under the task ID alone.
func (w *Worker) writeResult(ctx context.Context, result *model.BatchResult) {
	jobID := result.JobID
	if jobID == "" {
		jobID = result.TaskID
	}
	key := objstore.ResultKey(jobID, result.TaskID)
	err := resilience.Do(ctx, resilience.DefaultRetryConfig(), "write batch result", func(ctx context.Context) error {
		return objstore.PutJSON(ctx, w.objects, key, result)
	})
	if err != nil {
		zap.L().Error("write batch result", zap.String("key", key), zap.Error(err))
	}
}

func (w *Worker) finishTask(ctx context.Context, taskID string, status model.TaskStatus, errMsg string, metadata map[string]int) {
	if err := w.store.FinishTask(ctx, taskID, status, errMsg, metadata); err != nil {
		zap.L().Error("finish task", zap.String("task_id", taskID), zap.Error(err))
	}
}

func truncateErr(err error) string {
	msg := err.Error()
	if len(msg) > maxErrLen {
		return msg[:maxErrLen]
	}
	return msg
}
