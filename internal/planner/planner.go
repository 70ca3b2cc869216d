// Package planner partitions the qualifying lead set into fixed-size
// batch payloads and writes them, plus a manifest, to the object store.
package planner

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadqual/internal/model"
	"github.com/sells-group/leadqual/internal/objstore"
	"github.com/sells-group/leadqual/internal/store"
)

// Planner builds batch plans. Re-planning the same job ID overwrites the
// previous manifest and batch payloads.
type Planner struct {
	store     store.Store
	objects   objstore.Store
	bucket    string
	batchSize int
}

func New(st store.Store, objects objstore.Store, bucket string, batchSize int) *Planner {
	if batchSize <= 0 {
		batchSize = 250
	}
	return &Planner{store: st, objects: objects, bucket: bucket, batchSize: batchSize}
}

// Plan selects the leads matching the filter, partitions them into
// batches, writes every batch payload and then the manifest. The
// manifest is written last so a readable manifest always references
// payloads that exist. An empty selection still produces a manifest.
func (p *Planner) Plan(ctx context.Context, jobID string, filter store.LeadFilter) (*model.Manifest, error) {
	leads, err := p.store.ListLeadsForPlanning(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "planner: list leads")
	}

	manifest := &model.Manifest{
		Bucket:     p.bucket,
		Key:        objstore.ManifestKey(jobID),
		JobID:      jobID,
		TotalItems: len(leads),
		BatchKeys:  []string{},
	}

	for n := 0; n*p.batchSize < len(leads); n++ {
		end := (n + 1) * p.batchSize
		if end > len(leads) {
			end = len(leads)
		}
		items := make([]model.BatchItem, 0, end-n*p.batchSize)
		for _, lead := range leads[n*p.batchSize : end] {
			items = append(items, model.BatchItem{LeadID: lead.ID, Ref: lead.ScrapeRef})
		}

		key := objstore.BatchKey(jobID, n)
		if err := objstore.PutJSON(ctx, p.objects, key, items); err != nil {
			return nil, eris.Wrapf(err, "planner: write batch %d", n)
		}
		manifest.BatchKeys = append(manifest.BatchKeys, key)
	}
	manifest.TotalBatches = len(manifest.BatchKeys)

	if err := objstore.PutJSON(ctx, p.objects, manifest.Key, manifest); err != nil {
		return nil, eris.Wrap(err, "planner: write manifest")
	}

	if err := p.store.UpsertRun(ctx, &model.RunStats{
		JobID:        jobID,
		TotalItems:   manifest.TotalItems,
		TotalBatches: manifest.TotalBatches,
		Status:       "planned",
	}); err != nil {
		return nil, eris.Wrap(err, "planner: record run")
	}

	zap.L().Info("plan written",
		zap.String("job_id", jobID),
		zap.Int("total_items", manifest.TotalItems),
		zap.Int("total_batches", manifest.TotalBatches))
	return manifest, nil
}
