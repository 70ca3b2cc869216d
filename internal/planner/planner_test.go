package planner

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadqual/internal/model"
	"github.com/sells-group/leadqual/internal/objstore"
	"github.com/sells-group/leadqual/internal/store"
	"github.com/sells-group/leadqual/internal/store/storetest"
)

func seedLeads(st *storetest.Fake, n int) {
	for i := 0; i < n; i++ {
		st.AddLead(model.Lead{
			ID:        fmt.Sprintf("lead-%03d", i),
			Name:      fmt.Sprintf("Business %d", i),
			Website:   fmt.Sprintf("https://biz%d.example", i),
			ScrapeRef: fmt.Sprintf("scrapes/lead-%03d.json", i),
		})
	}
}

func TestPlanPartitionsLeads(t *testing.T) {
	st := storetest.New()
	seedLeads(st, 25)
	objects := objstore.NewMemory()
	p := New(st, objects, "test-bucket", 10)

	manifest, err := p.Plan(context.Background(), "job-1", store.LeadFilter{})
	require.NoError(t, err)

	assert.Equal(t, 25, manifest.TotalItems)
	assert.Equal(t, 3, manifest.TotalBatches)
	require.Len(t, manifest.BatchKeys, 3)
	assert.Equal(t, "jobs/job-1/batch-0000.json", manifest.BatchKeys[0])

	// Batches partition the selection: sizes sum to the total and no
	// lead appears twice.
	seen := map[string]bool{}
	total := 0
	for _, key := range manifest.BatchKeys {
		var items []model.BatchItem
		require.NoError(t, objstore.GetJSON(context.Background(), objects, key, &items))
		assert.LessOrEqual(t, len(items), 10)
		for _, item := range items {
			assert.False(t, seen[item.LeadID], "lead %s planned twice", item.LeadID)
			seen[item.LeadID] = true
			assert.NotEmpty(t, item.Ref)
		}
		total += len(items)
	}
	assert.Equal(t, 25, total)

	var stored model.Manifest
	require.NoError(t, objstore.GetJSON(context.Background(), objects, objstore.ManifestKey("job-1"), &stored))
	assert.Equal(t, manifest.BatchKeys, stored.BatchKeys)

	run, err := st.GetRun(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, 25, run.TotalItems)
	assert.Equal(t, 3, run.TotalBatches)
	assert.Equal(t, "planned", run.Status)
}

func TestPlanExactMultiple(t *testing.T) {
	st := storetest.New()
	seedLeads(st, 20)
	p := New(st, objstore.NewMemory(), "test-bucket", 10)

	manifest, err := p.Plan(context.Background(), "job-2", store.LeadFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, manifest.TotalBatches)
}

func TestPlanEmptySelectionStillWritesManifest(t *testing.T) {
	st := storetest.New()
	objects := objstore.NewMemory()
	p := New(st, objects, "test-bucket", 10)

	manifest, err := p.Plan(context.Background(), "job-empty", store.LeadFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, manifest.TotalItems)
	assert.Equal(t, 0, manifest.TotalBatches)
	assert.Empty(t, manifest.BatchKeys)

	var stored model.Manifest
	require.NoError(t, objstore.GetJSON(context.Background(), objects, objstore.ManifestKey("job-empty"), &stored))
	assert.Equal(t, "job-empty", stored.JobID)
}

func TestPlanAppliesFilter(t *testing.T) {
	st := storetest.New()
	st.AddLead(model.Lead{ID: "a", Name: "A", Website: "https://a.example", BusinessType: "plumber"})
	st.AddLead(model.Lead{ID: "b", Name: "B", Website: "https://b.example", BusinessType: "hvac"})
	st.AddLead(model.Lead{ID: "c", Name: "C", BusinessType: "plumber"})
	p := New(st, objstore.NewMemory(), "test-bucket", 10)

	manifest, err := p.Plan(context.Background(), "job-3", store.LeadFilter{
		BusinessType:   "plumber",
		RequireWebsite: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, manifest.TotalItems)
}

func TestPlanReplanOverwrites(t *testing.T) {
	st := storetest.New()
	seedLeads(st, 5)
	objects := objstore.NewMemory()
	p := New(st, objects, "test-bucket", 10)

	_, err := p.Plan(context.Background(), "job-4", store.LeadFilter{})
	require.NoError(t, err)
	require.NoError(t, st.AddRunCounters(context.Background(), "job-4", 5, 4, 1, 0))

	manifest, err := p.Plan(context.Background(), "job-4", store.LeadFilter{})
	require.NoError(t, err)
	assert.Equal(t, 5, manifest.TotalItems)

	run, err := st.GetRun(context.Background(), "job-4")
	require.NoError(t, err)
	assert.Equal(t, 0, run.LeadsProcessed, "re-plan resets counters")
}
