package aggregate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadqual/internal/model"
	"github.com/sells-group/leadqual/internal/objstore"
	"github.com/sells-group/leadqual/internal/store/storetest"
)

func TestRunTalliesResults(t *testing.T) {
	st := storetest.New()
	require.NoError(t, st.UpsertRun(context.Background(), &model.RunStats{
		JobID: "job-1", TotalItems: 30, TotalBatches: 2, Status: "planned",
	}))
	objects := objstore.NewMemory()
	ctx := context.Background()

	require.NoError(t, objstore.PutJSON(ctx, objects, objstore.ResultKey("job-1", "t1"), model.BatchResult{
		JobID: "job-1", TaskID: "t1", Processed: 15, Scored: 12, Failed: 2, Skipped: 1,
	}))
	require.NoError(t, objstore.PutJSON(ctx, objects, objstore.ResultKey("job-1", "t2"), model.BatchResult{
		JobID: "job-1", TaskID: "t2", Processed: 14, Scored: 14, Skipped: 1,
	}))

	run, err := New(st, objects).Run(ctx, "job-1")
	require.NoError(t, err)

	assert.Equal(t, 29, run.LeadsProcessed)
	assert.Equal(t, 26, run.LeadsScored)
	assert.Equal(t, 2, run.LeadsFailed)
	assert.Equal(t, 2, run.LeadsSkipped)
	assert.Equal(t, "completed", run.Status)
	assert.NotNil(t, run.CompletedAt)
}

func TestRunSkipsMalformedResult(t *testing.T) {
	st := storetest.New()
	require.NoError(t, st.UpsertRun(context.Background(), &model.RunStats{JobID: "job-2", Status: "planned"}))
	objects := objstore.NewMemory()
	ctx := context.Background()

	require.NoError(t, objects.Put(ctx, objstore.ResultKey("job-2", "bad"), []byte("{truncated"), "application/json"))
	require.NoError(t, objstore.PutJSON(ctx, objects, objstore.ResultKey("job-2", "ok"), model.BatchResult{
		JobID: "job-2", TaskID: "ok", Processed: 5, Scored: 5,
	}))

	run, err := New(st, objects).Run(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, 5, run.LeadsProcessed)
	assert.Equal(t, 5, run.LeadsScored)
}

func TestRunNoResultsStillCompletes(t *testing.T) {
	st := storetest.New()
	require.NoError(t, st.UpsertRun(context.Background(), &model.RunStats{JobID: "job-3", Status: "planned"}))

	run, err := New(st, objstore.NewMemory()).Run(context.Background(), "job-3")
	require.NoError(t, err)
	assert.Zero(t, run.LeadsProcessed)
	assert.Equal(t, "completed", run.Status)
}

func TestRunUnknownJob(t *testing.T) {
	_, err := New(storetest.New(), objstore.NewMemory()).Run(context.Background(), "nope")
	require.Error(t, err)
}

func TestRunIgnoresOtherJobsResults(t *testing.T) {
	st := storetest.New()
	ctx := context.Background()
	require.NoError(t, st.UpsertRun(ctx, &model.RunStats{JobID: "job-4", Status: "planned"}))
	objects := objstore.NewMemory()

	require.NoError(t, objstore.PutJSON(ctx, objects, objstore.ResultKey("job-4", "t1"), model.BatchResult{Processed: 3, Scored: 3}))
	require.NoError(t, objstore.PutJSON(ctx, objects, objstore.ResultKey("other", "t9"), model.BatchResult{Processed: 100, Scored: 100}))

	run, err := New(st, objects).Run(ctx, "job-4")
	require.NoError(t, err)
	assert.Equal(t, 3, run.LeadsProcessed)
}
