package dispatch

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadqual/internal/launcher"
	"github.com/sells-group/leadqual/internal/model"
	"github.com/sells-group/leadqual/internal/objstore"
	"github.com/sells-group/leadqual/internal/queue"
	"github.com/sells-group/leadqual/internal/store/storetest"
)

type fakeLauncher struct {
	launched []model.JobDescriptor
	failOn   map[string]bool
	err      error
}

func (f *fakeLauncher) Launch(_ context.Context, job model.JobDescriptor) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.failOn[job.BatchRef] {
		return "", &launcher.LaunchError{Err: eris.New("capacity unavailable")}
	}
	f.launched = append(f.launched, job)
	return "arn:task/" + job.TaskID, nil
}

type fakeConsumer struct {
	messages []queue.RawMessage
	deleted  []string
	err      error
}

func (f *fakeConsumer) Receive(context.Context, int) ([]queue.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	msgs := f.messages
	f.messages = nil
	return msgs, nil
}

func (f *fakeConsumer) Delete(_ context.Context, handle string) error {
	f.deleted = append(f.deleted, handle)
	return nil
}

func planJob(t *testing.T, objects objstore.Store, jobID string, batches ...[]model.BatchItem) {
	t.Helper()
	manifest := model.Manifest{JobID: jobID, Key: objstore.ManifestKey(jobID)}
	for n, items := range batches {
		key := objstore.BatchKey(jobID, n)
		require.NoError(t, objstore.PutJSON(context.Background(), objects, key, items))
		manifest.BatchKeys = append(manifest.BatchKeys, key)
		manifest.TotalItems += len(items)
	}
	manifest.TotalBatches = len(manifest.BatchKeys)
	require.NoError(t, objstore.PutJSON(context.Background(), objects, manifest.Key, manifest))
}

func TestDispatchJobLaunchesEveryBatch(t *testing.T) {
	st := storetest.New()
	objects := objstore.NewMemory()
	planJob(t, objects, "job-1",
		[]model.BatchItem{{LeadID: "a", Ref: "scrapes/a.json"}},
		[]model.BatchItem{{LeadID: "b", Ref: "scrapes/b.json"}},
	)
	l := &fakeLauncher{}
	d := New(st, objects, nil, l)

	stats, err := d.DispatchJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Launched)
	assert.Equal(t, 0, stats.Failed)
	require.Len(t, l.launched, 2)
	assert.Equal(t, "jobs/job-1/batch-0000.json", l.launched[0].BatchRef)

	task, err := st.GetTask(context.Background(), l.launched[0].TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusRunning, task.Status)
	assert.Equal(t, "arn:task/"+task.ID, task.ExecutionARN)
}

func TestDispatchJobLaunchFailureFailsTaskAndContinues(t *testing.T) {
	st := storetest.New()
	objects := objstore.NewMemory()
	planJob(t, objects, "job-2",
		[]model.BatchItem{{LeadID: "a", Ref: "r"}},
		[]model.BatchItem{{LeadID: "b", Ref: "r"}},
	)
	l := &fakeLauncher{failOn: map[string]bool{"jobs/job-2/batch-0000.json": true}}
	d := New(st, objects, nil, l)

	stats, err := d.DispatchJob(context.Background(), "job-2")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Launched)
	assert.Equal(t, 1, stats.Failed)

	var failed, running int
	for id := range st.Tasks {
		task, err := st.GetTask(context.Background(), id)
		require.NoError(t, err)
		switch task.Status {
		case model.TaskStatusFailed:
			failed++
			assert.Contains(t, task.ErrorMessage, "capacity unavailable")
			assert.NotNil(t, task.CompletedAt)
		case model.TaskStatusRunning:
			running++
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, running)
}

func TestDispatchJobMissingManifest(t *testing.T) {
	d := New(storetest.New(), objstore.NewMemory(), nil, &fakeLauncher{})
	_, err := d.DispatchJob(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, objstore.ErrNotFound)
}

func TestDispatchFromQueueGroupsTriggers(t *testing.T) {
	st := storetest.New()
	objects := objstore.NewMemory()
	c := &fakeConsumer{messages: []queue.RawMessage{
		{ID: "m1", Body: `{"leadId":"a","ref":"scrapes/a.json"}`, ReceiptHandle: "h1"},
		{ID: "m2", Body: `{"leadId":"b","ref":"scrapes/b.json"}`, ReceiptHandle: "h2"},
	}}
	l := &fakeLauncher{}
	d := New(st, objects, c, l)

	stats, err := d.DispatchFromQueue(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Launched)
	assert.Equal(t, 0, stats.Dropped)
	require.Len(t, l.launched, 1)

	var items []model.BatchItem
	require.NoError(t, objstore.GetJSON(context.Background(), objects, l.launched[0].BatchRef, &items))
	assert.Equal(t, []model.BatchItem{
		{LeadID: "a", Ref: "scrapes/a.json"},
		{LeadID: "b", Ref: "scrapes/b.json"},
	}, items)

	assert.ElementsMatch(t, []string{"h1", "h2"}, c.deleted)
}

func TestDispatchFromQueueDropsInvalidTriggers(t *testing.T) {
	st := storetest.New()
	objects := objstore.NewMemory()
	c := &fakeConsumer{messages: []queue.RawMessage{
		{ID: "m1", Body: `not json`, ReceiptHandle: "bad1"},
		{ID: "m2", Body: `{"leadId":"","ref":"r"}`, ReceiptHandle: "bad2"},
		{ID: "m3", Body: `{"leadId":"a","ref":"scrapes/a.json"}`, ReceiptHandle: "ok"},
	}}
	l := &fakeLauncher{}
	d := New(st, objects, c, l)

	stats, err := d.DispatchFromQueue(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Dropped)
	assert.Equal(t, 1, stats.Launched)
	assert.ElementsMatch(t, []string{"bad1", "bad2", "ok"}, c.deleted)
}

func TestDispatchFromQueueEmptyReceiveIsNoop(t *testing.T) {
	st := storetest.New()
	c := &fakeConsumer{}
	l := &fakeLauncher{}
	d := New(st, objstore.NewMemory(), c, l)

	stats, err := d.DispatchFromQueue(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
	assert.Empty(t, l.launched)
	assert.Empty(t, st.Tasks)
}

func TestDispatchFromQueueAllInvalidLaunchesNothing(t *testing.T) {
	c := &fakeConsumer{messages: []queue.RawMessage{
		{ID: "m1", Body: `{}`, ReceiptHandle: "h1"},
	}}
	l := &fakeLauncher{}
	d := New(storetest.New(), objstore.NewMemory(), c, l)

	stats, err := d.DispatchFromQueue(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Dropped)
	assert.Equal(t, 0, stats.Launched)
	assert.Empty(t, l.launched)
}

func TestDispatchFromQueueLaunchFailureKeepsMessages(t *testing.T) {
	c := &fakeConsumer{messages: []queue.RawMessage{
		{ID: "m1", Body: `{"leadId":"a","ref":"r"}`, ReceiptHandle: "h1"},
	}}
	l := &fakeLauncher{err: &launcher.LaunchError{Err: eris.New("boom")}}
	d := New(storetest.New(), objstore.NewMemory(), c, l)

	stats, err := d.DispatchFromQueue(context.Background(), 10)
	require.Error(t, err, "launch failure surfaces so the runtime can retry")
	assert.Equal(t, 1, stats.Failed)
	assert.Empty(t, c.deleted, "unacked messages redeliver")
}
