// Package dispatch turns planned batches and queue triggers into
// launched worker tasks.
package dispatch

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadqual/internal/launcher"
	"github.com/sells-group/leadqual/internal/model"
	"github.com/sells-group/leadqual/internal/objstore"
	"github.com/sells-group/leadqual/internal/queue"
	"github.com/sells-group/leadqual/internal/store"
)

const taskTypeScore = "score-batch"

// Dispatcher creates task records and launches one worker per batch.
// A launch failure fails its task row and moves on; one bad batch never
// aborts the rest of a dispatch round.
type Dispatcher struct {
	store    store.Store
	objects  objstore.Store
	consumer queue.Consumer
	launcher launcher.Launcher
}

func New(st store.Store, objects objstore.Store, consumer queue.Consumer, l launcher.Launcher) *Dispatcher {
	return &Dispatcher{store: st, objects: objects, consumer: consumer, launcher: l}
}

// Stats summarizes one dispatch round.
type Stats struct {
	Launched int
	Failed   int
	Dropped  int
}

// DispatchJob launches a worker for every batch in the job's manifest.
func (d *Dispatcher) DispatchJob(ctx context.Context, jobID string) (Stats, error) {
	var manifest model.Manifest
	if err := objstore.GetJSON(ctx, d.objects, objstore.ManifestKey(jobID), &manifest); err != nil {
		return Stats{}, eris.Wrapf(err, "dispatch: load manifest for job %s", jobID)
	}

	var stats Stats
	for _, key := range manifest.BatchKeys {
		if err := d.dispatchBatch(ctx, key); err != nil {
			if !launcher.IsLaunch(err) {
				return stats, err
			}
			stats.Failed++
			continue
		}
		stats.Launched++
	}

	zap.L().Info("job dispatched",
		zap.String("job_id", jobID),
		zap.Int("launched", stats.Launched),
		zap.Int("failed", stats.Failed))
	return stats, nil
}

// DispatchFromQueue drains up to max trigger messages, groups the valid
// ones into a single ad-hoc batch, and launches one worker for it.
// Malformed messages are deleted and dropped. An empty receive is a
// no-op round with no side effects.
func (d *Dispatcher) DispatchFromQueue(ctx context.Context, max int) (Stats, error) {
	msgs, err := d.consumer.Receive(ctx, max)
	if err != nil {
		return Stats{}, eris.Wrap(err, "dispatch: receive triggers")
	}
	if len(msgs) == 0 {
		return Stats{}, nil
	}

	var stats Stats
	items := make([]model.BatchItem, 0, len(msgs))
	handles := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		trigger, err := queue.ParseTrigger(msg.Body)
		if err != nil {
			if !queue.IsValidation(err) {
				return stats, err
			}
			zap.L().Warn("dropping invalid trigger",
				zap.String("message_id", msg.ID),
				zap.Error(err))
			if derr := d.consumer.Delete(ctx, msg.ReceiptHandle); derr != nil {
				zap.L().Warn("delete invalid trigger failed", zap.Error(derr))
			}
			stats.Dropped++
			continue
		}
		items = append(items, model.BatchItem{LeadID: trigger.LeadID, Ref: trigger.Ref})
		handles = append(handles, msg.ReceiptHandle)
	}
	if len(items) == 0 {
		return stats, nil
	}

	taskID := uuid.NewString()
	key := objstore.DispatchKey(taskID)
	if err := objstore.PutJSON(ctx, d.objects, key, items); err != nil {
		return stats, eris.Wrap(err, "dispatch: write batch payload")
	}
	if err := d.launch(ctx, taskID, key); err != nil {
		if launcher.IsLaunch(err) {
			stats.Failed++
		}
		// Messages stay unacked; redelivery retries the batch.
		return stats, err
	}
	stats.Launched++

	// Ack only after a successful launch; an unacked message redelivers
	// and the worker's idempotent skip absorbs the duplicate.
	for _, handle := range handles {
		if err := d.consumer.Delete(ctx, handle); err != nil {
			zap.L().Warn("delete trigger failed", zap.Error(err))
		}
	}
	return stats, nil
}

func (d *Dispatcher) dispatchBatch(ctx context.Context, batchKey string) error {
	return d.launch(ctx, uuid.NewString(), batchKey)
}

// launch records the task, starts the worker, and transitions the task
// row to running or failed accordingly.
func (d *Dispatcher) launch(ctx context.Context, taskID, batchKey string) error {
	task := &model.Task{ID: taskID, Type: taskTypeScore}
	if err := d.store.CreateTask(ctx, task); err != nil {
		return eris.Wrapf(err, "dispatch: create task for %s", batchKey)
	}

	handle, err := d.launcher.Launch(ctx, model.JobDescriptor{BatchRef: batchKey, TaskID: taskID})
	if err != nil {
		if launcher.IsLaunch(err) {
			zap.L().Error("worker launch failed",
				zap.String("task_id", taskID),
				zap.String("batch", batchKey),
				zap.Error(err))
			if ferr := d.store.FinishTask(ctx, taskID, model.TaskStatusFailed, err.Error(), nil); ferr != nil {
				zap.L().Error("fail task after launch error", zap.Error(ferr))
			}
		}
		return err
	}

	if err := d.store.MarkTaskRunning(ctx, taskID, handle); err != nil {
		return eris.Wrapf(err, "dispatch: mark task %s running", taskID)
	}
	zap.L().Info("worker launched",
		zap.String("task_id", taskID),
		zap.String("batch", batchKey),
		zap.String("handle", handle))
	return nil
}
