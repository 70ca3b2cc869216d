package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadqual/internal/model"
	"github.com/sells-group/leadqual/internal/worker"
)

var (
	workBatchRef string
	workTaskID   string
)

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Process one dispatched batch to completion",
	Long:  "Runs inside a launched container. The batch reference and task ID come from the LEADQUAL_JOB environment override, or from flags when run by hand.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		var job *model.JobDescriptor
		if workBatchRef != "" && workTaskID != "" {
			job = &model.JobDescriptor{BatchRef: workBatchRef, TaskID: workTaskID}
		} else {
			var err error
			job, err = worker.JobFromEnv()
			if err != nil {
				return err
			}
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		objects, err := initObjects(ctx)
		if err != nil {
			return err
		}

		engine, err := initEngine()
		if err != nil {
			return err
		}

		calibrator, err := initCalibrator(ctx, st)
		if err != nil {
			return err
		}

		w := worker.New(st, objects, engine, calibrator, cfg.Worker.Concurrency, cfg.Markdown.MaxChars)
		result, err := w.Run(ctx, job)
		if err != nil {
			return err
		}

		zap.L().Info("worker finished",
			zap.String("task_id", job.TaskID),
			zap.Int("scored", result.Scored),
			zap.Int("failed", result.Failed),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	workCmd.Flags().StringVar(&workBatchRef, "batch", "", "batch payload key (with --task, overrides the environment)")
	workCmd.Flags().StringVar(&workTaskID, "task", "", "task ID for this batch")
	rootCmd.AddCommand(workCmd)
}
