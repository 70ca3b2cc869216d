package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadqual/internal/aggregate"
)

var aggregateJobID string

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Fold per-task results into run counters and refresh ranks",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		objects, err := initObjects(ctx)
		if err != nil {
			return err
		}

		run, err := aggregate.New(st, objects).Run(ctx, aggregateJobID)
		if err != nil {
			return err
		}

		zap.L().Info("aggregation complete",
			zap.String("job_id", run.JobID),
			zap.Int("processed", run.LeadsProcessed),
			zap.Int("scored", run.LeadsScored),
			zap.Int("failed", run.LeadsFailed),
			zap.Int("skipped", run.LeadsSkipped),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	aggregateCmd.Flags().StringVar(&aggregateJobID, "job", "", "job ID to aggregate (required)")
	_ = aggregateCmd.MarkFlagRequired("job")
	rootCmd.AddCommand(aggregateCmd)
}
