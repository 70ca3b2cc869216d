package main

import (
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/leadqual/internal/planner"
	"github.com/sells-group/leadqual/internal/store"
)

var (
	planJobID      string
	planFilterFile string
	planFilter     store.LeadFilter
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Partition qualifying leads into batch payloads",
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

		filter := planFilter
		if planFilterFile != "" {
			data, err := os.ReadFile(planFilterFile)
			if err != nil {
				return eris.Wrap(err, "read filter file")
			}
			if err := yaml.Unmarshal(data, &filter); err != nil {
				return eris.Wrap(err, "parse filter file")
			}
		}

		jobID := planJobID
		if jobID == "" {
			jobID = uuid.NewString()
		}

		p := planner.New(st, objects, cfg.Object.Bucket, cfg.Planner.BatchSize)
		manifest, err := p.Plan(ctx, jobID, filter)
		if err != nil {
			return err
		}

		zap.L().Info("plan complete",
			zap.String("job_id", manifest.JobID),
			zap.String("manifest", manifest.Key),
			zap.Int("leads", manifest.TotalItems),
			zap.Int("batches", manifest.TotalBatches),
		)
		return nil
	},
}

func init() {
	planCmd.Flags().StringVar(&planJobID, "job", "", "job ID (default: random)")
	planCmd.Flags().StringVar(&planFilterFile, "filter-file", "", "YAML file with lead selection filter")
	planCmd.Flags().StringVar(&planFilter.BusinessType, "business-type", "", "restrict to one business type")
	planCmd.Flags().StringVar(&planFilter.State, "state", "", "restrict to one state")
	planCmd.Flags().BoolVar(&planFilter.RequireWebsite, "require-website", true, "only leads with a website")
	planCmd.Flags().BoolVar(&planFilter.Unscored, "unscored", true, "only leads without a score")
	planCmd.Flags().IntVar(&planFilter.Limit, "limit", 0, "cap the number of leads planned")
	rootCmd.AddCommand(planCmd)
}
