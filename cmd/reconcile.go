package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var reconcileStuckMins int

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Release stuck leads and recompute ranks",
	Long:  "Sweeps leads abandoned mid-pipeline by crashed workers back to idle, then rewrites the cross-lead rank ordering. Run periodically.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		stuckAfter := reconcileStuckMins
		if stuckAfter <= 0 {
			stuckAfter = cfg.Worker.StuckAfterMins
		}

		released, err := st.ResetStuckLeads(ctx, time.Duration(stuckAfter)*time.Minute)
		if err != nil {
			return err
		}

		ranked, err := st.RecomputeRanks(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("reconcile complete",
			zap.Int64("released", released),
			zap.Int64("ranked", ranked),
			zap.Int("stuck_after_mins", stuckAfter),
		)
		return nil
	},
}

func init() {
	reconcileCmd.Flags().IntVar(&reconcileStuckMins, "stuck-after", 0, "minutes before a busy lead counts as stuck (default from config)")
	rootCmd.AddCommand(reconcileCmd)
}
