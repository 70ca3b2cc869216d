package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadqual/internal/dispatch"
	"github.com/sells-group/leadqual/internal/launcher"
	"github.com/sells-group/leadqual/internal/queue"
)

var (
	dispatchJobID     string
	dispatchFromQueue bool
	dispatchMax       int
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Launch scoring workers for planned batches or queue triggers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if dispatchJobID == "" && !dispatchFromQueue {
			return eris.New("either --job or --from-queue is required")
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

		ecsLauncher, err := launcher.NewECS(ctx, cfg.Launcher, cfg.Object.Region)
		if err != nil {
			return err
		}

		var consumer queue.Consumer
		if dispatchFromQueue {
			if cfg.Queue.URL == "" {
				return eris.New("queue url is required (LEADQUAL_QUEUE_URL)")
			}
			consumer, err = queue.NewSQS(ctx, cfg.Queue, cfg.Object.Region)
			if err != nil {
				return err
			}
		}

		d := dispatch.New(st, objects, consumer, ecsLauncher)

		var stats dispatch.Stats
		if dispatchFromQueue {
			max := dispatchMax
			if max <= 0 {
				max = cfg.Queue.MaxMessages
			}
			stats, err = d.DispatchFromQueue(ctx, max)
		} else {
			stats, err = d.DispatchJob(ctx, dispatchJobID)
		}
		if err != nil {
			return err
		}

		zap.L().Info("dispatch complete",
			zap.Int("launched", stats.Launched),
			zap.Int("failed", stats.Failed),
			zap.Int("dropped", stats.Dropped),
		)
		return nil
	},
}

func init() {
	dispatchCmd.Flags().StringVar(&dispatchJobID, "job", "", "dispatch every batch of this planned job")
	dispatchCmd.Flags().BoolVar(&dispatchFromQueue, "from-queue", false, "drain trigger messages into an ad-hoc batch")
	dispatchCmd.Flags().IntVar(&dispatchMax, "max", 0, "max queue messages per round (default from config)")
	rootCmd.AddCommand(dispatchCmd)
}
