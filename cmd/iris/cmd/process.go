package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"iris/core/config"
	"iris/core/jobs"
	"iris/core/logger"
	"iris/core/runtime"
)

var processKey string

func init() {
	processCmd.Flags().StringVar(&processKey, "key", "", "object key to process (default: first image in the input bucket)")
	rootCmd.AddCommand(processCmd)
}

// processCmd runs the single-shot mode: process exactly one object and
// exit. Useful for smoke-testing a deployment without touching the queue.
var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process one object from the input bucket and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := logger.WithComponentName(cmd.Context(), "process")

		cfg, err := config.LoadConfig()
		if err != nil {
			logger.Fatal(ctx, "Failed to load configuration", zap.Error(err))
		}

		rt, err := runtime.New(ctx, cfg)
		if err != nil {
			logger.Fatal(ctx, "Failed to initialize runtime", zap.Error(err))
		}
		defer rt.Close()

		outcome, err := rt.ProcessOne(ctx, processKey)
		if err != nil {
			return err
		}

		switch outcome.Class {
		case jobs.ClassSuccess:
			logger.Info(ctx, "processing completed",
				zap.String("key", outcome.Result.Key),
				zap.String("status", outcome.Result.Status),
				zap.Int("detections", len(outcome.Result.Detections)))
			return nil
		default:
			return fmt.Errorf("processing failed (%s): %w", outcome.Class, outcome.Err)
		}
	},
}
