package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"iris/core/config"
	"iris/core/logger"
	"iris/core/runtime"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

// serveCmd runs the worker loop: consume notification events (or poll the
// input bucket when no queue is configured) until a shutdown signal
// arrives, then finish the in-flight job and disconnect.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the detection worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := logger.WithComponentName(cmd.Context(), "serve")

		cfg, err := config.LoadConfig()
		if err != nil {
			logger.Fatal(ctx, "Failed to load configuration", zap.Error(err))
		}
		logger.Info(ctx, "Configuration loaded",
			zap.String("environment", cfg.Environment),
			zap.String("input_bucket", cfg.Buckets.Input),
			zap.String("output_bucket", cfg.Buckets.Output),
			zap.String("broker_topic", cfg.Broker.Topic))

		rt, err := runtime.New(ctx, cfg)
		if err != nil {
			logger.Fatal(ctx, "Failed to initialize runtime", zap.Error(err))
		}

		if err := rt.Start(ctx); err != nil {
			return err
		}

		// Block until the signal-driven context is cancelled.
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.Worker.ShutdownSeconds)*time.Second)
		defer cancel()

		if err := rt.Stop(shutdownCtx); err != nil {
			logger.Error(shutdownCtx, "error during shutdown", zap.Error(err))
		}

		logger.Info(shutdownCtx, "iris stopped gracefully")
		return nil
	},
}
