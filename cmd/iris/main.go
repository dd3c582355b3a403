package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"iris/cmd/iris/cmd"
	"iris/core/logger"
)

// main is the entry point of the iris worker.
func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	ctx := logger.WithComponentName(context.Background(), "main")

	// Ensure that the logger's buffered logs are flushed before the
	// application exits.
	defer func() {
		_ = logger.Logger.Sync()
	}()

	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info(ctx, "Received signal, initiating graceful shutdown", zap.String("signal", sig.String()))
		cancel()
	}()

	cmd.Execute(ctx)
}
