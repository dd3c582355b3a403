package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// rootCmd is the base command for the iris CLI.
var rootCmd = &cobra.Command{
	Use:     "iris",
	Short:   "Iris detection worker CLI",
	Long:    "Iris CLI for running the queue-driven image detection worker.",
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command with a cancellable context so subcommands
// can honor OS shutdown signals.
func Execute(ctx context.Context) {
	rootCmd.SetContext(ctx)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
