// Package cmd defines and implements the CLI commands for the kb-linkcheck
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb-linkcheck",
		Short: "Checks the availability of an institution's licensed online resources.",
		Long: `kb-linkcheck discovers the online resources held in an institution's
knowledge base, probes each resource link with a politeness-aware HTTP
client, and reports the collections whose share of broken links exceeds
a configurable threshold.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (optional)")
	cmd.AddCommand(newCheckCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
