package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shani8dev/shani-deploy/internal/service/bootentry"
)

// setDefaultCmd promotes a published slot to the loader default.
var setDefaultCmd = &cobra.Command{
	Use:   "set-default [a|b]",
	Short: "Promote the slot's published entry to the loader default",
	Long: `Rewrites only the default line of the loader configuration to point at
the slot's published entry. The prior default is recorded so a later
rollback can restore it with a single pointer flip.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"a", "b"},
	RunE: func(_ *cobra.Command, args []string) error {
		// Setup graceful shutdown handling.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		options := &bootentry.SetDefaultOptions{
			ConfigPath: configPath,
			Slot:       args[0],
		}

		return bootentry.RunSetDefault(ctx, options)
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(setDefaultCmd)
}
