package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shani8dev/shani-deploy/internal/service/bootentry"
)

// rollbackCmd restores the previous default boot entry.
var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Restore the previous default boot entry",
	Long: `Restores the default pointer recorded before the last promotion. No
filesystem content is touched, so the operation completes in constant time
regardless of image size. Without a promotion record the complement of the
current default slot is restored.`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		// Setup graceful shutdown handling.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		return bootentry.RunRollback(ctx, &bootentry.RollbackOptions{ConfigPath: configPath})
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(rollbackCmd)
}
