package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shani8dev/shani-deploy/internal/service/prepare"
)

// prepareCmd makes the host ready for deployments.
var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Prepare the host: mount checks, directory layout and trust chain",
	Long: `Verifies that the EFI system partition and the deployment root are
mounted, creates the cache, work and loader directories, seeds the loader
configuration and installs the secure boot trust chain. Enrollment of the
machine owner certificate is queued with the firmware when needed.

The command is idempotent and safe to rerun after partial failures.`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		// Setup graceful shutdown handling.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		return prepare.Run(ctx, &prepare.Options{ConfigPath: configPath})
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(prepareCmd)
}
