package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shani8dev/shani-deploy/internal/service/deploy"
)

// deployImagePath overrides the cached image location when set.
var deployImagePath string

// deployCmd replaces the target slot's filesystem with the image content.
var deployCmd = &cobra.Command{
	Use:   "deploy [a|b]",
	Short: "Deploy the cached image into the target slot",
	Long: `Replaces the target slot's subvolume with the image content. The stream
is received into a staging subvolume and renamed into place, so the slot
either carries the complete new system or its prior content stays intact.

Deploying into the currently active slot is refused.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"a", "b"},
	RunE: func(_ *cobra.Command, args []string) error {
		// Setup graceful shutdown handling.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		options := &deploy.Options{
			ConfigPath: configPath,
			Slot:       args[0],
			ImagePath:  deployImagePath,
		}

		return deploy.Run(ctx, options)
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	deployCmd.Flags().StringVarP(&deployImagePath, "image", "i", "", "path to the image instead of the cached one")

	rootCmd.AddCommand(deployCmd)
}
