package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shani8dev/shani-deploy/internal/service/secureboot"
)

// signCmd signs the staged kernels with the machine owner key.
var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign the staged kernels with the machine owner key",
	Long: `Signs the kernel of every composed boot bundle in place with the
machine owner key pair. Bundles that have not been composed yet are
skipped. Publication refuses unsigned kernels, so this step sits between
compose-boot and publish.`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		// Setup graceful shutdown handling.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		return secureboot.Run(ctx, &secureboot.Options{ConfigPath: configPath})
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(signCmd)
}
