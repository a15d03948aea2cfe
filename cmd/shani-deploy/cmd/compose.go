package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shani8dev/shani-deploy/internal/service/compose"
)

// composeCmd builds the slot's boot bundle on the EFI system partition.
var composeCmd = &cobra.Command{
	Use:   "compose-boot [a|b]",
	Short: "Compose the slot's boot bundle on the EFI system partition",
	Long: `Derives the kernel command line from the live root device identity,
including LUKS and hibernation parameters, and stages it together with the
slot's kernel and initramfs under the slot-named bundle directory on the
EFI system partition.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"a", "b"},
	RunE: func(_ *cobra.Command, args []string) error {
		// Setup graceful shutdown handling.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		options := &compose.Options{
			ConfigPath: configPath,
			Slot:       args[0],
		}

		return compose.Run(ctx, options)
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(composeCmd)
}
