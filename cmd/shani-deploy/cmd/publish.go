package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shani8dev/shani-deploy/internal/service/bootentry"
)

// publishSetDefault promotes the slot right after its entry is written.
var publishSetDefault bool

// publishCmd writes the slot's loader entry.
var publishCmd = &cobra.Command{
	Use:   "publish [a|b]",
	Short: "Publish the slot's loader entry",
	Long: `Writes the systemd-boot loader entry referencing the slot's composed
bundle. The kernel must verify against the machine owner certificate or
publication is refused. The default pointer is left untouched unless
--set-default is given.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"a", "b"},
	RunE: func(_ *cobra.Command, args []string) error {
		// Setup graceful shutdown handling.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		options := &bootentry.PublishOptions{
			ConfigPath: configPath,
			Slot:       args[0],
			SetDefault: publishSetDefault,
		}

		return bootentry.RunPublish(ctx, options)
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	publishCmd.Flags().BoolVarP(&publishSetDefault, "set-default", "d", false, "promote the slot after publishing its entry")

	rootCmd.AddCommand(publishCmd)
}
