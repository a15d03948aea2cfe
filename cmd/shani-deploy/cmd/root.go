package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/shani8dev/shani-deploy/internal/config"
	"github.com/shani8dev/shani-deploy/internal/domain/boot"
	"github.com/shani8dev/shani-deploy/internal/logger"
	"github.com/shani8dev/shani-deploy/internal/version"
)

var (
	// configPath to the deployment profile YAML file.
	configPath string
	// logLevel selects the minimum level of emitted log messages.
	logLevel string

	// rootCmd represents the base command managing dual-root deployments.
	rootCmd = &cobra.Command{
		Use:   "shani-deploy",
		Short: "Manage dual-root atomic OS updates and the secure boot trust chain.",
		Long: `Manages a dual-root (A/B) operating system layout: fetches images with
delta transfer, deploys them into the inactive slot, composes signed boot
bundles on the EFI system partition and switches the systemd-boot default
pointer atomically.

The active slot is never modified. Promotion only rewrites the loader's
default pointer, so rollback is a single pointer flip away.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if level, ok := logger.ParseLogLevel(logLevel); ok {
				logger.SetLevel(level)
			}
		},
	}
)

// Execute runs the shani-deploy CLI. Every failure category maps to its own
// exit code so orchestration scripts can react to specific stages.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(boot.ExitCodeOf(err))
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to deployment profile")
	rootCmd.PersistentFlags().
		StringVarP(&logLevel, "log-level", "l", "info", "log level: debug, info, warn or error")
}
