package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shani8dev/shani-deploy/internal/service/fetch"
)

// fetchImageName overrides the profile's image name when set.
var fetchImageName string

// fetchCmd downloads the OS image into the local cache.
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch the OS image into the cache with delta transfer",
	Long: `Downloads the configured OS image into the local cache. When a prior
image is cached it is used as a zsync seed so only changed blocks travel
over the network; a full download is the fallback. The image is validated
against its published SHA-256 checksum before it replaces the cache entry.`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		// Setup graceful shutdown handling.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		options := &fetch.Options{
			ConfigPath: configPath,
			ImageName:  fetchImageName,
		}

		return fetch.Run(ctx, options)
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	fetchCmd.Flags().StringVarP(&fetchImageName, "image", "i", "", "image file name to fetch instead of the configured one")

	rootCmd.AddCommand(fetchCmd)
}
