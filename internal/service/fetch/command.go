package fetch

import (
	"context"

	"github.com/shani8dev/shani-deploy/internal/config"
	"github.com/shani8dev/shani-deploy/internal/logger"
	"github.com/shani8dev/shani-deploy/internal/runner"
)

// Options are inputs accepted by the fetch entry point.
type Options struct {
	// ConfigPath is the optional path to the deployment profile.
	ConfigPath string
	// ImageName overrides the profile's image name when set.
	ImageName string
}

// Run fetches the configured image into the cache and is the public entry
// point for the CLI.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "shani-deploy.fetch")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	imageName := opts.ImageName
	if imageName == "" {
		imageName = cfg.ImageName
	}

	fetcher := NewFetcher(runner.NewExec(), cfg.ImageBaseURL, cfg.CacheDir, cfg.Timeout)

	path, err := fetcher.Fetch(ctx, imageName)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Fetch completed", "path", path)

	return nil
}
