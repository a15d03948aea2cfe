package prepare

import (
	"context"

	"github.com/shani8dev/shani-deploy/internal/config"
	"github.com/shani8dev/shani-deploy/internal/logger"
	"github.com/shani8dev/shani-deploy/internal/runner"
	"github.com/shani8dev/shani-deploy/internal/service/secureboot"
)

// Options are inputs accepted by the prepare entry point.
type Options struct {
	// ConfigPath is the optional path to the deployment profile.
	ConfigPath string
}

// Run prepares the host for deployments and is the public entry point for
// the CLI.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "shani-deploy.prepare")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	run := runner.NewExec()
	anchors := secureboot.NewManagerFromConfig(run, cfg)
	preparer := NewPreparer(run, anchors, cfg.ESPPath, cfg.DeploymentRoot, cfg.CacheDir, cfg.WorkDir)

	return preparer.Prepare(ctx)
}
