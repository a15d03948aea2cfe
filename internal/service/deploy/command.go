package deploy

import (
	"context"
	"path/filepath"

	"github.com/shani8dev/shani-deploy/internal/config"
	"github.com/shani8dev/shani-deploy/internal/domain/boot"
	"github.com/shani8dev/shani-deploy/internal/logger"
	"github.com/shani8dev/shani-deploy/internal/runner"
	"github.com/shani8dev/shani-deploy/internal/service/slot"
)

// Options are inputs accepted by the deploy entry point.
type Options struct {
	// ConfigPath is the optional path to the deployment profile.
	ConfigPath string
	// Slot is the target slot identifier (a or b).
	Slot string
	// ImagePath overrides the cached image location when set.
	ImagePath string
}

// Run deploys the image into the requested slot and is the public entry
// point for the CLI.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "shani-deploy.deploy")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	target, err := boot.ParseSlot(opts.Slot)
	if err != nil {
		return err
	}

	imagePath := opts.ImagePath
	if imagePath == "" {
		imagePath = filepath.Join(cfg.CacheDir, cfg.ImageName)
	}

	run := runner.NewExec()
	resolver := slot.NewResolver(run, cfg.Subvolumes())
	engine := NewEngine(run, resolver, cfg.WorkDir, cfg.Subvolumes())

	if err := engine.Deploy(ctx, imagePath, target); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Deploy completed", "slot", target.String())

	return nil
}
