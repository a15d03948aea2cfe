package compose

import (
	"context"

	"github.com/shani8dev/shani-deploy/internal/config"
	"github.com/shani8dev/shani-deploy/internal/domain/boot"
	"github.com/shani8dev/shani-deploy/internal/logger"
	"github.com/shani8dev/shani-deploy/internal/runner"
	"github.com/shani8dev/shani-deploy/internal/service/device"
	"github.com/shani8dev/shani-deploy/internal/service/slot"
)

// Options are inputs accepted by the compose entry point.
type Options struct {
	// ConfigPath is the optional path to the deployment profile.
	ConfigPath string
	// Slot is the target slot identifier (a or b).
	Slot string
}

// Run composes the boot bundle for the requested slot and is the public
// entry point for the CLI.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "shani-deploy.compose")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	target, err := boot.ParseSlot(opts.Slot)
	if err != nil {
		return err
	}

	run := runner.NewExec()
	slots := slot.NewResolver(run, cfg.Subvolumes())
	devices := device.NewResolver(run, slots)
	composer := NewComposer(run, devices, cfg.ESPPath, cfg.DeploymentRoot,
		cfg.Subvolumes(), cfg.SwapfilePath, cfg.ExtraKernelArgs)

	image, err := composer.Compose(ctx, target)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Compose completed",
		"slot", target.String(), "kernel", image.Kernel)

	return nil
}
