package secureboot

import (
	"context"
	"errors"
	"os"

	"github.com/shani8dev/shani-deploy/internal/config"
	"github.com/shani8dev/shani-deploy/internal/domain/boot"
	"github.com/shani8dev/shani-deploy/internal/logger"
	"github.com/shani8dev/shani-deploy/internal/runner"
	"github.com/shani8dev/shani-deploy/internal/service/compose"
)

// Options are inputs accepted by the sign entry point.
type Options struct {
	// ConfigPath is the optional path to the deployment profile.
	ConfigPath string
}

// Run signs the staged kernels of every composed bundle and is the public
// entry point for the CLI. Bundles that have not been composed yet are
// skipped; at least one bundle must exist.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "shani-deploy.sign")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	run := runner.NewExec()
	manager := NewManagerFromConfig(run, cfg)
	composer := compose.NewComposer(run, nil, cfg.ESPPath, cfg.DeploymentRoot,
		cfg.Subvolumes(), cfg.SwapfilePath, cfg.ExtraKernelArgs)

	signed := 0

	for _, slot := range []boot.Slot{boot.SlotA, boot.SlotB} {
		image, err := composer.Image(slot)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				logger.DebugKV(ctx, "Slot has no composed bundle, skipping", "slot", slot.String())

				continue
			}

			return err
		}

		if err := manager.SignArtifact(ctx, image.Kernel); err != nil {
			return err
		}

		logger.InfoKV(ctx, "Kernel signed", "slot", slot.String(), "path", image.Kernel)

		signed++
	}

	if signed == 0 {
		return boot.E("sign", boot.CategoryValidation,
			errors.New("no composed bundles found to sign"))
	}

	return nil
}

// NewManagerFromConfig wires a Manager from the deployment profile.
func NewManagerFromConfig(run runner.Runner, cfg *config.Config) *Manager {
	return NewManager(run, cfg.ESPPath,
		cfg.MOKKeyPath, cfg.MOKCertPath, cfg.MOKDerPath,
		cfg.ShimPath, cfg.MokManagerPath)
}
