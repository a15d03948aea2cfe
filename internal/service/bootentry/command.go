package bootentry

import (
	"context"

	"github.com/shani8dev/shani-deploy/internal/config"
	"github.com/shani8dev/shani-deploy/internal/domain/boot"
	"github.com/shani8dev/shani-deploy/internal/logger"
	"github.com/shani8dev/shani-deploy/internal/runner"
	"github.com/shani8dev/shani-deploy/internal/service/compose"
	"github.com/shani8dev/shani-deploy/internal/service/secureboot"
)

// PublishOptions are inputs accepted by the publish entry point.
type PublishOptions struct {
	// ConfigPath is the optional path to the deployment profile.
	ConfigPath string
	// Slot is the target slot identifier (a or b).
	Slot string
	// SetDefault promotes the slot after its entry is written.
	SetDefault bool
}

// RunPublish writes the loader entry for the slot's composed bundle and is
// the public entry point for the CLI.
func RunPublish(ctx context.Context, opts *PublishOptions) error {
	ctx = logger.WithName(ctx, "shani-deploy.publish")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	target, err := boot.ParseSlot(opts.Slot)
	if err != nil {
		return err
	}

	run := runner.NewExec()
	composer := compose.NewComposer(run, nil, cfg.ESPPath, cfg.DeploymentRoot,
		cfg.Subvolumes(), cfg.SwapfilePath, cfg.ExtraKernelArgs)
	publisher := newPublisherFromConfig(run, cfg)

	image, err := composer.Image(target)
	if err != nil {
		return err
	}

	if err := publisher.Publish(ctx, image); err != nil {
		return err
	}

	if opts.SetDefault {
		return publisher.SetDefault(ctx, target)
	}

	return nil
}

// SetDefaultOptions are inputs accepted by the set-default entry point.
type SetDefaultOptions struct {
	// ConfigPath is the optional path to the deployment profile.
	ConfigPath string
	// Slot is the target slot identifier (a or b).
	Slot string
}

// RunSetDefault promotes the slot's published entry to the loader default
// and is the public entry point for the CLI.
func RunSetDefault(ctx context.Context, opts *SetDefaultOptions) error {
	ctx = logger.WithName(ctx, "shani-deploy.set-default")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	target, err := boot.ParseSlot(opts.Slot)
	if err != nil {
		return err
	}

	return newPublisherFromConfig(runner.NewExec(), cfg).SetDefault(ctx, target)
}

// RollbackOptions are inputs accepted by the rollback entry point.
type RollbackOptions struct {
	// ConfigPath is the optional path to the deployment profile.
	ConfigPath string
}

// RunRollback restores the previous default entry and is the public entry
// point for the CLI.
func RunRollback(ctx context.Context, opts *RollbackOptions) error {
	ctx = logger.WithName(ctx, "shani-deploy.rollback")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	return newPublisherFromConfig(runner.NewExec(), cfg).Rollback(ctx)
}

// newPublisherFromConfig wires a Publisher whose publication guard is the
// secure boot signature verifier.
func newPublisherFromConfig(run runner.Runner, cfg *config.Config) *Publisher {
	verifier := secureboot.NewManagerFromConfig(run, cfg)

	return NewPublisher(cfg.ESPPath, cfg.WorkDir, cfg.OSTitle, verifier)
}
