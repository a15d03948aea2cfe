package prepare

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shani8dev/shani-deploy/internal/domain/boot"
	"github.com/shani8dev/shani-deploy/internal/logger"
	"github.com/shani8dev/shani-deploy/internal/runner"
)

const (
	// loaderConfName is the ESP-relative loader configuration file.
	loaderConfName = "loader/loader.conf"

	// defaultLoaderConf seeds a fresh loader configuration. The default
	// pointer is added later by the first promotion.
	defaultLoaderConf = "timeout 3\nconsole-mode max\n"
)

var errNotMounted = errors.New("path is not a mount point")

// TrustInstaller places the secure boot trust chain onto the ESP and queues
// firmware enrollment of the machine owner certificate.
type TrustInstaller interface {
	InstallTrustAnchors(ctx context.Context) error
	RegisterTrust(ctx context.Context) error
}

// Preparer makes a host ready for deployments: mount checks, directory
// layout, loader seed and the secure boot trust chain.
type Preparer struct {
	run            runner.Runner
	anchors        TrustInstaller
	espPath        string
	deploymentRoot string
	cacheDir       string
	workDir        string
}

// NewPreparer returns a Preparer for the given host layout.
func NewPreparer(
	run runner.Runner,
	anchors TrustInstaller,
	espPath, deploymentRoot, cacheDir, workDir string,
) *Preparer {
	return &Preparer{
		run:            run,
		anchors:        anchors,
		espPath:        espPath,
		deploymentRoot: deploymentRoot,
		cacheDir:       cacheDir,
		workDir:        workDir,
	}
}

// Prepare runs every host preparation step in order. It is idempotent and
// safe to rerun after partial failures.
func (p *Preparer) Prepare(ctx context.Context) error {
	for _, mount := range []string{p.espPath, p.deploymentRoot} {
		if err := p.requireMounted(ctx, mount); err != nil {
			return err
		}
	}

	dirs := []string{
		p.cacheDir,
		p.workDir,
		filepath.Join(p.espPath, "loader", "entries"),
		filepath.Join(p.espPath, "EFI", "shani"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return boot.E("prepare", boot.CategoryValidation,
				fmt.Errorf("create %s: %w", dir, err))
		}
	}

	if err := p.seedLoaderConf(ctx); err != nil {
		return err
	}

	if err := p.anchors.InstallTrustAnchors(ctx); err != nil {
		return err
	}

	if err := p.anchors.RegisterTrust(ctx); err != nil {
		return err
	}

	logger.Info(ctx, "Host prepared for deployments")

	return nil
}

// requireMounted verifies that the path is an active mount point.
func (p *Preparer) requireMounted(ctx context.Context, path string) error {
	if err := p.run.Run(ctx, "findmnt", "-n", path); err != nil {
		return boot.E("prepare", boot.CategoryMount,
			fmt.Errorf("%w: %s: %v", errNotMounted, path, err))
	}

	return nil
}

// seedLoaderConf writes the initial loader configuration once. An existing
// configuration is never touched, it may carry a promoted default.
func (p *Preparer) seedLoaderConf(ctx context.Context) error {
	path := filepath.Join(p.espPath, loaderConfName)

	if _, err := os.Stat(path); err == nil {
		logger.DebugKV(ctx, "Loader configuration already present", "path", path)

		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return boot.E("prepare", boot.CategoryLoader,
			fmt.Errorf("probe loader config: %w", err))
	}

	if err := os.WriteFile(path, []byte(defaultLoaderConf), 0o644); err != nil {
		return boot.E("prepare", boot.CategoryLoader,
			fmt.Errorf("seed loader config: %w", err))
	}

	logger.InfoKV(ctx, "Loader configuration seeded", "path", path)

	return nil
}
