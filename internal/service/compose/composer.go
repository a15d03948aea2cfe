package compose

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/shani8dev/shani-deploy/internal/domain/boot"
	"github.com/shani8dev/shani-deploy/internal/logger"
	"github.com/shani8dev/shani-deploy/internal/runner"
)

const (
	// kernelFilename is the kernel image name inside a deployed slot.
	kernelFilename = "vmlinuz-linux"
	// initramfsFilename is the initramfs name inside a deployed slot.
	initramfsFilename = "initramfs-linux.img"

	// stagedKernel is the kernel name inside the slot bundle on the ESP.
	stagedKernel = "vmlinuz"
	// stagedInitramfs is the initramfs name inside the slot bundle on the ESP.
	stagedInitramfs = "initramfs.img"
	// stagedCmdline is the cmdline file name inside the slot bundle on the ESP.
	stagedCmdline = "cmdline"

	// bundleDirPermissions is the permission for bundle directories. The ESP
	// is FAT, so these matter only on test filesystems.
	bundleDirPermissions = 0o755
	// bundleFilePermissions is the permission for staged bundle files.
	bundleFilePermissions = 0o644
)

// DeviceResolver yields the live root device identity.
type DeviceResolver interface {
	Resolve(ctx context.Context) (boot.DeviceIdentity, error)
}

// Composer builds slot-named boot bundles on the EFI system partition.
type Composer struct {
	run            runner.Runner
	devices        DeviceResolver
	espPath        string
	deploymentRoot string
	subvols        map[boot.Slot]string
	swapfilePath   string
	extraArgs      []string
}

// NewComposer returns a Composer staging bundles under espPath.
func NewComposer(
	run runner.Runner,
	devices DeviceResolver,
	espPath, deploymentRoot string,
	subvols map[boot.Slot]string,
	swapfilePath string,
	extraArgs []string,
) *Composer {
	return &Composer{
		run:            run,
		devices:        devices,
		espPath:        espPath,
		deploymentRoot: deploymentRoot,
		subvols:        subvols,
		swapfilePath:   swapfilePath,
		extraArgs:      extraArgs,
	}
}

// BundleDir returns the ESP directory holding the given slot's bundle.
func (c *Composer) BundleDir(slot boot.Slot) string {
	return filepath.Join(c.espPath, "EFI", "shani", slot.String())
}

// Image returns the staged bundle paths for the given slot without
// recomposing it. The cmdline is read back from the staged file.
func (c *Composer) Image(slot boot.Slot) (boot.Image, error) {
	dir := c.BundleDir(slot)
	cmdlinePath := filepath.Join(dir, stagedCmdline)

	raw, err := os.ReadFile(filepath.Clean(cmdlinePath))
	if err != nil {
		return boot.Image{}, boot.E("compose-boot", boot.CategoryValidation,
			fmt.Errorf("slot %s has no composed bundle: %w", slot, err))
	}

	return boot.Image{
		Slot:        slot,
		Kernel:      filepath.Join(dir, stagedKernel),
		Initrd:      filepath.Join(dir, stagedInitramfs),
		CmdlinePath: cmdlinePath,
		Cmdline:     boot.Cmdline{string(raw)},
	}, nil
}

// Compose builds the slot's boot bundle: the command line derived from the
// live device identity plus the kernel and initramfs copied out of the
// deployed slot. The prior bundle for the slot is overwritten.
func (c *Composer) Compose(ctx context.Context, slot boot.Slot) (boot.Image, error) {
	identity, err := c.devices.Resolve(ctx)
	if err != nil {
		return boot.Image{}, err
	}

	swap, err := c.swapResume(ctx, identity)
	if err != nil {
		return boot.Image{}, err
	}

	subvol := c.subvols[slot]
	cmdline := BuildCmdline(identity, subvol, swap, c.extraArgs)

	sourceBoot := filepath.Join(c.deploymentRoot, subvol, "boot")
	bundleDir := c.BundleDir(slot)

	if err := os.MkdirAll(bundleDir, bundleDirPermissions); err != nil {
		return boot.Image{}, boot.E("compose-boot", boot.CategoryValidation,
			fmt.Errorf("create bundle dir: %w", err))
	}

	image := boot.Image{
		Slot:        slot,
		Kernel:      filepath.Join(bundleDir, stagedKernel),
		Initrd:      filepath.Join(bundleDir, stagedInitramfs),
		CmdlinePath: filepath.Join(bundleDir, stagedCmdline),
		Cmdline:     cmdline,
	}

	if err := copyFile(filepath.Join(sourceBoot, kernelFilename), image.Kernel); err != nil {
		return boot.Image{}, boot.E("compose-boot", boot.CategoryValidation, err)
	}

	if err := copyFile(filepath.Join(sourceBoot, initramfsFilename), image.Initrd); err != nil {
		return boot.Image{}, boot.E("compose-boot", boot.CategoryValidation, err)
	}

	if err := writeFileAtomic(image.CmdlinePath, []byte(cmdline.String())); err != nil {
		return boot.Image{}, boot.E("compose-boot", boot.CategoryValidation,
			fmt.Errorf("write cmdline: %w", err))
	}

	logger.InfoKV(ctx, "Boot bundle composed",
		"slot", slot.String(), "dir", bundleDir, "cmdline", cmdline.String())

	return image, nil
}

// swapResume probes the configured swapfile, returning nil when hibernation
// support is not configured or the swapfile does not exist.
func (c *Composer) swapResume(ctx context.Context, identity boot.DeviceIdentity) (*SwapResume, error) {
	if c.swapfilePath == "" {
		return nil, nil
	}

	if _, err := os.Stat(c.swapfilePath); err != nil {
		logger.DebugKV(ctx, "Swapfile not present, skipping resume support",
			"path", c.swapfilePath)

		return nil, nil
	}

	out, err := c.run.Output(ctx, "btrfs", "inspect-internal", "map-swapfile", "-r", c.swapfilePath)
	if err != nil {
		return nil, boot.E("compose-boot", boot.CategoryHardwareProbe,
			fmt.Errorf("map swapfile: %w", err))
	}

	offset, err := strconv.ParseUint(out, 10, 64)
	if err != nil {
		return nil, boot.E("compose-boot", boot.CategoryHardwareProbe,
			fmt.Errorf("parse swapfile offset %q: %w", out, err))
	}

	return &SwapResume{
		UUID:   identity.UUID,
		Offset: offset,
	}, nil
}

// copyFile copies source onto dest through a temporary file so a crash never
// leaves a truncated artifact under the final name.
func copyFile(source, dest string) error {
	in, err := os.Open(filepath.Clean(source))
	if err != nil {
		return fmt.Errorf("open %s: %w", source, err)
	}

	defer func() {
		_ = in.Close()
	}()

	tmp := dest + ".tmp"

	out, err := os.OpenFile(filepath.Clean(tmp), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, bundleFilePermissions)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)

		return fmt.Errorf("copy %s: %w", source, err)
	}

	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)

		return err
	}

	return os.Rename(tmp, dest)
}

// writeFileAtomic writes data under path via temp file and rename.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, data, bundleFilePermissions); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}
