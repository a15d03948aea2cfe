package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/shani8dev/shani-deploy/internal/domain/boot"
	"github.com/shani8dev/shani-deploy/internal/logger"
	"github.com/shani8dev/shani-deploy/internal/runner"
	"github.com/shani8dev/shani-deploy/internal/service/slot"
)

const (
	// scratchDirname is the scratch mount point under the working directory.
	scratchDirname = "scratch"
	// stagingPrefix names the per-slot receive staging directory on the
	// mounted top-level volume.
	stagingPrefix = ".receive-"
	// zstdSuffix marks zstd-compressed send streams.
	zstdSuffix = ".zst"
)

var (
	errTargetIsActive   = errors.New("target slot is the active slot")
	errNoReceivedSubvol = errors.New("receive produced no subvolume")
	errManyReceived     = errors.New("receive produced more than one subvolume")
)

// Engine deploys images into the inactive slot.
type Engine struct {
	run     runner.Runner
	slots   *slot.Resolver
	workDir string
	subvols map[boot.Slot]string
}

// NewEngine returns an Engine working under workDir.
func NewEngine(run runner.Runner, slots *slot.Resolver, workDir string, subvols map[boot.Slot]string) *Engine {
	return &Engine{
		run:     run,
		slots:   slots,
		workDir: workDir,
		subvols: subvols,
	}
}

// Deploy receives the image's send-stream into the target slot.
//
// The target must be the inactive slot. Prior slot content is removed only
// after the scratch mount succeeded, the stream is received into a staging
// directory and renamed onto the slot in one step, and nothing outside the
// target subvolume is ever written.
func (e *Engine) Deploy(ctx context.Context, imagePath string, target boot.Slot) error {
	active, err := e.slots.Active(ctx)
	if err != nil {
		return err
	}

	if target == active {
		return boot.E("deploy", boot.CategorySlotConflict,
			fmt.Errorf("%w: %s", errTargetIsActive, target))
	}

	lease, err := AcquireLease(e.workDir)
	if err != nil {
		return boot.E("deploy", boot.CategoryLease, err)
	}

	defer func() {
		_ = lease.Release()
	}()

	device, err := e.slots.RootDevice(ctx)
	if err != nil {
		return err
	}

	scratch := filepath.Join(e.workDir, scratchDirname)
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return boot.Ef("deploy", boot.CategoryMount, "create scratch point: %w", err)
	}

	// Mount the volume top level so both slot subvolumes are addressable.
	if err := e.run.Run(ctx, "mount", "-o", "subvolid=5", device, scratch); err != nil {
		return boot.E("deploy", boot.CategoryMount, err)
	}

	defer e.unmountScratch(ctx, scratch)

	logger.InfoKV(ctx, "Receiving image into slot",
		"image", imagePath, "slot", target.String(), "subvolume", e.subvols[target])

	if err := e.receive(ctx, scratch, imagePath, target); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Slot deployed", "slot", target.String())

	return nil
}

// receive replaces the slot subvolume with the image's send-stream.
func (e *Engine) receive(ctx context.Context, scratch, imagePath string, target boot.Slot) error {
	subvolPath := filepath.Join(scratch, e.subvols[target])
	staging := filepath.Join(scratch, stagingPrefix+target.String())

	// Leftovers of an aborted attempt are removed up front; partial
	// receives are never resumed.
	if err := e.removeSubvolumes(ctx, staging); err != nil {
		return boot.E("deploy", boot.CategoryReceive, err)
	}

	if _, err := os.Stat(subvolPath); err == nil {
		if err := e.run.Run(ctx, "btrfs", "subvolume", "delete", subvolPath); err != nil {
			return boot.E("deploy", boot.CategoryReceive, fmt.Errorf("remove prior slot content: %w", err))
		}
	}

	if err := os.MkdirAll(staging, 0o755); err != nil {
		return boot.Ef("deploy", boot.CategoryReceive, "create staging: %w", err)
	}

	stream, err := openStream(imagePath)
	if err != nil {
		return boot.E("deploy", boot.CategoryReceive, err)
	}

	defer func() {
		_ = stream.Close()
	}()

	if err := e.run.RunWithStdin(ctx, stream, "btrfs", "receive", staging); err != nil {
		// Best effort: the slot stays indeterminate, a retry starts clean.
		if cleanupErr := e.removeSubvolumes(ctx, staging); cleanupErr != nil {
			logger.WarnKV(ctx, "Cleanup after failed receive failed", "error", cleanupErr)
		}

		return boot.E("deploy", boot.CategoryReceive, err)
	}

	received, err := receivedSubvolume(staging)
	if err != nil {
		return boot.E("deploy", boot.CategoryReceive, err)
	}

	if err := os.Rename(received, subvolPath); err != nil {
		return boot.E("deploy", boot.CategoryReceive, fmt.Errorf("move received subvolume: %w", err))
	}

	if err := os.Remove(staging); err != nil {
		logger.WarnKV(ctx, "Unable to remove staging directory", "path", staging, "error", err)
	}

	return nil
}

// removeSubvolumes deletes every subvolume under dir and then dir itself.
func (e *Engine) removeSubvolumes(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("inspect %s: %w", dir, err)
	}

	for _, entry := range entries {
		leftover := filepath.Join(dir, entry.Name())
		if err := e.run.Run(ctx, "btrfs", "subvolume", "delete", leftover); err != nil {
			return fmt.Errorf("remove leftover %s: %w", leftover, err)
		}
	}

	if err := os.Remove(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", dir, err)
	}

	return nil
}

// unmountScratch detaches the scratch mount. Failures here do not endanger
// the deployed slot and are only logged.
func (e *Engine) unmountScratch(ctx context.Context, scratch string) {
	if err := e.run.Run(ctx, "umount", scratch); err != nil {
		logger.WarnKV(ctx, "Unable to unmount scratch point", "path", scratch, "error", err)
	}
}

// receivedSubvolume returns the single subvolume the stream created.
func receivedSubvolume(staging string) (string, error) {
	entries, err := os.ReadDir(staging)
	if err != nil {
		return "", fmt.Errorf("inspect staging: %w", err)
	}

	switch len(entries) {
	case 0:
		return "", errNoReceivedSubvol
	case 1:
		return filepath.Join(staging, entries[0].Name()), nil
	default:
		return "", fmt.Errorf("%w: %d entries", errManyReceived, len(entries))
	}
}

// streamCloser closes both the decoder and the underlying image file.
type streamCloser struct {
	io.Reader
	closers []func() error
}

// Close implements io.Closer.
func (s *streamCloser) Close() error {
	var err error

	for _, closeFn := range s.closers {
		if closeErr := closeFn(); err == nil {
			err = closeErr
		}
	}

	return err
}

// openStream opens the image as a raw send-stream, transparently
// decompressing zstd images.
func openStream(imagePath string) (io.ReadCloser, error) {
	file, err := os.Open(filepath.Clean(imagePath))
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}

	if !strings.HasSuffix(imagePath, zstdSuffix) {
		return file, nil
	}

	decoder, err := zstd.NewReader(file)
	if err != nil {
		_ = file.Close()

		return nil, fmt.Errorf("open zstd stream: %w", err)
	}

	return &streamCloser{
		Reader: decoder,
		closers: []func() error{
			func() error { decoder.Close(); return nil },
			file.Close,
		},
	}, nil
}
