package slot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shani8dev/shani-deploy/internal/domain/boot"
	"github.com/shani8dev/shani-deploy/internal/runner"
)

var (
	errNoRootSource   = errors.New("unable to determine root mount source")
	errNoSubvolume    = errors.New("root mount source carries no subvolume")
	errUnknownSubvol  = errors.New("root subvolume does not match any slot")
	errEmptySubvolMap = errors.New("no slot subvolumes configured")
)

// Resolver determines the active root slot from the live mount table.
type Resolver struct {
	run     runner.Runner
	subvols map[boot.Slot]string
}

// NewResolver returns a Resolver matching against the given slot subvolume names.
func NewResolver(run runner.Runner, subvols map[boot.Slot]string) *Resolver {
	return &Resolver{
		run:     run,
		subvols: subvols,
	}
}

// Active returns the slot whose subvolume backs the current root mount.
func (r *Resolver) Active(ctx context.Context) (boot.Slot, error) {
	if len(r.subvols) == 0 {
		return "", boot.E("resolve-slot", boot.CategoryResolution, errEmptySubvolMap)
	}

	_, subvol, err := r.rootSource(ctx)
	if err != nil {
		return "", boot.E("resolve-slot", boot.CategoryResolution, err)
	}

	for slot, name := range r.subvols {
		if subvol == name {
			return slot, nil
		}
	}

	return "", boot.E("resolve-slot", boot.CategoryResolution,
		fmt.Errorf("%w: %q", errUnknownSubvol, subvol))
}

// Inactive returns the complement of the active slot.
func (r *Resolver) Inactive(ctx context.Context) (boot.Slot, error) {
	active, err := r.Active(ctx)
	if err != nil {
		return "", err
	}

	return active.Complement(), nil
}

// RootDevice returns the device node backing the current root mount,
// stripped of any subvolume suffix. A root mounted without a subvolume is
// still a valid device source.
func (r *Resolver) RootDevice(ctx context.Context) (string, error) {
	device, _, err := r.rootSource(ctx)
	if err != nil && !errors.Is(err, errNoSubvolume) {
		return "", boot.E("resolve-slot", boot.CategoryResolution, err)
	}

	return device, nil
}

// rootSource reads the root mount source and splits it into device node and
// subvolume name. findmnt renders btrfs subvolume mounts as
// "/dev/sda2[/system-a]".
func (r *Resolver) rootSource(ctx context.Context) (device, subvol string, err error) {
	source, err := r.run.Output(ctx, "findmnt", "-n", "-o", "SOURCE", "/")
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", errNoRootSource, err)
	}

	if source == "" {
		return "", "", errNoRootSource
	}

	device = source

	start := strings.IndexByte(source, '[')
	if start < 0 {
		return device, "", errNoSubvolume
	}

	end := strings.IndexByte(source, ']')
	if end < start {
		return device, "", errNoSubvolume
	}

	device = source[:start]
	subvol = strings.TrimPrefix(source[start+1:end], "/")

	if subvol == "" {
		return device, "", errNoSubvolume
	}

	return device, subvol, nil
}
