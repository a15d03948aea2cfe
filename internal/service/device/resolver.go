package device

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/shani8dev/shani-deploy/internal/domain/boot"
	"github.com/shani8dev/shani-deploy/internal/logger"
	"github.com/shani8dev/shani-deploy/internal/runner"
)

var (
	errNoBackingDevice = errors.New("no backing device in cryptsetup status")
	errEmptyUUID       = errors.New("device has no UUID")
)

// DeviceSource yields the device node backing the current root mount.
// The slot resolver satisfies this.
type DeviceSource interface {
	RootDevice(ctx context.Context) (string, error)
}

// Resolver determines the root device identity from live system state.
type Resolver struct {
	run    runner.Runner
	source DeviceSource
}

// NewResolver returns a Resolver probing through the given runner.
func NewResolver(run runner.Runner, source DeviceSource) *Resolver {
	return &Resolver{
		run:    run,
		source: source,
	}
}

// Resolve probes the root device and returns its identity.
//
// Mapper nodes are probed for LUKS first; when the LUKS query fails the node
// is treated as plain LVM and the filesystem UUID is read directly. Plain
// partitions read the filesystem UUID directly.
func (r *Resolver) Resolve(ctx context.Context) (boot.DeviceIdentity, error) {
	device, err := r.source.RootDevice(ctx)
	if err != nil {
		return boot.DeviceIdentity{}, err
	}

	if isMapperNode(device) {
		identity, err := r.resolveLUKS(ctx, device)
		if err == nil {
			return identity, nil
		}

		logger.DebugKV(ctx, "LUKS probe failed, treating device as plain LVM",
			"device", device, "error", err)

		return r.resolveFilesystem(ctx, device, boot.EncryptionLVM)
	}

	return r.resolveFilesystem(ctx, device, boot.EncryptionPlain)
}

// resolveLUKS queries the LUKS container UUID behind a mapper node.
func (r *Resolver) resolveLUKS(ctx context.Context, device string) (boot.DeviceIdentity, error) {
	backing, err := r.luksBackingDevice(ctx, device)
	if err != nil {
		return boot.DeviceIdentity{}, err
	}

	raw, err := r.run.Output(ctx, "cryptsetup", "luksUUID", backing)
	if err != nil {
		return boot.DeviceIdentity{}, fmt.Errorf("luks uuid query: %w", err)
	}

	id, err := validateUUID(raw)
	if err != nil {
		return boot.DeviceIdentity{}, err
	}

	return boot.DeviceIdentity{
		UUID:    id,
		Kind:    boot.EncryptionLUKS,
		Backing: backing,
	}, nil
}

// resolveFilesystem reads the filesystem UUID from the device superblock.
func (r *Resolver) resolveFilesystem(
	ctx context.Context,
	device string,
	kind boot.EncryptionKind,
) (boot.DeviceIdentity, error) {
	raw, err := r.run.Output(ctx, "blkid", "-s", "UUID", "-o", "value", device)
	if err != nil {
		return boot.DeviceIdentity{}, boot.E("resolve-device", boot.CategoryHardwareProbe,
			fmt.Errorf("read filesystem UUID of %s: %w", device, err))
	}

	id, err := validateUUID(raw)
	if err != nil {
		return boot.DeviceIdentity{}, boot.E("resolve-device", boot.CategoryHardwareProbe, err)
	}

	return boot.DeviceIdentity{
		UUID:    id,
		Kind:    kind,
		Backing: device,
	}, nil
}

// luksBackingDevice extracts the "device:" line from cryptsetup status.
func (r *Resolver) luksBackingDevice(ctx context.Context, device string) (string, error) {
	status, err := r.run.Output(ctx, "cryptsetup", "status", mapperName(device))
	if err != nil {
		return "", fmt.Errorf("cryptsetup status: %w", err)
	}

	for _, line := range strings.Split(status, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "device:"); ok {
			backing := strings.TrimSpace(rest)
			if backing != "" {
				return backing, nil
			}
		}
	}

	return "", errNoBackingDevice
}

// validateUUID rejects garbage from probes before it reaches a command line.
func validateUUID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errEmptyUUID
	}

	parsed, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("malformed UUID %q: %w", raw, err)
	}

	return parsed.String(), nil
}

// isMapperNode reports whether the device is a device-mapper node.
func isMapperNode(device string) bool {
	return strings.HasPrefix(device, "/dev/mapper/") || strings.HasPrefix(device, "/dev/dm-")
}

// mapperName strips the /dev/mapper/ prefix for cryptsetup status, which
// accepts either the mapped name or the full node path.
func mapperName(device string) string {
	return strings.TrimPrefix(device, "/dev/mapper/")
}
