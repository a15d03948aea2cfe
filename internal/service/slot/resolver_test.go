package slot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shani8dev/shani-deploy/internal/domain/boot"
	"github.com/shani8dev/shani-deploy/internal/runner"
)

// defaultSubvols is the stock slot layout used across resolver tests.
func defaultSubvols() map[boot.Slot]string {
	return map[boot.Slot]string{
		boot.SlotA: "system-a",
		boot.SlotB: "system-b",
	}
}

// TestActive resolves the live root mount source to a slot.
func TestActive(t *testing.T) {
	t.Parallel()

	fake := runner.NewFake()
	fake.Script("findmnt -n -o SOURCE /", runner.Response{Output: "/dev/sda2[/system-a]"})

	resolver := NewResolver(fake, defaultSubvols())

	active, err := resolver.Active(context.Background())
	require.NoError(t, err)
	require.Equal(t, boot.SlotA, active)

	inactive, err := resolver.Inactive(context.Background())
	require.NoError(t, err)
	require.Equal(t, boot.SlotB, inactive)

	// Complementarity holds regardless of which slot is active.
	require.NotEqual(t, active, inactive)
	require.Equal(t, active, inactive.Complement())
}

// TestActiveMapperSource resolves a device-mapper backed root mount.
func TestActiveMapperSource(t *testing.T) {
	t.Parallel()

	fake := runner.NewFake()
	fake.Script("findmnt -n -o SOURCE /", runner.Response{Output: "/dev/mapper/root[/system-b]"})

	resolver := NewResolver(fake, defaultSubvols())

	active, err := resolver.Active(context.Background())
	require.NoError(t, err)
	require.Equal(t, boot.SlotB, active)

	device, err := resolver.RootDevice(context.Background())
	require.NoError(t, err)
	require.Equal(t, "/dev/mapper/root", device)
}

// TestActiveUnknownSubvolume fails fatally when no slot matches.
func TestActiveUnknownSubvolume(t *testing.T) {
	t.Parallel()

	fake := runner.NewFake()
	fake.Script("findmnt -n -o SOURCE /", runner.Response{Output: "/dev/sda2[/rootfs]"})

	resolver := NewResolver(fake, defaultSubvols())

	_, err := resolver.Active(context.Background())
	require.Error(t, err)
	require.Equal(t, boot.CategoryResolution, boot.CategoryOf(err))
}

// TestActiveProbeFailure propagates findmnt failures as resolution errors.
func TestActiveProbeFailure(t *testing.T) {
	t.Parallel()

	fake := runner.NewFake()
	fake.Script("findmnt -n -o SOURCE /", runner.Response{Err: errors.New("exit status 1")})

	resolver := NewResolver(fake, defaultSubvols())

	_, err := resolver.Active(context.Background())
	require.Error(t, err)
	require.Equal(t, boot.CategoryResolution, boot.CategoryOf(err))
}

// TestRootDeviceWithoutSubvolume keeps the device usable when the root is
// not a subvolume mount.
func TestRootDeviceWithoutSubvolume(t *testing.T) {
	t.Parallel()

	fake := runner.NewFake()
	fake.Script("findmnt -n -o SOURCE /", runner.Response{Output: "/dev/nvme0n1p3"})

	resolver := NewResolver(fake, defaultSubvols())

	device, err := resolver.RootDevice(context.Background())
	require.NoError(t, err)
	require.Equal(t, "/dev/nvme0n1p3", device)

	// But no slot can be resolved from it.
	_, err = resolver.Active(context.Background())
	require.Error(t, err)
}
