package device

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shani8dev/shani-deploy/internal/domain/boot"
	"github.com/shani8dev/shani-deploy/internal/runner"
)

const testUUID = "12345678-9abc-def0-1234-56789abcdef0"

// staticSource returns a fixed root device node.
type staticSource string

func (s staticSource) RootDevice(context.Context) (string, error) {
	return string(s), nil
}

// TestResolvePlain reads the filesystem UUID straight from a partition.
func TestResolvePlain(t *testing.T) {
	t.Parallel()

	fake := runner.NewFake()
	fake.Script("blkid -s UUID -o value /dev/sda2", runner.Response{Output: testUUID})

	resolver := NewResolver(fake, staticSource("/dev/sda2"))

	identity, err := resolver.Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, boot.EncryptionPlain, identity.Kind)
	require.Equal(t, testUUID, identity.UUID)
	require.Equal(t, "/dev/sda2", identity.Backing)

	// Plain partitions never reach for cryptsetup.
	require.False(t, fake.Called("cryptsetup"))
}

// TestResolveLUKS walks the mapper node back to its LUKS container.
func TestResolveLUKS(t *testing.T) {
	t.Parallel()

	fake := runner.NewFake()
	fake.Script("cryptsetup status root", runner.Response{
		Output: "/dev/mapper/root is active and is in use.\n  type:    LUKS2\n  device:  /dev/nvme0n1p3\n",
	})
	fake.Script("cryptsetup luksUUID /dev/nvme0n1p3", runner.Response{Output: testUUID})

	resolver := NewResolver(fake, staticSource("/dev/mapper/root"))

	identity, err := resolver.Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, boot.EncryptionLUKS, identity.Kind)
	require.Equal(t, testUUID, identity.UUID)
	require.Equal(t, "/dev/nvme0n1p3", identity.Backing)
}

// TestResolveLVMBehindMapper treats a non-LUKS mapper node as plain LVM and
// reads the filesystem superblock, never issuing a LUKS UUID query.
func TestResolveLVMBehindMapper(t *testing.T) {
	t.Parallel()

	fake := runner.NewFake()
	fake.Script("cryptsetup status vg0-root", runner.Response{Err: errors.New("not a crypt device")})
	fake.Script("blkid -s UUID -o value /dev/mapper/vg0-root", runner.Response{Output: testUUID})

	resolver := NewResolver(fake, staticSource("/dev/mapper/vg0-root"))

	identity, err := resolver.Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, boot.EncryptionLVM, identity.Kind)
	require.Equal(t, testUUID, identity.UUID)

	require.False(t, fake.Called("cryptsetup luksUUID"))
}

// TestResolveNoUUID fails with a hardware probe error when no UUID is obtainable.
func TestResolveNoUUID(t *testing.T) {
	t.Parallel()

	fake := runner.NewFake()
	fake.Script("blkid -s UUID -o value /dev/sda2", runner.Response{Err: errors.New("exit status 2")})

	resolver := NewResolver(fake, staticSource("/dev/sda2"))

	_, err := resolver.Resolve(context.Background())
	require.Error(t, err)
	require.Equal(t, boot.CategoryHardwareProbe, boot.CategoryOf(err))
}

// TestResolveRejectsGarbageUUID refuses malformed probe output.
func TestResolveRejectsGarbageUUID(t *testing.T) {
	t.Parallel()

	fake := runner.NewFake()
	fake.Script("blkid -s UUID -o value /dev/sda2", runner.Response{Output: "not-a-uuid"})

	resolver := NewResolver(fake, staticSource("/dev/sda2"))

	_, err := resolver.Resolve(context.Background())
	require.Error(t, err)
	require.Equal(t, boot.CategoryHardwareProbe, boot.CategoryOf(err))
}
