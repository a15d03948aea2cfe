package compose

import (
	"fmt"

	"github.com/shani8dev/shani-deploy/internal/domain/boot"
)

// SwapResume carries the data needed to resume from a file-backed swap:
// the filesystem UUID holding the swapfile and the physical extent offset.
// File-backed swap needs the offset because a device path alone cannot
// locate the swap extents.
type SwapResume struct {
	// UUID is the filesystem UUID the swapfile lives on.
	UUID string
	// Offset is the physical extent offset of the swapfile.
	Offset uint64
}

// BuildCmdline derives the kernel command line for booting the given
// subvolume on the resolved device. Token order is fixed so identical
// inputs always yield byte-identical output.
func BuildCmdline(identity boot.DeviceIdentity, subvol string, swap *SwapResume, extra []string) boot.Cmdline {
	cmdline := boot.Cmdline{
		"quiet",
		"splash",
		fmt.Sprintf("root=UUID=%s", identity.UUID),
		"ro",
		fmt.Sprintf("rootflags=subvol=%s,ro", subvol),
	}

	if identity.Kind == boot.EncryptionLUKS {
		cmdline = append(cmdline,
			fmt.Sprintf("rd.luks.uuid=%s", identity.UUID),
			fmt.Sprintf("rd.luks.options=%s=tpm2-device=auto,discard", identity.UUID),
		)
	}

	if swap != nil {
		cmdline = append(cmdline,
			fmt.Sprintf("resume=UUID=%s", swap.UUID),
			fmt.Sprintf("resume_offset=%d", swap.Offset),
		)
	}

	return append(cmdline, extra...)
}
