package boot

import (
	"errors"
	"fmt"
	"strings"
)

// Slot identifies one of the two peer root subvolumes.
type Slot string

const (
	// SlotA is the first root slot.
	SlotA Slot = "a"
	// SlotB is the second root slot.
	SlotB Slot = "b"
)

// errUnknownSlot is returned when a string does not name a valid slot.
var errUnknownSlot = errors.New("unknown slot")

// ParseSlot converts user input into a Slot.
func ParseSlot(s string) (Slot, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a":
		return SlotA, nil
	case "b":
		return SlotB, nil
	default:
		return "", fmt.Errorf("%w: %q", errUnknownSlot, s)
	}
}

// String returns the slot identifier.
func (s Slot) String() string {
	return string(s)
}

// Complement returns the other slot of the pair.
func (s Slot) Complement() Slot {
	if s == SlotA {
		return SlotB
	}

	return SlotA
}

// EncryptionKind describes the topology between the root filesystem and the
// physical device.
type EncryptionKind string

const (
	// EncryptionPlain means the filesystem sits directly on a partition.
	EncryptionPlain EncryptionKind = "plain"
	// EncryptionLVM means the filesystem sits on an unencrypted LVM volume.
	EncryptionLVM EncryptionKind = "lvm"
	// EncryptionLUKS means the filesystem sits inside a LUKS container.
	EncryptionLUKS EncryptionKind = "luks"
)

// DeviceIdentity is the resolved identity of the root device.
// It is recomputed from live system state on every run and never persisted.
type DeviceIdentity struct {
	// UUID identifies the root device for the kernel command line.
	UUID string
	// Kind is the encryption topology of the root device.
	Kind EncryptionKind
	// Backing is the device node the identity was read from.
	Backing string
}

// Cmdline is an ordered kernel command line token sequence.
type Cmdline []string

// String renders the command line with single-space separators.
func (c Cmdline) String() string {
	return strings.Join(c, " ")
}

// Image is the bootable bundle staged on the EFI system partition for one
// slot. It is regenerated on every compose and overwrites its predecessor.
type Image struct {
	// Slot is the root slot this image boots.
	Slot Slot
	// Kernel is the absolute path of the staged kernel on the ESP.
	Kernel string
	// Initrd is the absolute path of the staged initramfs on the ESP.
	Initrd string
	// CmdlinePath is the absolute path of the staged cmdline file.
	CmdlinePath string
	// Cmdline is the command line embedded in the bundle.
	Cmdline Cmdline
}

// Entry is a loader entry referencing one slot's boot image.
type Entry struct {
	// Title is the human-readable entry title.
	Title string
	// Linux is the ESP-relative kernel path.
	Linux string
	// Initrd is the ESP-relative initramfs path.
	Initrd string
	// Options is the kernel command line.
	Options string
	// Slot is the root slot this entry boots.
	Slot Slot
}
