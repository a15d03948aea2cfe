// Package compose builds the per-slot bootable bundle: a deterministic
// kernel command line derived from the live device identity plus the
// kernel and initramfs staged on the EFI system partition under a
// slot-named directory. Recomposing always overwrites the prior bundle.
package compose
