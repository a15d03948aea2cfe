// Package secureboot maintains the shim/MOK trust chain on the EFI system
// partition and signs boot artifacts with the Machine Owner Key. Firmware
// enrollment of the MOK certificate is asynchronous: it is requested here
// and activated by the firmware on the next reboot.
package secureboot
