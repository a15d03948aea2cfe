// Package runner is the execution seam for external system tools
// (findmnt, blkid, cryptsetup, btrfs, mount, sbsign, mokutil, zsync).
// Services depend on the Runner interface so tests can substitute a Fake
// and assert the exact call sequence without touching the host.
package runner
