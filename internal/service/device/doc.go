// Package device resolves the root device identity: its UUID and whether
// it sits on a plain partition, an unencrypted LVM volume or inside a LUKS
// container. The identity is ephemeral and reflects live hardware state.
package device
