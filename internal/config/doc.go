// Package config defines the deployment profile used by every pipeline
// stage and provides helpers to load, validate and save it in YAML format.
//
// The Config type holds the image source, the slot subvolume layout, the
// EFI system partition paths and the secure boot key material locations.
package config
