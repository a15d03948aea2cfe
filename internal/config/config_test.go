package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shani8dev/shani-deploy/internal/domain/boot"
)

// TestValidate checks defaulting and rejection of unusable profiles.
func TestValidate(t *testing.T) {
	t.Parallel()

	// Empty profile is usable once defaults are applied.
	cfg := new(Config)
	require.NoError(t, Validate(cfg))
	require.Equal(t, "system-a", cfg.SubvolA)
	require.Equal(t, "system-b", cfg.SubvolB)
	require.Equal(t, "/boot/efi", cfg.ESPPath)
	require.Equal(t, DefaultTimeout, cfg.Timeout)

	// Identical slot subvolumes.
	cfg = &Config{SubvolA: "system", SubvolB: "system"}
	require.Error(t, Validate(cfg))

	// Broken image URL.
	cfg = &Config{ImageBaseURL: "::not-a-url"}
	require.Error(t, Validate(cfg))

	// Nil profile.
	require.Error(t, Validate(nil))
}

// TestSaveLoadRoundtrip ensures the profile is persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "profile.yaml")

	cfg := &Config{
		ImageBaseURL: "https://updates.shani.dev/images",
		ImageName:    "shani-os-2026.08.img.zst",
		SubvolA:      "blue",
		SubvolB:      "green",
	}

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.ImageBaseURL, loaded.ImageBaseURL)
	require.Equal(t, cfg.ImageName, loaded.ImageName)
	require.Equal(t, "blue", loaded.SubvolA)
	require.Equal(t, "green", loaded.SubvolB)
}

// TestSubvolumes verifies the slot to subvolume mapping.
func TestSubvolumes(t *testing.T) {
	t.Parallel()

	cfg := new(Config)
	require.NoError(t, Validate(cfg))

	require.Equal(t, "system-a", cfg.SubvolumeFor(boot.SlotA))
	require.Equal(t, "system-b", cfg.SubvolumeFor(boot.SlotB))
}
