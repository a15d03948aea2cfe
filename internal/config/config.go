package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shani8dev/shani-deploy/internal/domain/boot"
)

// Config is the deployment profile shared by every pipeline stage.
type Config struct {
	// ImageBaseURL is the URL prefix hosting images, delta indexes and checksums.
	ImageBaseURL string `yaml:"image_base_url"`
	// ImageName is the versioned image file to fetch and deploy.
	ImageName string `yaml:"image_name"`
	// CacheDir is the local delta cache keyed by image name.
	CacheDir string `yaml:"cache_dir"`
	// WorkDir holds the deployment lease, scratch mount point and rollback record.
	WorkDir string `yaml:"work_dir"`
	// DeploymentRoot is where both slot subvolumes are reachable when mounted.
	DeploymentRoot string `yaml:"deployment_root"`
	// ESPPath is the mount point of the EFI system partition.
	ESPPath string `yaml:"esp_path"`
	// SubvolA is the subvolume name of slot A.
	SubvolA string `yaml:"subvol_a"`
	// SubvolB is the subvolume name of slot B.
	SubvolB string `yaml:"subvol_b"`
	// SwapfilePath enables hibernation support when it points at an existing swapfile.
	SwapfilePath string `yaml:"swapfile_path"`
	// ExtraKernelArgs are appended verbatim to every composed command line.
	ExtraKernelArgs []string `yaml:"extra_kernel_args"`
	// MOKKeyPath is the Machine Owner Key private key used for signing.
	MOKKeyPath string `yaml:"mok_key_path"`
	// MOKCertPath is the PEM certificate paired with the MOK key.
	MOKCertPath string `yaml:"mok_cert_path"`
	// MOKDerPath is the DER certificate installed on the ESP and enrolled in firmware.
	MOKDerPath string `yaml:"mok_der_path"`
	// ShimPath is the signed shim binary installed as the fallback boot loader.
	ShimPath string `yaml:"shim_path"`
	// MokManagerPath is the MOK manager binary installed next to shim.
	MokManagerPath string `yaml:"mok_manager_path"`
	// OSTitle is the human-readable name used in loader entries.
	OSTitle string `yaml:"os_title"`
	// Timeout bounds network operations during fetch.
	Timeout time.Duration `yaml:"timeout"`
}

const (
	// DefaultConfigFilename is the default path of the deployment profile.
	DefaultConfigFilename = "/etc/shani-deploy/profile.yaml"

	// DefaultFilePermissions is the permission for profile files written by us.
	DefaultFilePermissions = 0o600

	// DefaultTimeout bounds network operations when the profile does not set one.
	DefaultTimeout = 5 * time.Minute
)

var (
	// errConfigIsNotSet is returned when a nil profile is provided.
	errConfigIsNotSet = errors.New("profile is not set")
	// errSlotsNotDistinct is returned when both slots name the same subvolume.
	errSlotsNotDistinct = errors.New("slot subvolumes must be distinct")
)

// Load reads the profile from the provided path, applies defaults and
// validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the profile to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}

	return nil
}

// Validate applies defaults and checks the profile for usable values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	applyDefaults(cfg)

	if cfg.SubvolA == cfg.SubvolB {
		return errSlotsNotDistinct
	}

	if cfg.ImageBaseURL != "" {
		if _, err := url.ParseRequestURI(cfg.ImageBaseURL); err != nil {
			return fmt.Errorf("invalid image base URL: %w", err)
		}
	}

	return nil
}

// applyDefaults fills unset fields with the stock Shani OS layout.
func applyDefaults(cfg *Config) {
	if cfg.CacheDir == "" {
		cfg.CacheDir = "/var/cache/shani-deploy"
	}

	if cfg.WorkDir == "" {
		cfg.WorkDir = "/var/lib/shani-deploy"
	}

	if cfg.DeploymentRoot == "" {
		cfg.DeploymentRoot = "/deployment"
	}

	if cfg.ESPPath == "" {
		cfg.ESPPath = "/boot/efi"
	}

	if cfg.SubvolA == "" {
		cfg.SubvolA = "system-a"
	}

	if cfg.SubvolB == "" {
		cfg.SubvolB = "system-b"
	}

	if cfg.MOKKeyPath == "" {
		cfg.MOKKeyPath = "/etc/shani-deploy/keys/MOK.key"
	}

	if cfg.MOKCertPath == "" {
		cfg.MOKCertPath = "/etc/shani-deploy/keys/MOK.crt"
	}

	if cfg.MOKDerPath == "" {
		cfg.MOKDerPath = "/etc/shani-deploy/keys/MOK.cer"
	}

	if cfg.ShimPath == "" {
		cfg.ShimPath = "/usr/share/shim-signed/shimx64.efi"
	}

	if cfg.MokManagerPath == "" {
		cfg.MokManagerPath = "/usr/share/shim-signed/mmx64.efi"
	}

	if cfg.OSTitle == "" {
		cfg.OSTitle = "Shani OS"
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
}

// Subvolumes returns the slot to subvolume name mapping.
func (c *Config) Subvolumes() map[boot.Slot]string {
	return map[boot.Slot]string{
		boot.SlotA: c.SubvolA,
		boot.SlotB: c.SubvolB,
	}
}

// SubvolumeFor returns the subvolume name of the given slot.
func (c *Config) SubvolumeFor(slot boot.Slot) string {
	return c.Subvolumes()[slot]
}
