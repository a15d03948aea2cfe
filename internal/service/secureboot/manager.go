package secureboot

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shani8dev/shani-deploy/internal/domain/boot"
	"github.com/shani8dev/shani-deploy/internal/logger"
	"github.com/shani8dev/shani-deploy/internal/runner"
)

const (
	// fallbackBootDir is the ESP-relative firmware fallback boot path.
	fallbackBootDir = "EFI/BOOT"

	// shimName is the shim file name inside the fallback boot path.
	shimName = "BOOTX64.EFI"
	// mokManagerName is the MOK manager file name inside the fallback boot path.
	mokManagerName = "mmx64.efi"
	// mokCertName is the DER certificate file name inside the fallback boot path.
	mokCertName = "shani.cer"

	// anchorFilePermissions is the permission for installed trust anchors.
	anchorFilePermissions = 0o644
)

var errCertNotEnrolled = errors.New("certificate not enrolled")

// Manager installs trust anchors and signs boot artifacts.
type Manager struct {
	run            runner.Runner
	espPath        string
	keyPath        string
	certPath       string
	derPath        string
	shimPath       string
	mokManagerPath string
}

// NewManager returns a Manager for the given ESP and MOK key material.
func NewManager(run runner.Runner, espPath, keyPath, certPath, derPath, shimPath, mokManagerPath string) *Manager {
	return &Manager{
		run:            run,
		espPath:        espPath,
		keyPath:        keyPath,
		certPath:       certPath,
		derPath:        derPath,
		shimPath:       shimPath,
		mokManagerPath: mokManagerPath,
	}
}

// InstallTrustAnchors copies shim, the MOK manager and the MOK certificate
// into the EFI fallback boot path. Files are only rewritten when their
// content differs, avoiding needless firmware variable churn.
func (m *Manager) InstallTrustAnchors(ctx context.Context) error {
	targetDir := filepath.Join(m.espPath, fallbackBootDir)
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return boot.E("install-anchors", boot.CategorySigning,
			fmt.Errorf("create fallback boot path: %w", err))
	}

	anchors := []struct {
		source string
		target string
	}{
		{m.shimPath, filepath.Join(targetDir, shimName)},
		{m.mokManagerPath, filepath.Join(targetDir, mokManagerName)},
		{m.derPath, filepath.Join(targetDir, mokCertName)},
	}

	for _, anchor := range anchors {
		updated, err := installIfChanged(anchor.source, anchor.target)
		if err != nil {
			return boot.E("install-anchors", boot.CategorySigning, err)
		}

		if updated {
			logger.InfoKV(ctx, "Trust anchor installed", "path", anchor.target)
		} else {
			logger.DebugKV(ctx, "Trust anchor unchanged", "path", anchor.target)
		}
	}

	return nil
}

// SignArtifact signs the boot executable in place with the MOK key pair.
// The signed copy replaces the original atomically.
func (m *Manager) SignArtifact(ctx context.Context, path string) error {
	signed := path + ".signed"

	err := m.run.Run(ctx, "sbsign",
		"--key", m.keyPath,
		"--cert", m.certPath,
		"--output", signed,
		path)
	if err != nil {
		_ = os.Remove(signed)

		return boot.E("sign", boot.CategorySigning, err)
	}

	if err := os.Rename(signed, path); err != nil {
		return boot.E("sign", boot.CategorySigning, fmt.Errorf("replace artifact: %w", err))
	}

	logger.InfoKV(ctx, "Artifact signed", "path", path)

	return nil
}

// VerifyArtifact checks that the executable carries a signature matching
// the MOK certificate. The boot entry publisher uses this as its guard.
func (m *Manager) VerifyArtifact(ctx context.Context, path string) error {
	if err := m.run.Run(ctx, "sbverify", "--cert", m.certPath, path); err != nil {
		return boot.E("verify", boot.CategorySigning,
			fmt.Errorf("%s is not signed by the machine owner key: %w", path, err))
	}

	return nil
}

// Enrolled reports whether the MOK certificate is already active in firmware.
func (m *Manager) Enrolled(ctx context.Context) bool {
	// mokutil prints "... is already enrolled" and exits zero for known keys.
	out, err := m.run.Output(ctx, "mokutil", "--test-key", m.derPath)
	if err != nil {
		return false
	}

	return strings.Contains(out, "already enrolled")
}

// RegisterTrust enqueues the MOK certificate for firmware enrollment.
// Activation happens during the next reboot, outside this system's control.
func (m *Manager) RegisterTrust(ctx context.Context) error {
	if m.Enrolled(ctx) {
		logger.Info(ctx, "MOK certificate already enrolled")
		return nil
	}

	if err := m.run.Run(ctx, "mokutil", "--import", m.derPath); err != nil {
		return boot.E("register-trust", boot.CategorySigning, err)
	}

	logger.Info(ctx, "MOK enrollment queued, firmware will prompt on next boot")

	return nil
}

// EnsureEnrolled fails when the certificate is neither enrolled nor queued.
// Callers that must not proceed before a reboot cycle use this.
func (m *Manager) EnsureEnrolled(ctx context.Context) error {
	if m.Enrolled(ctx) {
		return nil
	}

	return boot.E("register-trust", boot.CategorySigning, errCertNotEnrolled)
}

// installIfChanged copies source over target unless the content already
// matches. It reports whether the target was rewritten.
func installIfChanged(source, target string) (bool, error) {
	sourceSum, err := digest(source)
	if err != nil {
		return false, fmt.Errorf("hash %s: %w", source, err)
	}

	targetSum, err := digest(target)
	if err == nil && bytes.Equal(sourceSum, targetSum) {
		return false, nil
	}

	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("hash %s: %w", target, err)
	}

	data, err := os.ReadFile(filepath.Clean(source))
	if err != nil {
		return false, fmt.Errorf("read %s: %w", source, err)
	}

	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, anchorFilePermissions); err != nil {
		return false, fmt.Errorf("write %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, target); err != nil {
		return false, fmt.Errorf("install %s: %w", target, err)
	}

	return true, nil
}

// digest streams a file through SHA-256.
func digest(path string) ([]byte, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = file.Close()
	}()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return nil, err
	}

	return hasher.Sum(nil), nil
}
