package secureboot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shani8dev/shani-deploy/internal/domain/boot"
	"github.com/shani8dev/shani-deploy/internal/runner"
)

// newManagerFixture lays out key material and shim binaries in temp dirs.
func newManagerFixture(t *testing.T, fake *runner.Fake) (*Manager, string) {
	t.Helper()

	keyDir := t.TempDir()
	espPath := t.TempDir()

	files := map[string]string{
		"MOK.key":     "private key",
		"MOK.crt":     "pem certificate",
		"MOK.cer":     "der certificate",
		"shimx64.efi": "shim binary",
		"mmx64.efi":   "mok manager binary",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(keyDir, name), []byte(content), 0o600))
	}

	manager := NewManager(fake, espPath,
		filepath.Join(keyDir, "MOK.key"),
		filepath.Join(keyDir, "MOK.crt"),
		filepath.Join(keyDir, "MOK.cer"),
		filepath.Join(keyDir, "shimx64.efi"),
		filepath.Join(keyDir, "mmx64.efi"))

	return manager, espPath
}

// TestInstallTrustAnchors installs shim, MOK manager and certificate into
// the fallback boot path and skips rewrites when content is unchanged.
func TestInstallTrustAnchors(t *testing.T) {
	t.Parallel()

	manager, espPath := newManagerFixture(t, runner.NewFake())

	require.NoError(t, manager.InstallTrustAnchors(context.Background()))

	bootDir := filepath.Join(espPath, "EFI", "BOOT")
	for _, name := range []string{shimName, mokManagerName, mokCertName} {
		_, err := os.Stat(filepath.Join(bootDir, name))
		require.NoError(t, err)
	}

	shim := filepath.Join(bootDir, shimName)

	before, err := os.Stat(shim)
	require.NoError(t, err)

	// Second install with identical content must not rewrite.
	require.NoError(t, manager.InstallTrustAnchors(context.Background()))

	after, err := os.Stat(shim)
	require.NoError(t, err)
	require.Equal(t, before.ModTime(), after.ModTime())
}

// TestSignArtifact replaces the artifact with the signed copy.
func TestSignArtifact(t *testing.T) {
	t.Parallel()

	fake := runner.NewFake()
	manager, _ := newManagerFixture(t, fake)

	artifact := filepath.Join(t.TempDir(), "vmlinuz")
	require.NoError(t, os.WriteFile(artifact, []byte("unsigned kernel"), 0o644))

	// The scripted sbsign writes the signed output file.
	fake.OnCall = func(call runner.Call) {
		if call.Name == "sbsign" {
			_ = os.WriteFile(artifact+".signed", []byte("signed kernel"), 0o644)
		}
	}

	require.NoError(t, manager.SignArtifact(context.Background(), artifact))

	content, err := os.ReadFile(artifact)
	require.NoError(t, err)
	require.Equal(t, "signed kernel", string(content))
}

// TestSignArtifactFailure surfaces sbsign failures as signing errors.
func TestSignArtifactFailure(t *testing.T) {
	t.Parallel()

	fake := runner.NewFake()
	manager, _ := newManagerFixture(t, fake)

	artifact := filepath.Join(t.TempDir(), "vmlinuz")
	require.NoError(t, os.WriteFile(artifact, []byte("unsigned kernel"), 0o644))

	fake.Script("sbsign --key "+manager.keyPath+" --cert "+manager.certPath+
		" --output "+artifact+".signed "+artifact,
		runner.Response{Err: errors.New("no key")})

	err := manager.SignArtifact(context.Background(), artifact)
	require.Error(t, err)
	require.Equal(t, boot.CategorySigning, boot.CategoryOf(err))

	// The unsigned original is untouched.
	content, readErr := os.ReadFile(artifact)
	require.NoError(t, readErr)
	require.Equal(t, "unsigned kernel", string(content))
}

// TestVerifyArtifact maps sbverify outcomes to the signing guard.
func TestVerifyArtifact(t *testing.T) {
	t.Parallel()

	fake := runner.NewFake()
	manager, _ := newManagerFixture(t, fake)

	require.NoError(t, manager.VerifyArtifact(context.Background(), "/esp/EFI/shani/b/vmlinuz"))

	fake.Script("sbverify --cert "+manager.certPath+" /esp/EFI/shani/a/vmlinuz",
		runner.Response{Err: errors.New("no signature table")})

	err := manager.VerifyArtifact(context.Background(), "/esp/EFI/shani/a/vmlinuz")
	require.Error(t, err)
	require.Equal(t, boot.CategorySigning, boot.CategoryOf(err))
}

// TestRegisterTrust queues enrollment only when the key is unknown to firmware.
func TestRegisterTrust(t *testing.T) {
	t.Parallel()

	fake := runner.NewFake()
	manager, _ := newManagerFixture(t, fake)

	fake.Script("mokutil --test-key "+manager.derPath,
		runner.Response{Output: manager.derPath + " is already enrolled"})

	require.NoError(t, manager.RegisterTrust(context.Background()))
	require.False(t, fake.Called("mokutil --import"))

	// Unknown key: enrollment is queued.
	fake.Script("mokutil --test-key "+manager.derPath,
		runner.Response{Err: errors.New("exit status 1")})

	require.NoError(t, manager.RegisterTrust(context.Background()))
	require.True(t, fake.Called("mokutil --import "+manager.derPath))
}
