package deploy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"
	"golang.org/x/sys/unix"
)

// leaseFilename is the lock file under the working directory enforcing the
// single-deployment-per-machine model.
const leaseFilename = "deploy.lock"

var errLeaseHeld = errors.New("deployment lease is held")

// Lease is an exclusive flock over the deployment working directory.
type Lease struct {
	file *os.File
}

// AcquireLease takes the exclusive deployment lease without blocking.
// On conflict the error names the holding process when it can be identified.
func AcquireLease(workDir string) (*Lease, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create working directory: %w", err)
	}

	path := filepath.Join(workDir, leaseFilename)

	file, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lease file: %w", err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		holder := describeHolder(file)
		_ = file.Close()

		if holder != "" {
			return nil, fmt.Errorf("%w by %s", errLeaseHeld, holder)
		}

		return nil, errLeaseHeld
	}

	// Record our pid for diagnostics on the conflicting side.
	_ = file.Truncate(0)
	_, _ = file.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0)

	return &Lease{file: file}, nil
}

// Release drops the lease. The lock file itself stays behind.
func (l *Lease) Release() error {
	if l == nil || l.file == nil {
		return nil
	}

	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	if closeErr := l.file.Close(); err == nil {
		err = closeErr
	}

	l.file = nil

	return err
}

// describeHolder reads the pid recorded in the lease file and checks whether
// that process is still alive.
func describeHolder(file *os.File) string {
	contents := make([]byte, 32)

	n, err := file.ReadAt(contents, 0)
	if n == 0 && err != nil {
		return ""
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(contents[:n])))
	if err != nil || pid <= 0 {
		return ""
	}

	process, err := ps.FindProcess(pid)
	if err != nil || process == nil {
		return fmt.Sprintf("pid %d (gone)", pid)
	}

	return fmt.Sprintf("pid %d (%s)", pid, process.Executable())
}
