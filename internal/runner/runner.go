package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/shani8dev/shani-deploy/internal/logger"
)

// Runner executes external system tools.
type Runner interface {
	// Run executes a tool and discards its stdout.
	Run(ctx context.Context, name string, args ...string) error
	// Output executes a tool and returns its trimmed stdout.
	Output(ctx context.Context, name string, args ...string) (string, error)
	// RunWithStdin executes a tool with the provided reader as stdin.
	RunWithStdin(ctx context.Context, stdin io.Reader, name string, args ...string) error
}

// Exec runs tools on the host via os/exec.
type Exec struct{}

// NewExec returns a host-backed Runner.
func NewExec() *Exec {
	return &Exec{}
}

// Run implements Runner.
func (e *Exec) Run(ctx context.Context, name string, args ...string) error {
	return e.RunWithStdin(ctx, nil, name, args...)
}

// Output implements Runner.
func (e *Exec) Output(ctx context.Context, name string, args ...string) (string, error) {
	logger.DebugKV(ctx, "Executing tool", "tool", name, "args", strings.Join(args, " "))

	var stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return "", commandError(name, args, err, stderr.String())
	}

	return strings.TrimSpace(string(out)), nil
}

// RunWithStdin implements Runner.
func (e *Exec) RunWithStdin(ctx context.Context, stdin io.Reader, name string, args ...string) error {
	logger.DebugKV(ctx, "Executing tool", "tool", name, "args", strings.Join(args, " "))

	var stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return commandError(name, args, err, stderr.String())
	}

	return nil
}

// commandError wraps a tool failure with its command line and stderr tail.
func commandError(name string, args []string, err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}

	return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, stderr)
}
