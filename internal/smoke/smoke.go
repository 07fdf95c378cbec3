// Package smoke runs the post-install check declared by a descriptor.
package smoke

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/open-edge-platform/tapkeeper/internal/formula"
	"github.com/open-edge-platform/tapkeeper/internal/utils/logger"
	"github.com/open-edge-platform/tapkeeper/internal/utils/shell"
)

// DefaultTimeout bounds a smoke test when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Options control a smoke test run.
type Options struct {
	EntryPoint string
	Args       []string // defaults to --help
	Timeout    time.Duration
	Dir        string
	// BinDir is where installed executables live. Empty means PATH lookup.
	BinDir string
	Env    []string
}

// Result is the outcome of a smoke test.
type Result struct {
	Command  string
	ExitCode int
	Output   string
	Duration time.Duration
}

// Passed reports whether the entry point exited 0.
func (r *Result) Passed() bool { return r.ExitCode == 0 }

// FailedError is returned when the entry point ran but exited non-zero.
type FailedError struct {
	Command  string
	ExitCode int
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("smoke test %q exited with status %d", e.Command, e.ExitCode)
}

// Run executes the entry point and waits for it to exit. A non-zero exit
// yields both the Result and a *FailedError.
func Run(ctx context.Context, opts Options) (*Result, error) {
	log := logger.Logger()

	if opts.EntryPoint == "" {
		return nil, fmt.Errorf("smoke test has no entry point")
	}
	args := opts.Args
	if len(args) == 0 {
		args = []string{"--help"}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	bin, err := resolve(opts.EntryPoint, opts.BinDir)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmdline := strings.Join(append([]string{bin}, args...), " ")
	log.Infof("Running smoke test: %s", cmdline)

	res, err := shell.Run(ctx, opts.Dir, opts.Env, bin, args...)
	out := &Result{Command: cmdline, ExitCode: res.ExitCode, Output: res.Output, Duration: res.Duration}
	if res.Output != "" {
		log.Debugf("smoke test output:\n%s", res.Output)
	}
	if err != nil {
		return out, fmt.Errorf("smoke test %q: %w", cmdline, err)
	}
	if !out.Passed() {
		return out, &FailedError{Command: cmdline, ExitCode: out.ExitCode}
	}
	log.Infof("Smoke test passed in %s", out.Duration.Round(time.Millisecond))
	return out, nil
}

// RunDescriptor runs the smoke test declared by d. The #{bin} prefix of the
// test command is resolved against opts.BinDir.
func RunDescriptor(ctx context.Context, d *formula.Descriptor, opts Options) (*Result, error) {
	opts.EntryPoint = d.EntryPoint()
	if len(d.Test.Args) > 0 {
		opts.Args = d.Test.Args
	}
	return Run(ctx, opts)
}

func resolve(entryPoint, binDir string) (string, error) {
	if strings.ContainsRune(entryPoint, filepath.Separator) {
		return entryPoint, nil
	}
	if binDir != "" {
		return filepath.Join(binDir, entryPoint), nil
	}
	path, err := exec.LookPath(entryPoint)
	if err != nil {
		return "", fmt.Errorf("entry point %s not found in PATH: %w", entryPoint, err)
	}
	return path, nil
}
