package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/open-edge-platform/tapkeeper/internal/utils/logger"
)

// getShell returns the preferred shell, falling back to /bin/sh if bash is not available
func getShell() string {
	shells := []string{"/bin/bash", "/usr/bin/bash", "/bin/sh"}
	for _, shell := range shells {
		if _, err := os.Stat(shell); err == nil {
			return shell
		}
	}
	return "/bin/sh"
}

// IsCommandExist checks if a command exists in PATH
func IsCommandExist(cmd string) bool {
	_, err := exec.LookPath(cmd)
	return err == nil
}

// Quote wraps s in single quotes for safe use inside a shell command string.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func newShellCmd(cmdStr string, dir string, envVal []string) *exec.Cmd {
	cmd := exec.Command(getShell(), "-c", cmdStr)
	cmd.Dir = dir
	if len(envVal) > 0 {
		cmd.Env = append(os.Environ(), envVal...)
	}
	return cmd
}

// ExecCmd executes a command string through the shell in dir and returns its
// combined output.
func ExecCmd(cmdStr string, dir string, envVal []string) (string, error) {
	log := logger.Logger()
	log.Debugf("Exec: [%s] in %s", cmdStr, displayDir(dir))

	output, err := newShellCmd(cmdStr, dir, envVal).CombinedOutput()
	outputStr := string(output)

	if err != nil {
		if outputStr != "" {
			log.Info(outputStr)
		}
		return outputStr, fmt.Errorf("failed to exec %s: %w", cmdStr, err)
	}
	if outputStr != "" {
		log.Debug(outputStr)
	}
	return outputStr, nil
}

// Result is the outcome of a direct (non-shell) process execution.
type Result struct {
	ExitCode int
	Output   string
	Duration time.Duration
}

// Run executes name with args without a shell. A non-zero exit status is not
// an error: it is reported in Result.ExitCode. Errors are returned only when
// the process could not be started or the context expired.
func Run(ctx context.Context, dir string, envVal []string, name string, args ...string) (Result, error) {
	log := logger.Logger()
	log.Debugf("Run: [%s %s] in %s", name, strings.Join(args, " "), displayDir(dir))

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = time.Second
	cmd.Dir = dir
	if len(envVal) > 0 {
		cmd.Env = append(os.Environ(), envVal...)
	}
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	start := time.Now()
	err := cmd.Run()
	res := Result{Output: buf.String(), Duration: time.Since(start)}

	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		return res, fmt.Errorf("running %s: %w", name, ctxErr)
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ExitCode = 0
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
		return res, fmt.Errorf("running %s: %w", name, err)
	}
	return res, nil
}

func displayDir(dir string) string {
	if dir == "" {
		return "."
	}
	return dir
}
