package shell

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// checkShellAvailable checks if a shell is available for testing
func checkShellAvailable(t *testing.T) {
	t.Helper()
	shells := []string{"/bin/bash", "/usr/bin/bash", "/bin/sh"}
	for _, shell := range shells {
		if _, err := exec.LookPath(shell); err == nil {
			return
		}
	}
	t.Skip("No shell (bash or sh) available in test environment")
}

func TestExecCmd(t *testing.T) {
	checkShellAvailable(t)

	out, err := ExecCmd("echo test-exec-cmd", "", nil)
	if err != nil {
		t.Fatalf("ExecCmd failed: %v", err)
	}
	if !strings.Contains(out, "test-exec-cmd") {
		t.Errorf("Expected output to contain 'test-exec-cmd', got: %s", out)
	}
}

func TestExecCmdInDirWithEnv(t *testing.T) {
	checkShellAvailable(t)
	dir := t.TempDir()

	out, err := ExecCmd("pwd; echo $TAPKEEPER_TEST_VAR", dir, []string{"TAPKEEPER_TEST_VAR=from-env"})
	if err != nil {
		t.Fatalf("ExecCmd failed: %v", err)
	}
	resolved, _ := filepath.EvalSymlinks(dir)
	if !strings.Contains(out, resolved) && !strings.Contains(out, dir) {
		t.Errorf("Expected output to contain dir %s, got: %s", dir, out)
	}
	if !strings.Contains(out, "from-env") {
		t.Errorf("Expected env value in output, got: %s", out)
	}
}

func TestExecCmdFailure(t *testing.T) {
	checkShellAvailable(t)

	if _, err := ExecCmd("exit 3", "", nil); err == nil {
		t.Error("Expected error for failing command")
	}
}

func TestQuote(t *testing.T) {
	checkShellAvailable(t)

	msg := "Bump version to 1.0.3 (it's done)"
	out, err := ExecCmd("printf %s "+Quote(msg), "", nil)
	if err != nil {
		t.Fatalf("ExecCmd failed: %v", err)
	}
	if out != msg {
		t.Errorf("Quote round trip = %q, want %q", out, msg)
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatalf("writing script: %v", err)
	}
	return path
}

func TestRunExitCodes(t *testing.T) {
	checkShellAvailable(t)

	ok := writeScript(t, `echo "usage: tool [--help]"`)
	res, err := Run(context.Background(), "", nil, ok, "--help")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.ExitCode != 0 || !strings.Contains(res.Output, "usage:") {
		t.Errorf("unexpected result %+v", res)
	}

	bad := writeScript(t, "echo broken >&2; exit 2")
	res, err = Run(context.Background(), "", nil, bad)
	if err != nil {
		t.Fatalf("Run returned error for non-zero exit: %v", err)
	}
	if res.ExitCode != 2 {
		t.Errorf("ExitCode = %d, want 2", res.ExitCode)
	}
	if !strings.Contains(res.Output, "broken") {
		t.Errorf("expected stderr captured, got %q", res.Output)
	}
}

func TestRunMissingBinary(t *testing.T) {
	_, err := Run(context.Background(), "", nil, filepath.Join(t.TempDir(), "nope"))
	if err == nil {
		t.Error("expected error for missing binary")
	}
}

func TestRunTimeout(t *testing.T) {
	checkShellAvailable(t)

	slow := writeScript(t, "exec sleep 5")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	res, err := Run(ctx, "", nil, slow)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if res.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1", res.ExitCode)
	}
}

func TestIsCommandExist(t *testing.T) {
	checkShellAvailable(t)
	if !IsCommandExist("sh") {
		t.Error("expected sh to exist")
	}
	if IsCommandExist("definitely-not-a-command-tapkeeper") {
		t.Error("expected unknown command to be missing")
	}
}
