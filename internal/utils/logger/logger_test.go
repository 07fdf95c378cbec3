package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	for _, name := range []string{"", "info", "DEBUG", "warn", "warning", "error"} {
		if _, err := ParseLevel(name); err != nil {
			t.Errorf("ParseLevel(%q) failed: %v", name, err)
		}
	}
	if _, err := ParseLevel("trace"); err == nil {
		t.Error("ParseLevel should reject unknown levels")
	}
}

func TestInitWritesToFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "tapkeeper.log")
	if err := Init("debug", logFile); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() {
		_ = Init("info", "")
	})

	Logger().Debugf("hello %s", "ledger")
	Sync()

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "hello ledger") {
		t.Errorf("Expected log file to contain message, got: %s", data)
	}
	if Level() != "debug" {
		t.Errorf("Expected level debug, got %s", Level())
	}
}
