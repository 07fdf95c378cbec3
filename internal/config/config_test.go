package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTestFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"Workers", cfg.Workers, 4},
		{"CacheDir", cfg.CacheDir, "./cache"},
		{"HTTPTimeout", cfg.HTTPTimeout, 60 * time.Second},
		{"LogLevel", cfg.Logging.Level, "info"},
		{"PollAttempts", cfg.Release.PollAttempts, 30},
		{"PollInterval", cfg.Release.PollInterval, 10 * time.Second},
		{"Repository", cfg.Release.Repository, "F3T1W/BoostyMilker"},
		{"Nuspec", cfg.Release.VersionFiles.Nuspec, "chocolatey/boosty-milker.nuspec"},
		{"Git", cfg.Release.Git, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
	if len(cfg.Licenses) != len(DefaultLicenses) {
		t.Errorf("expected default licenses, got %v", cfg.Licenses)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tapkeeper.yml")
	content := `workers: 8
http_timeout: 5s
logging:
  level: debug
release:
  tap_dir: /srv/homebrew-tap
  poll_attempts: 3
  poll_interval: 2s
  git: false
`
	if err := writeTestFile(path, content); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Workers)
	}
	if cfg.HTTPTimeout != 5*time.Second {
		t.Errorf("HTTPTimeout = %v, want 5s", cfg.HTTPTimeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Release.TapDir != "/srv/homebrew-tap" {
		t.Errorf("Release.TapDir = %q", cfg.Release.TapDir)
	}
	if cfg.Release.Git {
		t.Error("Release.Git should be false")
	}
	// untouched nested defaults survive
	if cfg.Release.GitRemote != "origin" {
		t.Errorf("Release.GitRemote = %q, want origin", cfg.Release.GitRemote)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TAPKEEPER_WORKERS", "12")
	t.Setenv("TAPKEEPER_RELEASE_TAP_DIR", "/opt/tap")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.Workers != 12 {
		t.Errorf("Workers = %d, want 12", cfg.Workers)
	}
	if cfg.Release.TapDir != "/opt/tap" {
		t.Errorf("Release.TapDir = %q, want /opt/tap", cfg.Release.TapDir)
	}
}

func TestLoadRejectsSchemaViolations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yml")
	if err := writeTestFile(path, "workers: 0\n"); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected Load to reject workers: 0")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestGlobalRoundTrip(t *testing.T) {
	prev := Global()
	t.Cleanup(func() { SetGlobal(prev) })

	cfg := DefaultConfig()
	cfg.Workers = 2
	SetGlobal(cfg)
	if Global().Workers != 2 {
		t.Errorf("Global().Workers = %d, want 2", Global().Workers)
	}
}

func TestConfigHelpers(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.CacheDir = filepath.Join(dir, "cache")
	cfg.Release.ProjectRoot = "/src/boosty"
	h := NewConfigHelpers(cfg)

	cacheDir, err := h.CreateCacheDir()
	if err != nil {
		t.Fatalf("CreateCacheDir failed: %v", err)
	}
	if _, err := os.Stat(cacheDir); err != nil {
		t.Errorf("cache dir not created: %v", err)
	}
	if got := h.ProjectPath("pyproject.toml"); got != "/src/boosty/pyproject.toml" {
		t.Errorf("ProjectPath = %q", got)
	}
	if got := h.ProjectPath("/abs/file"); got != "/abs/file" {
		t.Errorf("ProjectPath(abs) = %q", got)
	}
	if h.IsDebugMode() {
		t.Error("default config should not be debug")
	}
}
