package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/open-edge-platform/tapkeeper/internal/config/validate"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables that override config keys,
// e.g. TAPKEEPER_WORKERS or TAPKEEPER_RELEASE_TAP_DIR.
const EnvPrefix = "TAPKEEPER"

// DefaultConfigFile is looked up in the working directory when no --config is given.
const DefaultConfigFile = "tapkeeper.yml"

type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

type ReleaseConfig struct {
	ProjectRoot  string        `mapstructure:"project_root" yaml:"project_root"`
	Formula      string        `mapstructure:"formula" yaml:"formula"`
	TapDir       string        `mapstructure:"tap_dir" yaml:"tap_dir"`
	Manifest     string        `mapstructure:"manifest" yaml:"manifest"`
	Repository   string        `mapstructure:"repository" yaml:"repository"`
	AssetName    string        `mapstructure:"asset_name" yaml:"asset_name"`
	PollAttempts int           `mapstructure:"poll_attempts" yaml:"poll_attempts"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Git          bool          `mapstructure:"git" yaml:"git"`
	GitRemote    string        `mapstructure:"git_remote" yaml:"git_remote"`
	GitBranch    string        `mapstructure:"git_branch" yaml:"git_branch"`
	VersionFiles VersionFiles  `mapstructure:"version_files" yaml:"version_files"`
}

// VersionFiles are the project relative paths that carry the release version.
type VersionFiles struct {
	PyProject     string `mapstructure:"pyproject" yaml:"pyproject"`
	Nuspec        string `mapstructure:"nuspec" yaml:"nuspec"`
	DebianControl string `mapstructure:"debian_control" yaml:"debian_control"`
}

type SigningConfig struct {
	Keyring    string `mapstructure:"keyring" yaml:"keyring"`
	Passphrase string `mapstructure:"passphrase" yaml:"passphrase"`
}

// GlobalConfig holds the tool wide settings.
type GlobalConfig struct {
	Workers      int           `mapstructure:"workers" yaml:"workers"`
	CacheDir     string        `mapstructure:"cache_dir" yaml:"cache_dir"`
	WorkDir      string        `mapstructure:"work_dir" yaml:"work_dir"`
	Ledger       string        `mapstructure:"ledger" yaml:"ledger"`
	HTTPTimeout  time.Duration `mapstructure:"http_timeout" yaml:"http_timeout"`
	SmokeTimeout time.Duration `mapstructure:"smoke_timeout" yaml:"smoke_timeout"`
	Licenses     []string      `mapstructure:"licenses" yaml:"licenses"`
	Logging      LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Release      ReleaseConfig `mapstructure:"release" yaml:"release"`
	Signing      SigningConfig `mapstructure:"signing" yaml:"signing"`
}

var (
	globalMu sync.RWMutex
	glConfig = DefaultConfig()
)

// DefaultLicenses is the recognized license set used when none is configured.
var DefaultLicenses = []string{
	"MIT", "Apache-2.0", "BSD-2-Clause", "BSD-3-Clause", "GPL-2.0-only",
	"GPL-3.0-only", "GPL-3.0-or-later", "LGPL-3.0-only", "MPL-2.0", "ISC",
	"Unlicense", "0BSD", "Zlib",
}

// DefaultConfig returns a config with every field set to its built-in default.
func DefaultConfig() *GlobalConfig {
	return &GlobalConfig{
		Workers:      4,
		CacheDir:     "./cache",
		WorkDir:      "./workspace",
		Ledger:       "./cache/ledger.db",
		HTTPTimeout:  60 * time.Second,
		SmokeTimeout: 30 * time.Second,
		Licenses:     append([]string(nil), DefaultLicenses...),
		Logging: LoggingConfig{
			Level: "info",
		},
		Release: ReleaseConfig{
			ProjectRoot:  ".",
			Formula:      "boosty-milker.rb",
			TapDir:       "../homebrew-tap",
			Repository:   "F3T1W/BoostyMilker",
			AssetName:    "boosty-milker-linux",
			PollAttempts: 30,
			PollInterval: 10 * time.Second,
			Git:          true,
			GitRemote:    "origin",
			GitBranch:    "main",
			VersionFiles: VersionFiles{
				PyProject:     "pyproject.toml",
				Nuspec:        "chocolatey/boosty-milker.nuspec",
				DebianControl: "package/DEBIAN/control",
			},
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("workers", d.Workers)
	v.SetDefault("cache_dir", d.CacheDir)
	v.SetDefault("work_dir", d.WorkDir)
	v.SetDefault("ledger", d.Ledger)
	v.SetDefault("http_timeout", d.HTTPTimeout)
	v.SetDefault("smoke_timeout", d.SmokeTimeout)
	v.SetDefault("licenses", d.Licenses)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("release.project_root", d.Release.ProjectRoot)
	v.SetDefault("release.formula", d.Release.Formula)
	v.SetDefault("release.tap_dir", d.Release.TapDir)
	v.SetDefault("release.manifest", d.Release.Manifest)
	v.SetDefault("release.repository", d.Release.Repository)
	v.SetDefault("release.asset_name", d.Release.AssetName)
	v.SetDefault("release.poll_attempts", d.Release.PollAttempts)
	v.SetDefault("release.poll_interval", d.Release.PollInterval)
	v.SetDefault("release.git", d.Release.Git)
	v.SetDefault("release.git_remote", d.Release.GitRemote)
	v.SetDefault("release.git_branch", d.Release.GitBranch)
	v.SetDefault("release.version_files.pyproject", d.Release.VersionFiles.PyProject)
	v.SetDefault("release.version_files.nuspec", d.Release.VersionFiles.Nuspec)
	v.SetDefault("release.version_files.debian_control", d.Release.VersionFiles.DebianControl)
	v.SetDefault("signing.keyring", d.Signing.Keyring)
	v.SetDefault("signing.passphrase", d.Signing.Passphrase)
}

// Load reads the config file at path (or tapkeeper.yml in the working
// directory when path is empty and the file exists), then applies
// TAPKEEPER_* environment overrides on top of the defaults.
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := validate.ValidateConfigYAML(data); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg := &GlobalConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges that the schema cannot express.
func (c *GlobalConfig) Validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("http_timeout must be positive"))
	}
	if c.SmokeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("smoke_timeout must be positive"))
	}
	if c.Release.PollAttempts < 1 {
		errs = append(errs, fmt.Errorf("release.poll_attempts must be at least 1"))
	}
	if len(c.Licenses) == 0 {
		errs = append(errs, fmt.Errorf("licenses must not be empty"))
	}
	return errors.Join(errs...)
}

// Global returns the active configuration.
func Global() *GlobalConfig {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return glConfig
}

// SetGlobal replaces the active configuration.
func SetGlobal(cfg *GlobalConfig) {
	globalMu.Lock()
	glConfig = cfg
	globalMu.Unlock()
}
