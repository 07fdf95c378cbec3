package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// ConfigHelpers provides convenient access to a configuration.
type ConfigHelpers struct {
	config *GlobalConfig
}

// NewConfigHelpers creates a new config helpers instance
func NewConfigHelpers(config *GlobalConfig) *ConfigHelpers {
	return &ConfigHelpers{config: config}
}

// Workers returns the number of concurrent download workers
func (c *ConfigHelpers) Workers() int {
	return c.config.Workers
}

// CacheDir returns the absolute path to the archive cache directory
func (c *ConfigHelpers) CacheDir() (string, error) {
	return filepath.Abs(c.config.CacheDir)
}

// WorkDir returns the absolute path to the work directory
func (c *ConfigHelpers) WorkDir() (string, error) {
	return filepath.Abs(c.config.WorkDir)
}

// LedgerPath returns the absolute path of the release ledger database
func (c *ConfigHelpers) LedgerPath() (string, error) {
	return filepath.Abs(c.config.Ledger)
}

// LogLevel returns the configured log level
func (c *ConfigHelpers) LogLevel() string {
	return c.config.Logging.Level
}

// IsDebugMode returns true if debug logging is enabled
func (c *ConfigHelpers) IsDebugMode() bool {
	return c.config.Logging.Level == "debug"
}

// ProjectPath resolves a path relative to the release project root.
func (c *ConfigHelpers) ProjectPath(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(c.config.Release.ProjectRoot, rel)
}

// CreateCacheDir ensures the cache directory exists
func (c *ConfigHelpers) CreateCacheDir() (string, error) {
	cacheDir, err := c.CacheDir()
	if err != nil {
		return "", fmt.Errorf("resolving cache directory: %w", err)
	}
	return cacheDir, createDirIfNotExists(cacheDir)
}

// CreateWorkDir ensures the work directory exists
func (c *ConfigHelpers) CreateWorkDir() (string, error) {
	workDir, err := c.WorkDir()
	if err != nil {
		return "", fmt.Errorf("resolving work directory: %w", err)
	}
	return workDir, createDirIfNotExists(workDir)
}

func createDirIfNotExists(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}
