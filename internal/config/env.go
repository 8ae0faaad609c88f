// Package config provides centralized configuration management.
// Consolidates environment lookups and standard paths for sysup.
package config

import (
	"os"
	"path/filepath"
	"sync"
)

// SysupEnv holds all sysup environment variables.
type SysupEnv struct {
	// SessionID is the current session identifier (SYSUP_SESSION_ID)
	SessionID string

	// NonInteractive forces non-interactive mode (SYSUP_NONINTERACTIVE)
	NonInteractive bool

	// NoColor disables colored output (NO_COLOR)
	NoColor bool

	// ConfigFile overrides the config file path (SYSUP_CONFIG)
	ConfigFile string

	// Verbose enables diagnostic logging (SYSUP_VERBOSE)
	Verbose bool
}

var (
	env     *SysupEnv
	envOnce sync.Once
)

// Env returns the singleton environment configuration.
// Thread-safe, loads once on first call.
func Env() *SysupEnv {
	envOnce.Do(func() {
		env = &SysupEnv{
			SessionID:      os.Getenv("SYSUP_SESSION_ID"),
			NonInteractive: os.Getenv("SYSUP_NONINTERACTIVE") == "1",
			NoColor:        os.Getenv("NO_COLOR") != "",
			ConfigFile:     os.Getenv("SYSUP_CONFIG"),
			Verbose:        os.Getenv("SYSUP_VERBOSE") == "1",
		}
	})
	return env
}

// ResetEnv resets the cached environment (for testing).
func ResetEnv() {
	envOnce = sync.Once{}
	env = nil
}

// Paths holds standard sysup directory paths.
type Paths struct {
	// Home is the sysup home directory (~/.sysup)
	Home string

	// Backups is the snapshot directory (~/.sysup/backups)
	Backups string

	// Data is the data directory (~/.sysup/data)
	Data string

	// Logs is the audit log directory (~/.sysup/logs)
	Logs string

	// ConfigFile is the config file path (~/.sysup/config.yaml)
	ConfigFile string
}

var (
	paths     *Paths
	pathsOnce sync.Once
)

// GetPaths returns the singleton paths configuration.
func GetPaths() *Paths {
	pathsOnce.Do(func() {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		sysupHome := filepath.Join(home, ".sysup")

		paths = &Paths{
			Home:       sysupHome,
			Backups:    filepath.Join(sysupHome, "backups"),
			Data:       filepath.Join(sysupHome, "data"),
			Logs:       filepath.Join(sysupHome, "logs"),
			ConfigFile: filepath.Join(sysupHome, "config.yaml"),
		}
	})
	return paths
}

// Path returns a path under the sysup home directory.
func Path(parts ...string) string {
	p := GetPaths()
	allParts := append([]string{p.Home}, parts...)
	return filepath.Join(allParts...)
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
