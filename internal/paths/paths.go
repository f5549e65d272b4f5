// Package paths resolves configuration and store directory locations for
// the strongbox CLI: flag overrides first, then environment variables,
// then platform defaults.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultBaseDirName is the CWD-relative store directory used when no
// override is active. The db/ tree is created beneath it.
const DefaultBaseDirName = ".strongbox"

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "STRONGBOX_CONFIG_DIR"
	EnvBaseDir   = "STRONGBOX_BASE_DIR"
)

// DefaultConfigDir returns the platform-specific default configuration
// directory.
//
// Linux:   $XDG_CONFIG_HOME/strongbox (fallback ~/.config/strongbox)
// macOS:   ~/Library/Application Support/strongbox
// Windows: %APPDATA%/strongbox
func DefaultConfigDir() (string, error) {
	switch runtime.GOOS {
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "strongbox"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "strongbox"), nil
	default:
		// macOS and Windows use os.UserConfigDir which returns
		// ~/Library/Application Support on macOS and %APPDATA% on Windows.
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, "strongbox"), nil
	}
}

// ResolveConfigDir returns the configuration directory following the
// precedence chain: flag > STRONGBOX_CONFIG_DIR env > DefaultConfigDir().
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	return DefaultConfigDir()
}

// ResolveBaseDir returns the store base directory following the
// precedence chain: flag > configYAMLValue > STRONGBOX_BASE_DIR env >
// $(CWD)/.strongbox.
func ResolveBaseDir(flag, configYAMLValue string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if configYAMLValue != "" {
		return filepath.Abs(configYAMLValue)
	}
	if env := os.Getenv(EnvBaseDir); env != "" {
		return filepath.Abs(env)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultBaseDirName), nil
}
