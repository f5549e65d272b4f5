// Config loading for the strongbox CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	// Config keys read from config.yaml.
	cfgKeyBaseDir         = "base_dir"
	cfgKeyPoolSize        = "pool_size"
	cfgKeyBackupRetention = "backup_retention"
	cfgKeyBusyTimeoutMS   = "busy_timeout_ms"
)

// defaultConfigYAML is the content written to config.yaml on first run.
const defaultConfigYAML = `# Strongbox CLI configuration

# Store base directory (optional; overridable by --base-dir flag)
# base_dir:

# Connection pool size
pool_size: 5

# How many backups are kept after pruning
backup_retention: 5

# SQLite busy timeout in milliseconds
busy_timeout_ms: 5000
`

// loadConfig reads config.yaml from the resolved config directory using Viper.
// It creates the config directory and a default config.yaml on first run.
// A missing config.yaml is not an error.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := ensureConfigDir(configDir); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}

	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyPoolSize, 5)
	v.SetDefault(cfgKeyBackupRetention, 5)
	v.SetDefault(cfgKeyBusyTimeoutMS, 5000)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	return v, nil
}

// ensureConfigDir creates the config directory if it does not exist.
func ensureConfigDir(configDir string) error {
	return os.MkdirAll(configDir, 0o755)
}

// ensureDefaultConfigFile creates a default config.yaml if the file does
// not exist in the config directory.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}

	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}
