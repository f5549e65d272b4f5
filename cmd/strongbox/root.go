// Root command for the strongbox CLI.
package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/strongbox-db/strongbox/internal/paths"
)

// Version is the CLI version string printed by the version command.
const Version = "v0.1.0"

// Exit codes: 0 success, 1 user error, 2 system error.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// Global flag values.
var (
	flagConfigDir string
	flagBaseDir   string
	flagJSON      bool
)

// configBaseDir holds the base_dir value loaded from config.yaml.
// Set by PersistentPreRunE so all subcommands can use it.
var configBaseDir string

// loadedConfig is the parsed config.yaml, set by PersistentPreRunE.
var loadedConfig *viper.Viper

var rootCmd = &cobra.Command{
	Use:     "strongbox",
	Short:   "Strongbox manages local SQLite stores",
	Version: Version,
	Long: `Strongbox is a maintenance tool for local SQLite stores. It
initializes store directories, takes and restores backups, verifies
database integrity, and reports store status.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configDir, err := resolveConfigDir()
		if err != nil {
			return err
		}

		cfg, err := loadConfig(configDir)
		if err != nil {
			return err
		}

		loadedConfig = cfg
		configBaseDir = cfg.GetString(cfgKeyBaseDir)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "", "configuration directory (default: platform config dir)")
	rootCmd.PersistentFlags().StringVar(&flagBaseDir, "base-dir", "", "store base directory (default: $(CWD)/.strongbox)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output as JSON")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(statusCmd)
}

// resolveBaseDir returns the store base directory following the
// precedence chain: --base-dir flag > config.yaml base_dir >
// STRONGBOX_BASE_DIR env > default $(CWD)/.strongbox.
func resolveBaseDir() (string, error) {
	return paths.ResolveBaseDir(flagBaseDir, configBaseDir)
}

// resolveConfigDir returns the configuration directory following the
// precedence chain: --config-dir flag > STRONGBOX_CONFIG_DIR env >
// DefaultConfigDir().
func resolveConfigDir() (string, error) {
	return paths.ResolveConfigDir(flagConfigDir)
}
