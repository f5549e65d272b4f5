// Shared helpers for strongbox CLI commands.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/strongbox-db/strongbox/internal/sqlite"
	"github.com/strongbox-db/strongbox/pkg/types"
)

// newLogger builds the CLI logger. Diagnostics go to stderr so command
// output on stdout stays machine-readable; --json switches the handler
// to JSON lines.
func newLogger() *slog.Logger {
	if flagJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

// storeConfig builds a store configuration for the named store from the
// resolved base directory and config.yaml values.
func storeConfig(name string) (types.Config, error) {
	baseDir, err := resolveBaseDir()
	if err != nil {
		return types.Config{}, fmt.Errorf("resolve base dir: %w", err)
	}

	cfg := types.Config{
		Name:    name,
		BaseDir: baseDir,
	}
	if loadedConfig != nil {
		cfg.PoolSize = loadedConfig.GetInt(cfgKeyPoolSize)
		cfg.BackupRetention = loadedConfig.GetInt(cfgKeyBackupRetention)
		cfg.BusyTimeoutMS = loadedConfig.GetInt(cfgKeyBusyTimeoutMS)
	}
	return cfg, nil
}

// openStore opens the named store with no schema set. Maintenance
// commands operate on whatever tables the store file already carries.
// The caller must defer store.Close().
func openStore(name string) (*sqlite.Store, error) {
	cfg, err := storeConfig(name)
	if err != nil {
		return nil, err
	}

	store, err := sqlite.Open(cfg, nil, newLogger())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}
