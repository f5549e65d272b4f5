// Package main provides the strongbox CLI, a maintenance surface for
// local SQLite stores: initialization, backup, restore, integrity
// checking, and status reporting.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/strongbox-db/strongbox/pkg/types"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "strongbox:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to the CLI exit code: user errors (bad
// arguments, bad config, unknown store) exit 1, system errors
// (I/O failure, corruption, unavailable storage) exit 2.
func exitCode(err error) int {
	switch {
	case errors.Is(err, types.ErrStorageUnavailable),
		errors.Is(err, types.ErrStorageCorrupt),
		errors.Is(err, types.ErrMigrationFailed),
		errors.Is(err, types.ErrNoBackupAvailable):
		return exitSysError
	default:
		return exitUserError
	}
}
