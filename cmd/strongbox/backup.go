// Backup command for the strongbox CLI.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup <store>",
	Short: "Take a consistent backup of a store",
	Long: `Backup snapshots the named store into its backups directory while
the database stays available. Old backups beyond the retention limit
are pruned.

Example:
  strongbox backup botdata`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		name, err := store.CreateBackup(cmd.Context())
		if err != nil {
			return fmt.Errorf("backup: %w", err)
		}

		fmt.Println("Backup created:", name)
		return nil
	},
}
