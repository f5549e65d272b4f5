// Restore command for the strongbox CLI.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <store>",
	Short: "Restore a store from its most recent backup",
	Long: `Restore replaces the named store's database file with the most
recent backup. The store is drained first so no transaction observes
the swap.

Example:
  strongbox restore botdata`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.RestoreLatest(); err != nil {
			return fmt.Errorf("restore: %w", err)
		}

		fmt.Println("Store restored from latest backup")
		return nil
	},
}
