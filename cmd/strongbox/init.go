// Init command for the strongbox CLI.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init <store>",
	Short: "Initialize a store",
	Long: `Init creates the store directory layout under the base directory
and opens the named store for the first time, creating an empty
database file.

Example:
  strongbox init botdata`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		configDir, err := resolveConfigDir()
		if err != nil {
			return fmt.Errorf("resolve config dir: %w", err)
		}

		fmt.Println("Store initialized successfully")
		fmt.Println("  config:", configDir)
		fmt.Println("  store: ", store.Path())
		return nil
	},
}
