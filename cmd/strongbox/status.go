// Status command for the strongbox CLI.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// statusResult is the JSON shape emitted by status --json.
type statusResult struct {
	Store     string   `json:"store"`
	Path      string   `json:"path"`
	State     string   `json:"state"`
	SizeBytes int64    `json:"size_bytes"`
	Backups   []string `json:"backups"`
}

var statusCmd = &cobra.Command{
	Use:   "status <store>",
	Short: "Report store state, file size, and backups",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		backups, err := store.ListBackups()
		if err != nil {
			return fmt.Errorf("list backups: %w", err)
		}

		var size int64
		if info, err := os.Stat(store.Path()); err == nil {
			size = info.Size()
		}

		if flagJSON {
			return json.NewEncoder(os.Stdout).Encode(statusResult{
				Store:     args[0],
				Path:      store.Path(),
				State:     store.State().String(),
				SizeBytes: size,
				Backups:   backups,
			})
		}

		fmt.Println("Store:  ", args[0])
		fmt.Println("Path:   ", store.Path())
		fmt.Println("State:  ", store.State())
		fmt.Println("Size:   ", size, "bytes")
		fmt.Println("Backups:", len(backups))
		for _, b := range backups {
			fmt.Println("  ", b)
		}
		return nil
	},
}
