package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
)

var dropForce bool

// dropCmd deletes the metrics database file.
var dropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Delete the metrics database",
	Long:  "Permanently delete the SQLite metrics database, including its WAL files. All stored games and stats will be lost. Re-run ingest afterwards to rebuild.",
	Args:  cobra.NoArgs,
	RunE:  runDrop,
}

func init() {
	dropCmd.Flags().BoolVarP(&dropForce, "force", "f", false, "skip confirmation prompt")
}

func runDrop(cmd *cobra.Command, args []string) error {
	path := cfg.DBPath
	if !dropForce {
		fmt.Fprintf(os.Stderr, "This will permanently delete: %s\n", path)
		fmt.Fprintf(os.Stderr, "Re-run with --force to confirm.\n")
		return nil
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintln(os.Stdout, "Database does not exist, nothing to drop.")
			return nil
		}
		return fmt.Errorf("remove database: %w", err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", path+suffix, err)
		}
	}
	fmt.Fprintf(os.Stdout, "Deleted: %s\n", path)
	return nil
}
