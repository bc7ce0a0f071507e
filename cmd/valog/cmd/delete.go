package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Append a tombstone for a key",
	Long: `Append a tombstone record for a key. The owning index interprets
the tombstone; the log records it so recovery and GC see the removal.

Example:
  valog delete mykey`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := engineFromContext(cmd)
		if err != nil {
			return err
		}

		pos, err := engine.Remove([]byte(args[0]))
		if err != nil {
			return fmt.Errorf("error appending tombstone: %w", err)
		}
		if err := engine.Sync(); err != nil {
			return err
		}

		cmd.Printf("%s\n", pos)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
