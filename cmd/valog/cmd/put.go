package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// putCmd represents the put command
var putCmd = &cobra.Command{
	Use:   "put <key> <value>",
	Short: "Append a key/value record",
	Long: `Append a key/value record to the log and print the position the
owning index should store.

Example:
  valog put mykey myvalue`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := engineFromContext(cmd)
		if err != nil {
			return err
		}

		pos, err := engine.Put([]byte(args[0]), []byte(args[1]))
		if err != nil {
			return fmt.Errorf("error appending record: %w", err)
		}
		if err := engine.Sync(); err != nil {
			return err
		}

		cmd.Printf("%s\n", pos)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(putCmd)
}
