package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/valyx/valog/pkg/codec"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan [file-id]",
	Short: "List the records of one log file",
	Long: `List every valid record of one log file in offset order. Without an
argument the active file is scanned. Corrupted regions are skipped with a
logged warning.

Example:
  valog scan
  valog scan 1755000000000000000`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := engineFromContext(cmd)
		if err != nil {
			return err
		}

		fileID := engine.Stats().ActiveFileID
		if len(args) == 1 {
			if fileID, err = strconv.ParseUint(args[0], 10, 64); err != nil {
				return err
			}
		}

		return engine.Scan(fileID, func(pos codec.Position, head codec.Head) error {
			kind := "put"
			if head.IsTombstone() {
				kind = "tombstone"
			}
			cmd.Printf("%s\t%s\tkey=%d(%s)\tval=%d(%s)\n",
				pos, kind, head.Key.Len, head.Key.Mode, head.Val.Len, head.Val.Mode)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
