package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/valyx/valog/pkg/checkpoint"
)

// statCmd represents the stat command
var statCmd = &cobra.Command{
	Use:   "stat",
	Short: "Print a snapshot of the log state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := engineFromContext(cmd)
		if err != nil {
			return err
		}

		out := map[string]any{"engine": engine.Stats()}
		if ckpt, ok := cmd.Context().Value(checkpointKey).(*checkpoint.Store); ok {
			ptr, err := ckpt.Pointer()
			if err != nil {
				return err
			}
			out["checkpoint"] = map[string]uint64{
				"log_id": ptr.LogID,
				"offset": ptr.Offset,
			}
		}

		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		cmd.Printf("%s\n", data)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statCmd)
}
