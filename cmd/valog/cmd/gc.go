package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/valyx/valog/pkg/vlog"
)

// gcCmd represents the gc command
var gcCmd = &cobra.Command{
	Use:   "gc [file-id...]",
	Short: "Garbage-collect sealed log files",
	Long: `Garbage-collect sealed log files by re-appending live records and
deleting the sources. Without an external index, every non-tombstone record
counts as live unless its key is listed in --dead-keys; position mappings
for the moved records are printed as JSON lines so the owning index can be
updated.

With --auto the engine picks targets itself, collecting the least recently
collected files among the oldest quartile until a round reclaims too little.

Examples:
  valog gc --auto --dead-keys dead.txt
  valog gc 1755000000000000000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		auto, _ := cmd.Flags().GetBool("auto")
		if auto == (len(args) > 0) {
			return fmt.Errorf("pass either --auto or explicit file ids")
		}

		engine, err := engineFromContext(cmd)
		if err != nil {
			return err
		}

		live, err := livenessFromFlags(cmd)
		if err != nil {
			return err
		}
		update := vlog.IndexUpdateFunc(func(_ context.Context, mappings []vlog.PositionMapping) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, m := range mappings {
				entry := map[string]string{
					"key": string(m.Key),
					"old": m.Old.String(),
					"new": m.New.String(),
				}
				if err := enc.Encode(entry); err != nil {
					return err
				}
			}
			return nil
		})

		var results []*vlog.GCResult
		if auto {
			if results, err = engine.GCAuto(cmd.Context(), live, update); err != nil {
				return err
			}
		} else {
			fileIDs := make([]uint64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseUint(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("bad file id %q: %w", arg, err)
				}
				fileIDs = append(fileIDs, id)
			}
			res, err := engine.GCMerge(cmd.Context(), fileIDs, live, update)
			if err != nil {
				return err
			}
			results = append(results, res)
		}

		for _, res := range results {
			cmd.Printf("round %s: %d files, %d live, %d dead, %d bytes reclaimed\n",
				res.Round, len(res.Files), res.LiveRecords, res.DeadRecords, res.ReclaimedBytes)
		}
		return nil
	},
}

// livenessFromFlags treats every key as live except those listed in the
// --dead-keys file, one key per line.
func livenessFromFlags(cmd *cobra.Command) (vlog.Liveness, error) {
	path, _ := cmd.Flags().GetString("dead-keys")
	dead := make(map[string]bool)
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if line := scanner.Text(); line != "" {
				dead[line] = true
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}
	return vlog.LivenessFunc(func(_ context.Context, key []byte) (bool, error) {
		return !dead[string(key)], nil
	}), nil
}

func init() {
	gcCmd.Flags().Bool("auto", false, "Let the engine pick GC targets")
	gcCmd.Flags().String("dead-keys", "", "File listing keys to treat as dead, one per line")
	rootCmd.AddCommand(gcCmd)
}
