package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valyx/valog/pkg/codec"
)

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get <log-id:offset>",
	Short: "Read the value stored at a position",
	Long: `Read the value stored at a position, as printed by put or scan.

Example:
  valog get 1755000000000000000:12`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pos, err := parsePosition(args[0])
		if err != nil {
			return err
		}

		engine, err := engineFromContext(cmd)
		if err != nil {
			return err
		}

		value, err := engine.Get(pos)
		if err != nil {
			return fmt.Errorf("error reading %s: %w", pos, err)
		}
		cmd.Printf("%s\n", string(value))
		return nil
	},
}

func parsePosition(arg string) (codec.Position, error) {
	logPart, offPart, ok := strings.Cut(arg, ":")
	if !ok {
		return codec.Position{}, fmt.Errorf("position must be <log-id>:<offset>, got %q", arg)
	}
	logID, err := strconv.ParseUint(logPart, 10, 64)
	if err != nil {
		return codec.Position{}, fmt.Errorf("bad log id %q: %w", logPart, err)
	}
	offset, err := strconv.ParseUint(offPart, 10, 64)
	if err != nil {
		return codec.Position{}, fmt.Errorf("bad offset %q: %w", offPart, err)
	}
	return codec.Position{LogID: logID, Offset: offset}, nil
}

func init() {
	rootCmd.AddCommand(getCmd)
}
