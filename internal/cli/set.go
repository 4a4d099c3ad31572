package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSetCmd() *cobra.Command {
	var valueType string

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a value under a key",
		Long: `Store a value under a key. Other processes attached to the same data
directory see the write as an external change.

With --type auto (the default) a value that parses as JSON is stored as
JSON, anything else as a string.

Example:
  kvsync set theme dark
  kvsync set volume 8
  kvsync set window '{"width": 800, "height": 600}'
  kvsync set build 0042 --type string`,
		Args: exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]

			v, err := parseValue(args[1], valueType)
			if err != nil {
				return err
			}

			store, _, err := openStore()
			if err != nil {
				return err
			}
			defer store.Detach()

			if err := store.Set(key, v); err != nil {
				return fmt.Errorf("set %q: %w", key, err)
			}
			return printValue(cmd.OutOrStdout(), key, v)
		},
	}
	cmd.Flags().StringVarP(&valueType, "type", "t", typeAuto, "value type: auto, string, bool, int, float, json")
	return cmd
}
