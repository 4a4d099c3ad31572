package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored keys",
		Long:  "List stored keys in ascending order. With --json, print every key with its value.",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore()
			if err != nil {
				return err
			}
			defer store.Detach()

			out := cmd.OutOrStdout()
			if flags.jsonMode {
				snap, err := store.Snapshot()
				if err != nil {
					return fmt.Errorf("list: %w", err)
				}
				return writeJSON(out, snap)
			}

			keys, err := store.Keys()
			if err != nil {
				return fmt.Errorf("list: %w", err)
			}
			for _, key := range keys {
				fmt.Fprintln(out, key)
			}
			return nil
		},
	}
}
