package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a key",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]

			store, _, err := openStore()
			if err != nil {
				return err
			}
			defer store.Detach()

			if err := store.Remove(key); err != nil {
				return fmt.Errorf("delete %q: %w", key, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", key)
			return nil
		},
	}
}
