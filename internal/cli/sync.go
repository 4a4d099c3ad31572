package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Synchronize with the shared store and report its size",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore()
			if err != nil {
				return err
			}
			defer store.Detach()

			if err := store.Synchronize(); err != nil {
				return fmt.Errorf("sync: %w", err)
			}
			keys, err := store.Keys()
			if err != nil {
				return fmt.Errorf("sync: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Synchronized %d keys\n", len(keys))
			return nil
		},
	}
}
