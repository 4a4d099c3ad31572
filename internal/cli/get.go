package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the value stored under a key",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]

			store, _, err := openStore()
			if err != nil {
				return err
			}
			defer store.Detach()

			v, err := store.Get(key)
			if err != nil {
				return fmt.Errorf("get %q: %w", key, err)
			}
			return printValue(cmd.OutOrStdout(), key, v)
		},
	}
}
