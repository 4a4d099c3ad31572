package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/kvsync/pkg/kvsync"
)

const modulePath = "github.com/mesh-intelligence/kvsync"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the kvsync version",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "kvsync v%s\nmodule: %s\n", kvsync.Version, modulePath)
			return nil
		},
	}
}
