// Init command for the kvsync CLI.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize kvsync configuration and storage",
		Long:  "Create the configuration and data directories, then initialize the storage backend.",
		Args:  exactArgs(0),
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	configDir, err := resolveConfigDir()
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}

	store, cfg, err := openStore()
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	if err := store.Detach(); err != nil {
		return fmt.Errorf("finalize storage: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "kvsync initialized successfully")
	fmt.Fprintln(out, "  config: ", configDir)
	fmt.Fprintln(out, "  data:   ", cfg.DataDir)
	fmt.Fprintln(out, "  backend:", cfg.Backend)
	return nil
}
