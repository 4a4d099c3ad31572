// Export and import commands for the kvsync CLI.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/kvsync/pkg/types"
)

// porter is implemented by backends that can export and import JSONL.
type porter interface {
	Export(path string) (int, error)
	Import(path string) (int, error)
}

func asPorter(store types.Backend, cfg types.Config) (porter, error) {
	p, ok := store.(porter)
	if !ok {
		return nil, fmt.Errorf("%w: backend %q does not support export and import", errUsage, cfg.Backend)
	}
	return p, nil
}

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write every entry to a JSONL file",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer store.Detach()

			p, err := asPorter(store, cfg)
			if err != nil {
				return err
			}
			n, err := p.Export(args[0])
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d entries to %s\n", n, args[0])
			return nil
		},
	}
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Set every entry of a JSONL file",
		Long: `Set every entry of a JSONL export. Processes attached to the same data
directory see each imported key as an external change. Malformed lines are
skipped.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer store.Detach()

			p, err := asPorter(store, cfg)
			if err != nil {
				return err
			}
			n, err := p.Import(args[0])
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d entries from %s\n", n, args[0])
			return nil
		},
	}
}
