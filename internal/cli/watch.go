package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/kvsync/pkg/cell"
	"github.com/mesh-intelligence/kvsync/pkg/runloop"
)

func newWatchCmd() *cobra.Command {
	var defaultRaw string

	cmd := &cobra.Command{
		Use:   "watch <key>",
		Short: "Print a key's value and every change to it until interrupted",
		Long: `Bind a synced value cell to a key, print its current value, then print
the value again each time another process changes it. A removed key prints
the --default value.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]

			var def any
			if defaultRaw != "" {
				v, err := parseValue(defaultRaw, typeAuto)
				if err != nil {
					return err
				}
				def = v
			}

			store, _, err := openStore()
			if err != nil {
				return err
			}
			defer store.Detach()

			loop := runloop.New(runloop.WithLogger(logger))
			c, err := cell.New(store, key, def, cell.WithDispatcher(loop), cell.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("watch %q: %w", key, err)
			}
			defer c.Close()

			out := cmd.OutOrStdout()
			if err := printValue(out, key, c.Get()); err != nil {
				return err
			}
			c.Observe(func(v any) {
				if err := printValue(out, key, v); err != nil {
					logger.Warn("print failed", "key", key, "error", err)
				}
			})

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			logger.Debug("watching", "key", key)
			if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&defaultRaw, "default", "", "value printed while the key is absent")
	return cmd
}
