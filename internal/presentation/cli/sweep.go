package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newSweepCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Discard orders whose payment timed out, once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx := cmd.Context()
			app, err := Build(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := app.Close(context.WithoutCancel(ctx)); err == nil {
					err = closeErr
				}
			}()
			app.StartWorkers(ctx)

			swept, err := app.Orders().SweepStale(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "swept %d stale orders\n", swept)
			return err
		},
	}
}
