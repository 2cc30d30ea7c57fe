package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/postgres"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate up|down",
		Short:     "Apply or roll back the Postgres schema",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(postgres.Up), string(postgres.Down)},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if cfg.Postgres.URL == "" {
				return errors.New("postgres.url is required to run migrations")
			}
			d := postgres.Direction(args[0])
			if err := postgres.Migrate(cfg.Postgres.URL, cfg.Postgres.MigrationsPath, d); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "migrations %s: done\n", d)
			return err
		},
	}
}
