package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/platform/migrations"
	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/storage/postgres"
)

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	var list, plain bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations to DATABASE_URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if list {
				names, err := migrations.UpFiles()
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}
				return nil
			}

			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}
			logger := newLogger(cfg)

			ctx, cancel := withTimeout(cmd.Context(), cfg.ShutdownTimeout*6)
			defer cancel()

			gw, err := postgres.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer gw.Close()

			if plain {
				err = migrations.Apply(ctx, gw.DB())
			} else {
				err = migrations.Up(gw.DB())
			}
			if err != nil {
				return err
			}
			logger.Info("migrations applied")
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "print the embedded migrations and exit")
	cmd.Flags().BoolVar(&plain, "plain", false, "execute the up scripts directly without a schema_migrations table")
	return cmd
}
