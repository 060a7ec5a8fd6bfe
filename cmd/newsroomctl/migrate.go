package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"newsroom/internal/infra/config"
	"newsroom/internal/infra/db"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Applique le schéma embarqué à la base",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			pool, err := db.Connect(cfg.PGDSN)
			if err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			defer pool.Close()
			if err := db.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schéma appliqué")
			return nil
		},
	}
}
