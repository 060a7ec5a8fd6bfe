package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"newsroom/internal/adapters/mtproto"
	"newsroom/internal/adapters/repo"
	"newsroom/internal/infra/config"
	"newsroom/internal/infra/db"
)

func importSessionCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "import-session [file]",
		Short: "Importe une session MTProto dans la base",
		Long: `Importe une session MTProto (JSON gotd, chaîne Telethon ou export de la table sessions)
et l'enregistre sous le nom donné. Les formats étrangers sont convertis en JSON gotd.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("lecture de la session: %w", err)
			}
			imported, err := mtproto.ConvertSession(raw)
			if err != nil {
				return fmt.Errorf("format de session non pris en charge: %w", err)
			}

			cfg := config.Load()
			if name == "" {
				name = cfg.Telegram.SessionName
			}
			pool, err := db.Connect(cfg.PGDSN)
			if err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			defer pool.Close()

			if err := repo.NewPostgres(pool).StoreMTProtoSession(cmd.Context(), name, imported.Data); err != nil {
				return fmt.Errorf("enregistrement de la session: %w", err)
			}
			out := cmd.OutOrStdout()
			if imported.Converted {
				fmt.Fprintln(out, "Session convertie au format JSON gotd")
			}
			fmt.Fprintf(out, "Session MTProto %q enregistrée (%d octets)\n", name, len(imported.Data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "nom de la session (MTPROTO_SESSION_NAME par défaut)")
	return cmd
}
