package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"newsroom/internal/app"
	"newsroom/internal/domain"
	"newsroom/internal/infra/config"
	"newsroom/internal/infra/log"
)

func runCmd() *cobra.Command {
	var async bool
	cmd := &cobra.Command{
		Use:   "run [fetch|summary|send|audio] [persona-id]",
		Short: "Exécute une action manuelle pour un journaliste",
		Long: `Exécute une action manuelle et affiche son résultat en JSON.

Avec --async l'action est confiée au worker du moteur via la file d'attente,
ce qui est nécessaire pour un envoi Telegram: seuls les bots du moteur sont actifs.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := domain.ParseAction(args[0])
			if err != nil {
				return err
			}
			personaID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("identifiant de journaliste invalide %q", args[1])
			}

			cfg := config.Load()
			a, err := app.New(cmd.Context(), cfg, log.NewLogger(cfg.AppEnv))
			if err != nil {
				return err
			}
			defer a.Close()

			var out any
			if async {
				job, err := a.Personas.Submit(cmd.Context(), personaID, action, "newsroomctl")
				if err != nil {
					return err
				}
				out = job
			} else {
				out = a.Personas.RunManual(cmd.Context(), personaID, action)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().BoolVar(&async, "async", false, "mettre l'action en file pour le worker du moteur")
	return cmd
}

func tickCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Évalue un seul tick du planificateur à un instant donné",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			instant := time.Now().UTC()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at attend un instant RFC3339: %w", err)
				}
				instant = parsed.UTC()
			}

			cfg := config.Load()
			a, err := app.New(cmd.Context(), cfg, log.NewLogger(cfg.AppEnv))
			if err != nil {
				return err
			}
			defer a.Close()

			a.Engine.Tick(cmd.Context(), instant)
			a.Engine.Wait()
			fmt.Fprintf(cmd.OutOrStdout(), "Tick évalué à %s\n", instant.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "instant RFC3339 (maintenant par défaut)")
	return cmd
}
