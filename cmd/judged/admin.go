package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	auth "github.com/mind-engage/judged/internal/auth/middleware"
	"github.com/mind-engage/judged/internal/judging"
	"github.com/mind-engage/judged/internal/sweep"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, h, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer h.Close()
			log.Info("schema up to date", "db", cfg.DBDriver)
			return nil
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Close expired review leases once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, h, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer h.Close()
			svc := judging.New(h, judgingConfig(cfg), judging.WithLogger(log))
			n, err := sweep.New(svc.Locks, cfg.SweepInterval, log, nil).Once(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "closed %d expired lock(s)\n", n)
			return nil
		},
	}
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage login accounts",
	}

	var username, role, judgeID string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a login account (password read from JUDGED_PASSWORD)",
		RunE: func(cmd *cobra.Command, args []string) error {
			password := os.Getenv("JUDGED_PASSWORD")
			if password == "" {
				return errors.New("JUDGED_PASSWORD must be set")
			}
			cfg, _, h, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer h.Close()
			if role == auth.RoleJudge {
				// Fail early rather than create a login for a judge that does not exist.
				svc := judging.New(h, judgingConfig(cfg))
				if _, err := svc.Judges.Get(cmd.Context(), judgeID); err != nil {
					return fmt.Errorf("judge %q: %w", judgeID, err)
				}
			}
			u, err := auth.NewUserStore(h, cfg.AdminUser, cfg.AdminPassHash).
				Create(cmd.Context(), username, password, role, judgeID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s user %s (%s)\n", u.Role, u.Username, u.ID)
			return nil
		},
	}
	add.Flags().StringVar(&username, "username", "", "Login name")
	add.Flags().StringVar(&role, "role", auth.RoleJudge, "Role (judge or admin)")
	add.Flags().StringVar(&judgeID, "judge-id", "", "Judge the account acts as (judge role)")
	_ = add.MarkFlagRequired("username")

	cmd.AddCommand(add)
	return cmd
}
