package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/imrishuroy/go-checkout-reconciler/internal/auth"
	"github.com/imrishuroy/go-checkout-reconciler/internal/config"
)

func tokenCmd() *cobra.Command {
	var (
		ttl  time.Duration
		role string
	)
	cmd := &cobra.Command{
		Use:   "token [user-id]",
		Short: "Issue a bearer token for a user, signed with JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is not set")
			}
			token, err := auth.NewVerifier(cfg.JWTSecret).IssueRole(args[0], role, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	cmd.Flags().StringVar(&role, "role", "", "role claim, e.g. admin for operator routes")
	return cmd
}
