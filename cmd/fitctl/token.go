package main

import (
	"alcyxob/plan-delivery/internal/api"
	"alcyxob/plan-delivery/internal/app"
	"alcyxob/plan-delivery/internal/domain"
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func (c *cli) tokenCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "token", Short: "Manage API bearer tokens"}
	cmd.AddCommand(c.tokenIssueCmd())
	return cmd
}

func (c *cli) tokenIssueCmd() *cobra.Command {
	var member, role, secret string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a member token",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := c.tenantID()
			if err != nil {
				return err
			}
			memberID, err := parseID("member", member)
			if err != nil {
				return err
			}
			if secret == "" {
				cfg, err := c.loadConfig()
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				secret = cfg.JWT.Secret
				if ttl == 0 {
					ttl = cfg.JWT.Expiration
				}
			}
			if ttl <= 0 {
				ttl = time.Hour
			}
			token, err := api.NewToken(secret, memberID, tenantID, domain.Role(role), ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&member, "member", "", "member id")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleCoach), "owner, coach or reviewer")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (defaults to jwt.secret from config)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to jwt.expiration)")
	_ = cmd.MarkFlagRequired("member")
	return cmd
}

func (c *cli) indexesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "indexes", Short: "Manage MongoDB indexes"}
	cmd.AddCommand(&cobra.Command{
		Use:   "ensure",
		Short: "Create every collection's indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ctx, cancel := context.WithTimeout(ctx, time.Minute)
				defer cancel()
				if err := a.EnsureIndexes(ctx); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "indexes ensured in", a.Config.Database.Name)
				return err
			})
		},
	})
	return cmd
}
