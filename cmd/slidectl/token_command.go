package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wsiviewer/backend/internal/infrastructure/auth"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var (
		subject  string
		username string
		scopes   []string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development access token signed with auth.secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.Secret == "" {
				return errors.New("auth.secret is not configured")
			}
			if cfg.App.Env == "production" {
				return errors.New("refusing to issue tokens for a production configuration")
			}

			token, expiresAt, err := auth.NewJWTService(cfg.Auth).GenerateToken(auth.GenerateTokenInput{
				Subject:  subject,
				Username: username,
				Scopes:   scopes,
				TTL:      ttl,
			})
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "developer", "Token subject")
	cmd.Flags().StringVar(&username, "username", "", "Display name of the subject")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "Granted scopes (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}
