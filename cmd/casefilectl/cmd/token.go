package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jw6ventures/casefile/internal/auth"
)

func newTokenCommand(e *env) *cobra.Command {
	var ttl time.Duration
	c := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue an API bearer token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if ttl <= 0 {
				ttl = e.cfg.API.TokenTTL
			}
			token, err := auth.NewIssuer(e.cfg.Secrets.JWTSecret, ttl).Issue(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	c.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default APP_TOKEN_TTL)")
	return c
}
