package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/pilab-dev/shadow-oauth/services"
	"github.com/spf13/cobra"
)

// clientSecretEnv supplies the client secret when --client-secret is not set.
const clientSecretEnv = "SOAUTH_CLIENT_SECRET"

func newTokenCmd(app *App) *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Issue tokens",
	}

	var req services.PersonalTokenRequest
	personalCmd := &cobra.Command{
		Use:   "personal",
		Short: "Issue a personal access token through a personal client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.ClientID == "" || req.Subject == "" {
				return errors.New("--client-id and --subject are required")
			}
			if req.ClientSecret == "" {
				req.ClientSecret = os.Getenv(clientSecretEnv)
			}
			req.UserAgent = AppName

			rt, err := app.runtime(cmd.Context())
			if err != nil {
				return err
			}

			issued, err := rt.Engine.Personal.Issue(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("failed to issue personal token: %w", err)
			}

			return app.print(cmd.OutOrStdout(), tokenView{
				AccessToken: issued.AccessToken,
				TokenType:   issued.TokenType,
				Scope:       issued.Scope,
				ExpiresAt:   issued.Access.ExpiresAt,
			})
		},
	}

	flags := personalCmd.Flags()
	flags.StringVar(&req.ClientID, "client-id", "", "personal client id")
	flags.StringVar(&req.ClientSecret, "client-secret", "", "personal client secret (or "+clientSecretEnv+")")
	flags.StringVar(&req.Subject, "subject", "", "end-user the token is issued for")
	flags.StringVar(&req.Scope, "scope", "", "space separated scopes, defaults to the client scopes")

	tokenCmd.AddCommand(personalCmd)

	return tokenCmd
}
