package cmd

import (
	"errors"
	"fmt"

	"github.com/pilab-dev/shadow-oauth/client"
	"github.com/pilab-dev/shadow-oauth/domain"
	"github.com/spf13/cobra"
)

func newClientCmd(app *App) *cobra.Command {
	clientCmd := &cobra.Command{
		Use:     "client",
		Short:   "Manage OAuth clients",
		Aliases: []string{"clients"},
	}

	clientCmd.AddCommand(
		newClientCreateCmd(app),
		&cobra.Command{
			Use:   "list",
			Short: "List registered clients",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				rt, err := app.runtime(cmd.Context())
				if err != nil {
					return err
				}

				clients, err := rt.Engine.Clients.List(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list clients: %w", err)
				}

				views := make([]clientView, 0, len(clients))
				for _, c := range clients {
					views = append(views, newClientView(c, ""))
				}

				return app.print(cmd.OutOrStdout(), views)
			},
		},
		&cobra.Command{
			Use:   "get CLIENT_ID",
			Short: "Show a client",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := app.runtime(cmd.Context())
				if err != nil {
					return err
				}

				c, err := rt.Engine.Clients.Get(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("failed to get client: %w", err)
				}

				return app.print(cmd.OutOrStdout(), newClientView(c, ""))
			},
		},
		&cobra.Command{
			Use:   "revoke CLIENT_ID",
			Short: "Revoke a client. Its tokens stop verifying immediately",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := app.runtime(cmd.Context())
				if err != nil {
					return err
				}

				c, err := rt.Engine.Clients.Revoke(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("failed to revoke client: %w", err)
				}

				return app.print(cmd.OutOrStdout(), newClientView(c, ""))
			},
		},
		&cobra.Command{
			Use:   "rotate-secret CLIENT_ID",
			Short: "Issue a new secret for a confidential client",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := app.runtime(cmd.Context())
				if err != nil {
					return err
				}

				secret, err := rt.Engine.Clients.RotateSecret(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("failed to rotate secret: %w", err)
				}

				return app.print(cmd.OutOrStdout(), map[string]string{
					"client_id":     args[0],
					"client_secret": secret,
				})
			},
		},
		&cobra.Command{
			Use:   "delete CLIENT_ID",
			Short: "Delete a client",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := app.runtime(cmd.Context())
				if err != nil {
					return err
				}

				if err := rt.Engine.Clients.Delete(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("failed to delete client: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "client %s deleted\n", args[0])

				return nil
			},
		},
	)

	return clientCmd
}

func newClientCreateCmd(app *App) *cobra.Command {
	var (
		reg     client.Registration
		profile string
	)

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a client. The secret of web clients is printed once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if reg.Name == "" {
				return errors.New("name is required via --name flag")
			}
			reg.Profile = domain.ClientProfile(profile)

			rt, err := app.runtime(cmd.Context())
			if err != nil {
				return err
			}

			c, secret, err := rt.Engine.Clients.Register(cmd.Context(), reg)
			if err != nil {
				return fmt.Errorf("client registration failed: %w", err)
			}

			return app.print(cmd.OutOrStdout(), newClientView(c, secret))
		},
	}

	flags := createCmd.Flags()
	flags.StringVar(&reg.Name, "name", "", "display name")
	flags.StringVar(&profile, "profile", string(domain.ProfileWeb), "web, user-agent-based or native")
	flags.StringVar(&reg.Domain, "domain", "", "absolute URL of the client site")
	flags.StringVar(&reg.Logo, "logo", "", "absolute URL of the client logo")
	flags.StringVar(&reg.Description, "description", "", "description shown on the login dialog")
	flags.StringVar(&reg.Scope, "scope", "", "space separated scopes the client may request")
	flags.StringSliceVar(&reg.RedirectURIs, "redirect-uri", nil, "allowed redirect URI, repeatable")
	flags.BoolVar(&reg.Internal, "internal", false, "first party client")
	flags.BoolVar(&reg.Personal, "personal", false, "client used only to issue personal access tokens")

	return createCmd
}
