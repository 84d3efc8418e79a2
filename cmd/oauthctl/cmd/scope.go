package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newScopeCmd(app *App) *cobra.Command {
	scopeCmd := &cobra.Command{
		Use:     "scope",
		Short:   "Manage the scope registry",
		Aliases: []string{"scopes"},
	}

	var description, parent string
	createCmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Register a scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := app.runtime(cmd.Context())
			if err != nil {
				return err
			}

			s, err := rt.Engine.Scopes.Create(cmd.Context(), args[0], description, parent)
			if err != nil {
				return err
			}

			return app.print(cmd.OutOrStdout(), newScopeView(s))
		},
	}
	createCmd.Flags().StringVar(&description, "description", "", "what the scope grants")
	createCmd.Flags().StringVar(&parent, "parent", "", "parent scope, which must exist")

	scopeCmd.AddCommand(
		createCmd,
		&cobra.Command{
			Use:   "list",
			Short: "List registered scopes",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				rt, err := app.runtime(cmd.Context())
				if err != nil {
					return err
				}

				scopes, err := rt.Engine.Scopes.List(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list scopes: %w", err)
				}

				views := make([]scopeView, 0, len(scopes))
				for _, s := range scopes {
					views = append(views, newScopeView(s))
				}

				return app.print(cmd.OutOrStdout(), views)
			},
		},
		&cobra.Command{
			Use:   "delete NAME",
			Short: "Remove a scope from the registry",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				rt, err := app.runtime(cmd.Context())
				if err != nil {
					return err
				}

				if err := rt.Engine.Scopes.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "scope %s deleted\n", args[0])

				return nil
			},
		},
	)

	return scopeCmd
}
