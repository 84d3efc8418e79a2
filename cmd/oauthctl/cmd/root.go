// Package cmd implements the oauthctl commands. They operate on the storage
// configured for the server, without going through the HTTP endpoints.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pilab-dev/shadow-oauth/config"
	"github.com/pilab-dev/shadow-oauth/internal/server"
	"github.com/pilab-dev/shadow-oauth/log"
	"github.com/spf13/cobra"
)

const AppName = "oauthctl"

// App carries the state shared by the commands of one invocation.
type App struct {
	configFile string
	envFiles   []string
	output     string
	verbose    bool

	// Runtime is built from configuration on first use unless set.
	Runtime *server.Runtime
	owned   bool

	out io.Writer
}

// NewRootCmd builds the command tree around app.
func NewRootCmd(app *App) *cobra.Command {
	if app.out == nil {
		app.out = os.Stdout
	}

	rootCmd := &cobra.Command{
		Use:           AppName,
		Short:         "oauthctl manages the clients, scopes and personal tokens of a shadow-oauth server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := "warn"
			if app.verbose {
				level = "debug"
			}
			log.Install(log.NewZerologAdapterWithWriter(cmd.ErrOrStderr(), log.ParseLevel(level), true))

			if app.output != outputYAML && app.output != outputJSON {
				return fmt.Errorf("unknown output format %q", app.output)
			}

			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if app.Runtime == nil || !app.owned {
				return nil
			}

			return app.Runtime.Close(context.WithoutCancel(cmd.Context()))
		},
	}
	rootCmd.SetOut(app.out)

	rootCmd.PersistentFlags().StringVar(&app.configFile, "config", "",
		"config file (default searches /etc/shadow-oauth, $HOME/.shadow-oauth and .)")
	rootCmd.PersistentFlags().StringSliceVar(&app.envFiles, "env-file", nil, "dotenv files to load (default .env)")
	rootCmd.PersistentFlags().StringVarP(&app.output, "output", "o", outputYAML, "output format: yaml or json")
	rootCmd.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "log debug output")

	rootCmd.AddCommand(newClientCmd(app), newScopeCmd(app), newTokenCmd(app), newCacheCmd(app))

	return rootCmd
}

// runtime returns the engine runtime, building it from configuration on the
// first call.
func (app *App) runtime(ctx context.Context) (*server.Runtime, error) {
	if app.Runtime != nil {
		return app.Runtime, nil
	}

	cfg, err := config.LoadConfig(app.configFile, app.envFiles...)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Backend == config.BackendMemory {
		return nil, errors.New("storage.backend is memory: changes would be lost when oauthctl exits, " +
			"point --config at the server's mongodb storage")
	}

	rt, err := server.Build(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	app.Runtime, app.owned = rt, true

	return rt, nil
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	rootCmd := NewRootCmd(&App{})
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
