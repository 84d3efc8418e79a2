package cmd

import (
	"errors"
	"fmt"

	"github.com/pilab-dev/shadow-oauth/config"
	"github.com/spf13/cobra"
)

func newCacheCmd(app *App) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the shared access token cache",
	}

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "flush",
		Short: "Drop every cached access token, forcing lookups back to storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := app.runtime(cmd.Context())
			if err != nil {
				return err
			}

			if rt.Config == nil || rt.Config.Cache.Backend != config.BackendRedis || rt.TokenCache == nil {
				return errors.New("cache flush needs cache.backend redis; a memory cache lives inside each server process")
			}

			if err := rt.TokenCache.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("failed to flush token cache: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "token cache flushed")

			return nil
		},
	})

	return cacheCmd
}
