package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	oauthecho "github.com/pilab-dev/shadow-oauth/api/echo"
	"github.com/pilab-dev/shadow-oauth/config"
	"github.com/pilab-dev/shadow-oauth/internal/server"
	"github.com/pilab-dev/shadow-oauth/log"
	"github.com/pilab-dev/shadow-oauth/tracing"
)

var (
	configFile string
	envFiles   []string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "shadow-oauth",
		Short:        "OAuth 2.0 authorization server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}
	rootCmd.Flags().StringVar(&configFile, "config", "", "config file (default searches /etc/shadow-oauth, $HOME/.shadow-oauth and .)")
	rootCmd.Flags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load before reading the environment (default .env)")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadConfig(configFile, envFiles...)
	if err != nil {
		zerolog.New(os.Stderr).With().Timestamp().Logger().
			Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	appLogger := log.NewZerologAdapter(log.ParseLevel(cfg.Log.Level), cfg.Log.Pretty)
	log.Install(appLogger)

	appLogger.Info(ctx, "Starting shadow-oauth server", log.Fields{
		"address":   cfg.HTTP.Address,
		"issuer":    cfg.OAuth.Issuer,
		"storage":   cfg.Storage.Backend,
		"cache":     cfg.Cache.Backend,
		"log_level": cfg.Log.Level,
	})

	var tp *sdktrace.TracerProvider
	if cfg.Tracing.Enabled {
		tp, err = tracing.InitTracerProvider(ctx, cfg.Tracing.ServiceName, os.Stdout)
		if err != nil {
			appLogger.Error(ctx, "Failed to initialize TracerProvider", err)
			return err
		}
		appLogger.Info(ctx, "TracerProvider initialized.")
	}

	rt, err := server.Build(ctx, cfg)
	if err != nil {
		appLogger.Error(ctx, "Failed to build the authorization server", err)
		return err
	}

	api := rt.Engine.HTTP(oauthecho.Config{
		Realm:         cfg.HTTP.Realm,
		FlowTTL:       cfg.Cache.FlowTTL,
		SecureCookies: strings.HasPrefix(cfg.OAuth.Issuer, "https://"),
	}, rt.Registry)

	httpServer := server.NewHTTPServer(cfg.HTTP, server.NewEcho(appLogger, api, cfg.Tracing.Enabled))

	purgeCtx, stopPurge := context.WithCancel(context.Background())
	defer stopPurge()
	if rt.Engine.Purger != nil {
		go rt.Engine.Purger.Run(purgeCtx)
	}

	serveErr := make(chan error, 1)
	go func() {
		appLogger.Info(ctx, fmt.Sprintf("HTTP server listening on %s", cfg.HTTP.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		appLogger.Info(context.Background(), "Shutdown signal received")
	case err = <-serveErr:
		appLogger.Error(context.Background(), "HTTP server failed", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
		appLogger.Error(shutdownCtx, "HTTP server shutdown error", serr)
	}

	stopPurge()

	if cerr := rt.Close(shutdownCtx); cerr != nil {
		appLogger.Error(shutdownCtx, "Failed to release resources", cerr)
	}

	if tp != nil {
		if terr := tp.Shutdown(shutdownCtx); terr != nil {
			appLogger.Error(shutdownCtx, "TracerProvider shutdown error", terr)
		}
	}

	appLogger.Info(shutdownCtx, "Server gracefully stopped.")

	return err
}
