package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/creamcroissant/xraysub/internal/api"
	"github.com/creamcroissant/xraysub/internal/bootstrap"
	"github.com/creamcroissant/xraysub/internal/support/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := appConfig
	logger := logging.New(logging.Options{
		Level:     cfg.Log.SlogLevel(),
		Format:    cfg.Log.Format,
		AddSource: cfg.Log.AddSource,
	})

	infra, err := bootstrap.BuildInfrastructure(cfg, logger)
	if err != nil {
		return err
	}
	profiles, err := bootstrap.BuildProfiles(cfg)
	if err != nil {
		return err
	}

	router := api.NewRouter(logger, api.Services{
		Converter:   infra.Converter,
		RateLimiter: infra.RateLimiter,
		Recorder:    infra.Audit,
		Registry:    infra.Registry,
	}, profiles, api.RouterConfig{
		Metrics:           cfg.Metrics,
		CORS:              cfg.CORS,
		RateLimit:         cfg.Convert.RateLimit,
		TrustProxyHeaders: cfg.HTTP.TrustProxyHeaders,
	})

	server := bootstrap.NewHTTPServer(cfg, router)

	go func() {
		logger.Info("http server starting",
			"addr", cfg.HTTP.Addr,
			"version", Version,
			"sub_policy", profiles.Sub.Policy.Name(),
			"convert_policy", profiles.Convert.Policy.Name(),
			"allow_private_networks", cfg.Fetch.AllowPrivateNetworks,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	logger.Info("shutting down http server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		return err
	}
	logger.Info("server exited cleanly")
	return nil
}
