package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/itchan-dev/ideamarket/backend/internal/router"
	"github.com/itchan-dev/ideamarket/backend/internal/setup"
	"github.com/itchan-dev/ideamarket/shared/config"
	"github.com/itchan-dev/ideamarket/shared/logger"
	sharedpg "github.com/itchan-dev/ideamarket/shared/storage/pg"
)

type loader func() (*config.Config, error)

func serveCmd(load loader) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply database migrations before serving")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, migrate bool) error {
	deps, err := setup.SetupDependencies(ctx, cfg, sharedpg.DefaultConnectionConfig())
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Log.Error("shutdown cleanup failed", "error", err)
		}
	}()

	if migrate {
		if err := deps.Storage.Migrate(ctx); err != nil {
			return err
		}
	}

	deps.StartBackground(ctx)

	httpCfg := cfg.Public.Http
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", httpCfg.Port),
		Handler:      router.New(deps),
		ReadTimeout:  httpCfg.ReadTimeout,
		WriteTimeout: httpCfg.WriteTimeout,
		IdleTimeout:  httpCfg.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Log.Info("server started", "addr", server.Addr, "env", cfg.Public.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpCfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
