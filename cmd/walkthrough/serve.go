package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/middleware"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.WithError(err).Warn("failed to close backends")
				}
			}()

			limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger)
			limiter.StartCleanup(ctx, time.Minute)

			if !cfg.AuthEnabled() {
				logger.Warn("SUPABASE_JWT_SECRET not set; trusting X-User-ID headers")
			}

			srv := &http.Server{
				Addr:              cfg.Addr(),
				Handler:           a.handler(limiter),
				ReadTimeout:       cfg.ReadTimeout,
				ReadHeaderTimeout: 5 * time.Second,
				WriteTimeout:      cfg.WriteTimeout,
				IdleTimeout:       60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.WithField("addr", srv.Addr).WithField("storage", cfg.StorageBackend).Info("walkthrough API listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return <-errCh
		},
	}
}
