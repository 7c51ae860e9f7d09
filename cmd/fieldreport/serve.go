package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/DukeRupert/fieldreport/internal/auth"
	"github.com/DukeRupert/fieldreport/internal/handler"
	"github.com/DukeRupert/fieldreport/internal/metrics"
	"github.com/DukeRupert/fieldreport/internal/middleware"
	"github.com/DukeRupert/fieldreport/internal/storage"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the report API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			return serve(ctx, a)
		},
	}
}

// serve runs the HTTP server until ctx is cancelled. The server drains
// first, then every open session gets its final save.
func serve(ctx context.Context, a *app) error {
	cfg, logger := a.cfg, a.logger

	// ==========================================================================
	// Middleware
	// ==========================================================================

	isSecure := cfg.Env != "development"
	logging := middleware.NewRequestLoggingMiddleware(logger)
	security := middleware.NewSecurityHeadersMiddleware(isSecure)
	metricsAuth := middleware.NewBasicAuth("metrics", cfg.MetricsUsername, cfg.MetricsPassword)
	if !metricsAuth.Enabled() {
		logger.Warn("metrics endpoint is unprotected; set METRICS_USERNAME and METRICS_PASSWORD")
	}

	limiter := middleware.NewRateLimiter(cfg.AIRateLimit, time.Minute)
	defer limiter.Close()
	aiLimit := middleware.NewRateLimitMiddleware(limiter, logger)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handler.Health)
	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	var files storage.Storage
	if cfg.StorageProvider == storage.ProviderLocal {
		files = a.files
	}
	h := handler.New(handler.Config{
		Manager:        a.manager,
		Store:          a.store,
		Renderer:       a.renderer,
		Previews:       a.pipeline.Previews(),
		Files:          files,
		MaxRequestSize: cfg.MaxAttachmentSize * 4,
		Logger:         logger,
	})
	h.RegisterRoutes(mux, aiLimit.Limit)

	// Identity first so the logger and limiter see the actor.
	root := middleware.Stack(
		auth.Middleware(a.auth),
		logging.Handler,
		metrics.Middleware,
		security.Handler,
	)(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
	case serveErr = <-errCh:
		logger.Error("Server failed", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout+5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	if err := a.close(shutdownCtx); err != nil {
		logger.Error("Editor shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return serveErr
}
