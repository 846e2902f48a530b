package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rosterly/rosterly-backend/internal/auth/jwt"
	"github.com/rosterly/rosterly-backend/internal/scheduling/consumers"
	"github.com/rosterly/rosterly-backend/internal/scheduling/handler"
	"github.com/rosterly/rosterly-backend/pkg/httputil"
	"github.com/rosterly/rosterly-backend/pkg/ratelimit"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, event consumer and periodic jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	log.Info().Msg("starting Scheduling Service")

	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// Start user event consumer
	userConsumer, err := consumers.NewUserEventConsumer(a.rmq, a.directory, log)
	if err != nil {
		return fmt.Errorf("failed to create user event consumer: %w", err)
	}
	if err := userConsumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start user event consumer: %w", err)
	}

	if cfg.Jobs.Enabled {
		if err := a.jobs.Start(ctx); err != nil {
			return err
		}
		defer a.jobs.Stop()
	}

	var limit func(http.Handler) http.Handler
	if cfg.Redis.Enabled {
		client, err := ratelimit.NewClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		limiter := ratelimit.New(client, serviceName+":ratelimit", cfg.RateLimit.Requests, cfg.RateLimit.Window)
		limit = ratelimit.Middleware(limiter, log)
	}

	tokens := jwt.NewManager(&cfg.JWT)
	schedulingHandler := handler.NewSchedulingHandler(a.assignments, a.scheduler, a.hours, a.fill, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(a.metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  serviceName,
			"database": a.db.Health(r.Context()),
			"rabbitmq": a.rmq.Health(),
		})
	})

	if cfg.Metrics.Enabled {
		r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	}

	r.Mount("/api/v1/scheduling", schedulingHandler.Routes(tokens, limit))

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	log.Info().Msg("shutting down server")

	// Cancel context to stop consumers
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
	return nil
}
