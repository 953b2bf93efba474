package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/praxis-booking/internal/api/router"
	"github.com/wolfman30/praxis-booking/internal/app/bootstrap"
	"github.com/wolfman30/praxis-booking/internal/booking"
	appconfig "github.com/wolfman30/praxis-booking/internal/config"
	httpmiddleware "github.com/wolfman30/praxis-booking/internal/http/middleware"
	"github.com/wolfman30/praxis-booking/internal/observability/metrics"
	"github.com/wolfman30/praxis-booking/pkg/logging"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting praxis booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)
	if cfg.AuthJWTSecret == "" {
		logger.Warn("AUTH_JWT_SECRET not set; every booking request will be rejected")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := bootstrap.BuildBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	metricsHandler, bookingMetrics := setupMetrics()
	svc := booking.NewService(
		backend.Tx,
		bootstrap.BuildCatalog(backend, redisClient, cfg, logger),
		bootstrap.BuildSlotFinder(cfg, logger),
		logger,
	).WithSessionTTL(cfg.SessionTTL).WithMetrics(bookingMetrics)

	checks := map[string]router.HealthCheck{"database": backend.Ping}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	r := router.New(&router.Config{
		Logger:             logger,
		BookingHandler:     booking.NewHandler(svc, logger),
		AuthJWTSecret:      cfg.AuthJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        rateLimiter(cfg),
		ReadinessChecks:    checks,
	})

	if deliverer := bootstrap.BuildOutboxDeliverer(backend, redisClient, cfg, logger); deliverer != nil {
		go deliverer.Start(ctx)
		logger.Info("outbox deliverer started", "stream", cfg.OutboxStream)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// setupMetrics registers the booking collectors plus Go runtime metrics on a
// dedicated registry.
func setupMetrics() (http.Handler, *metrics.BookingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	bookingMetrics := metrics.NewBookingMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), bookingMetrics
}

func rateLimiter(cfg *appconfig.Config) *httpmiddleware.RateLimiter {
	if cfg.RateLimitRPS <= 0 {
		return nil
	}
	return httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
}
