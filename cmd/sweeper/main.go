package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/praxis-booking/internal/app/bootstrap"
	appconfig "github.com/wolfman30/praxis-booking/internal/config"
	"github.com/wolfman30/praxis-booking/internal/observability/metrics"
	"github.com/wolfman30/praxis-booking/internal/sweeper"
	"github.com/wolfman30/praxis-booking/pkg/logging"
)

type options struct {
	once         bool
	interval     time.Duration
	purgeOrphans bool
	metricsAddr  string
}

func parseFlags(args []string, cfg *appconfig.Config) (options, error) {
	fs := flag.NewFlagSet("sweeper", flag.ContinueOnError)
	var opts options
	fs.BoolVar(&opts.once, "once", false, "sweep once and exit (for an external scheduler)")
	fs.DurationVar(&opts.interval, "interval", cfg.SweepInterval, "time between sweeps in loop mode")
	fs.BoolVar(&opts.purgeOrphans, "purge-orphans", cfg.SweepPurgeOrphans, "also delete step records whose session is gone")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics on this address in loop mode")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.interval <= 0 {
		return options{}, errors.New("interval must be positive")
	}
	return opts, nil
}

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	opts, err := parseFlags(os.Args[1:], cfg)
	if err != nil {
		logger.Error("invalid flags", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := bootstrap.BuildBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	reg := prometheus.NewRegistry()
	s := sweeper.New(backend.Tx, logger,
		sweeper.WithPurgeOrphans(opts.purgeOrphans),
		sweeper.WithMetrics(metrics.NewSweeperMetrics(reg)),
	)

	if opts.once {
		res, err := s.RunOnce(ctx)
		if err != nil {
			logger.Error("sweep failed", "error", err)
			os.Exit(1)
		}
		logger.Info("sweep complete", "sessions", res.Sessions, "records", res.Records)
		return
	}

	if opts.metricsAddr != "" {
		srv := &http.Server{
			Addr:              opts.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("sweeper started", "interval", opts.interval.String(), "purge_orphans", opts.purgeOrphans)
	s.Start(ctx, opts.interval)
	logger.Info("sweeper stopped")
}
