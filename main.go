package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quotewatch/internal/config"
	"quotewatch/internal/coordinator"
	"quotewatch/internal/credentials"
	"quotewatch/internal/feed"
	"quotewatch/internal/logging"
	"quotewatch/internal/metrics"
	"quotewatch/internal/poller"
	"quotewatch/internal/quote"
	"quotewatch/internal/yahoo"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, closer, err := logging.New(cfg.Logging())
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	fmt.Printf("Watching %s (every %s)...\n", cfg.Symbol, poller.PollInterval)
	fmt.Println("================================================")
	if err := run(ctx, cfg, os.Stdout, logger); err != nil {
		logger.Error("quote watcher failed", "error", err)
		closer.Close()
		os.Exit(1)
	}
	fmt.Println("================================================")
	fmt.Println("Stopped.")
}

// run wires the pipeline from cfg and blocks until ctx is cancelled.
// Observations are printed to out.
func run(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger, opts ...poller.Option) error {
	m := metrics.New()

	opt := cfg.Gateway()
	opt.Logger = logger
	gateway := yahoo.NewGateway(opt)
	defer gateway.Close()

	observations := feed.New(cfg.QueueCapacity, feed.WithDropHandler(func(obs quote.Observation) {
		m.Dropped()
		logger.Warn("feed full, dropped oldest observation", "timestamp", obs.Timestamp)
	}))
	defer observations.Close()

	opts = append([]poller.Option{poller.WithLogger(logger), poller.WithMetrics(m)}, opts...)
	p := poller.New(cfg.Poller(), gateway, credentials.NewCache(), observations, opts...)

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux(m),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("serving metrics", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	return coordinator.New(p, observations, out).Run(ctx)
}

func metricsMux(m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}
