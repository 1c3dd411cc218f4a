// Command analytics runs the analytics aggregator as its own service.
//
// It consumes search and index events from Kafka, aggregates them in memory
// (totals, latency percentiles, cache hit rate, top and zero-result queries,
// requested dietary filters) and serves them at GET /api/v1/analytics. With
// analytics.snapshotInterval set, totals are snapshotted to SQLite and
// restored on start.
//
// Usage:
//
//	go run ./cmd/analytics [--config recipe-search.yaml] [--port 5001]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/analytics/store"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/sqlite"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to YAML config file")
	port := pflag.IntP("port", "p", 0, "HTTP port, overrides server.port")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port, "topic", cfg.Kafka.Topics.SearchEvents)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	aggregator := analytics.NewAggregator()

	var (
		saved     <-chan struct{}
		snapshots analytics.SnapshotLister
	)
	if cfg.Analytics.SnapshotInterval > 0 {
		client, err := sqlite.Open(ctx, config.SQLiteConfig{Path: cfg.Analytics.SnapshotPath}, true)
		if err != nil {
			slog.Error("failed to open snapshot db", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		st, err := store.New(ctx, client.DB)
		if err != nil {
			slog.Error("failed to prepare snapshot store", "error", err)
			os.Exit(1)
		}
		if latest, err := st.LatestSnapshot(ctx); err != nil {
			slog.Warn("could not restore analytics snapshot", "error", err)
		} else if latest != nil {
			aggregator.Restore(*latest)
		}
		saved = st.StartPeriodicSave(ctx, aggregator, cfg.Analytics.SnapshotInterval)
		snapshots = st
	}

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents, analytics.HandleEvent(aggregator))
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Run(ctx); err != nil {
			slog.Error("analytics consumer error", "error", err)
		}
	}()

	checker := health.NewChecker()
	checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		select {
		case <-consumerDone:
			return health.ComponentHealth{Status: health.StatusDown, Message: "consumer stopped"}
		default:
			return health.ComponentHealth{Status: health.StatusUp, Message: "consumer active"}
		}
	})

	mux := http.NewServeMux()
	analytics.NewHandler(aggregator, snapshots).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.CORS.AllowOrigins...))(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	stop()
	select {
	case <-consumerDone:
	case <-time.After(5 * time.Second):
		slog.Warn("consumer did not stop in time")
	}
	if saved != nil {
		<-saved
	}
	slog.Info("analytics service stopped")
}
