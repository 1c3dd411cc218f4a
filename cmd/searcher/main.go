package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/analytics/store"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/searcher/spell"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/internal/searcher/validator"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/sqlite"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to YAML config file")
	corpusPath := pflag.String("corpus", "", "corpus file, overrides corpus.path")
	driver := pflag.String("driver", "", "corpus driver (json, csv, postgres, sqlite), overrides corpus.driver")
	port := pflag.IntP("port", "p", 0, "HTTP port, overrides server.port")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *corpusPath != "" {
		cfg.Corpus.Path = *corpusPath
	}
	if *driver != "" {
		cfg.Corpus.Driver = *driver
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if err := run(cfg); err != nil {
		slog.Error("recipe search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("recipe search service stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownMetrics(shutdownCtx)
		}()
	}

	src, closer, err := corpus.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	aggregator := analytics.NewAggregator()
	var tracker analytics.Tracker = aggregator
	var collector *analytics.Collector
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
		collector = analytics.NewCollector(producer, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
		collector.Start(ctx)
		tracker = collector

		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents, analytics.HandleEvent(aggregator))
		go func() {
			if err := consumer.Run(ctx); err != nil {
				slog.Error("analytics consumer error", "error", err)
			}
		}()
		slog.Info("analytics pipeline enabled", "topic", cfg.Kafka.Topics.SearchEvents, "brokers", cfg.Kafka.Brokers)
	}

	snapshotDone, snapshots, err := startSnapshots(ctx, cfg.Analytics, aggregator)
	if err != nil {
		return err
	}

	engine := indexer.NewEngine(src, m)
	engine.OnBuild(func(snap *indexer.Snapshot) {
		stats := snap.Bundle.Stats()
		event := analytics.IndexEvent{
			Source:    snap.Source,
			Documents: stats.Documents,
			Terms:     stats.Terms,
			LatencyMs: snap.Took.Milliseconds(),
		}
		if collector != nil {
			collector.TrackIndex(event)
		} else {
			aggregator.RecordIndex(event)
		}
	})
	if err := engine.Load(ctx); err != nil {
		return fmt.Errorf("initial index build: %w", err)
	}
	engine.StartReloadLoop(ctx, cfg.Corpus.ReloadInterval)
	go reloadOnHangup(ctx, engine)

	policy, err := merger.ParsePolicy(cfg.Search.FusionPolicy)
	if err != nil {
		return err
	}
	exec := executor.New(engine,
		executor.Options{Policy: policy, Limit: cfg.Search.DefaultLimit},
		executor.SpellOptions{
			Enabled: cfg.Spell.Enabled,
			Options: spell.Options{Threshold: cfg.Spell.Threshold, MinTermLength: cfg.Spell.MinTermLength},
		},
		m,
	)

	var queryCache *cache.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		stats, err := engine.Stats()
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d recipes, %d terms", stats.Documents, stats.Terms)}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("analytics", func(ctx context.Context) health.ComponentHealth {
		if collector == nil {
			return health.ComponentHealth{Status: health.StatusUp, Message: "in-process"}
		}
		buffered := collector.BufferLen()
		if buffered >= cfg.Analytics.BatchSize*2 {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: fmt.Sprintf("%d events waiting for kafka", buffered)}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d events buffered", buffered)}
	})

	h := handler.New(handler.Options{
		Engine:    engine,
		Executor:  exec,
		Cache:     queryCache,
		Tracker:   tracker,
		Analytics: analytics.NewHandler(aggregator, snapshots),
		Limits: validator.Limits{
			MaxQueries:     cfg.Search.MaxQueries,
			MaxQueryLength: cfg.Search.MaxQueryLength,
			MaxResults:     cfg.Search.MaxResults,
			DefaultLimit:   cfg.Search.DefaultLimit,
		},
		Metrics: m,
	})

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewClientLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		chain = middleware.RateLimit(limiter, m)(chain)
	}
	chain = middleware.Metrics(m)(chain)
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

	slog.Info("recipe search service listening", "addr", server.Addr, "fusion_policy", policy.String(), "spell", cfg.Spell.Enabled)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serving http: %w", err)
	}

	stop()
	if collector != nil {
		collector.Close()
		closeQuietly("kafka producer", producer)
	}
	if snapshotDone != nil {
		<-snapshotDone
	}
	return nil
}

// startSnapshots restores the last analytics snapshot and saves new ones
// periodically. It returns nil values when snapshots are disabled.
func startSnapshots(ctx context.Context, cfg config.AnalyticsConfig, agg *analytics.Aggregator) (<-chan struct{}, analytics.SnapshotLister, error) {
	if cfg.SnapshotInterval <= 0 {
		return nil, nil, nil
	}
	client, err := sqlite.Open(ctx, config.SQLiteConfig{Path: cfg.SnapshotPath}, true)
	if err != nil {
		return nil, nil, fmt.Errorf("opening analytics snapshot db: %w", err)
	}
	st, err := store.New(ctx, client.DB)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	latest, err := st.LatestSnapshot(ctx)
	if err != nil {
		slog.Warn("could not restore analytics snapshot", "error", err)
	} else if latest != nil {
		agg.Restore(*latest)
		slog.Info("analytics restored from snapshot", "total_searches", latest.TotalSearches)
	}

	saved := st.StartPeriodicSave(ctx, agg, cfg.SnapshotInterval)
	done := make(chan struct{})
	go func() {
		<-saved
		closeQuietly("analytics snapshot db", client)
		close(done)
	}()
	return done, st, nil
}

// reloadOnHangup rebuilds the index whenever the process receives SIGHUP.
func reloadOnHangup(ctx context.Context, engine *indexer.Engine) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			slog.Info("SIGHUP received, reloading index")
			if err := engine.Load(ctx); err != nil {
				slog.Error("reload failed", "error", err)
			}
		}
	}
}

func closeQuietly(name string, c io.Closer) {
	if err := c.Close(); err != nil {
		slog.Warn("close failed", "resource", name, "error", err)
	}
}
