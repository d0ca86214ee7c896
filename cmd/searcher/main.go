package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/indexer/index"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/store"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg); err != nil {
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mode, err := ranker.ParseMode(cfg.Search.ExecutionMode)
	if err != nil {
		return err
	}
	defaultStatus, err := index.ParseStatus(cfg.Search.DefaultStatus)
	if err != nil {
		return err
	}
	engine, err := indexer.NewEngineFromWords(cfg.Search.StopWords, indexer.Options{
		Mode:    mode,
		Buckets: cfg.Search.ConcurrentMapBuckets,
		Workers: cfg.Search.Workers,
	})
	if err != nil {
		return err
	}
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"mode", mode,
		"stop_words", engine.StopWords().Len(),
	)

	m := metrics.New(prometheus.DefaultRegisterer)
	checker := health.NewChecker()
	checker.Register("index_engine", func(context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents", engine.DocumentCount()),
		}
	})

	var pg *postgres.Client
	if cfg.Postgres.Enabled {
		pg, err = postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		defer pg.Close()
		checker.Register("postgres", health.Ping(pg.Ping, false))
	}

	var remote cache.Remote
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, using local result cache only", "error", err)
		} else {
			defer redisClient.Close()
			remote = cache.WithBreaker(redisClient, resilience.NewCircuitBreaker("redis", resilience.CircuitBreakerConfig{
				OnStateChange: func(name string, _, to resilience.State) {
					m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
				},
			}))
			checker.Register("redis", health.Ping(redisClient.Ping, true))
		}
	}
	resultCache, err := cache.New(remote, cache.Options{
		LocalSize: cfg.Search.LocalCacheSize,
		TTL:       cfg.Redis.CacheTTL,
		Metrics:   m,
	})
	if err != nil {
		return err
	}

	agg := analytics.NewAggregator()
	recorders := analytics.Recorders{agg}
	var (
		documentProducer *kafka.Producer
		collector        *analytics.Collector
	)
	if cfg.Kafka.Enabled {
		analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer analyticsProducer.Close()
		collector = analytics.NewCollector(analyticsProducer, analytics.CollectorOptions{
			BufferSize:    cfg.Analytics.BufferSize,
			BatchSize:     cfg.Analytics.BatchSize,
			FlushInterval: cfg.Analytics.FlushInterval,
			Metrics:       m,
		})
		collector.Start(ctx)
		recorders = append(recorders, collector)

		documentProducer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentEvents)
		defer documentProducer.Close()
	}

	tracker := analytics.NewRequestTracker(engine, cfg.Search.RequestWindow)
	exec := executor.New(executor.Deps{
		Engine:   engine,
		Cache:    resultCache,
		Tracker:  tracker,
		Recorder: recorders,
		Metrics:  m,
	})

	consumerDeps := consumer.Deps{
		Engine:      engine,
		Invalidator: exec,
		Recorder:    recorders,
		Metrics:     m,
	}
	var (
		docStore *store.DocumentStore
		pub      *publisher.Publisher
	)
	if pg != nil {
		docStore = store.New(pg)
		if err := docStore.EnsureSchema(ctx); err != nil {
			return err
		}
		consumerDeps.Store = docStore
	}
	applier := consumer.New(consumerDeps)
	if _, err := applier.Seed(ctx); err != nil {
		return err
	}
	if documentProducer != nil {
		if docStore != nil {
			pub = publisher.New(docStore, documentProducer)
		} else {
			pub = publisher.New(nil, documentProducer)
		}
	}

	searchH := handler.New(exec, engine, resultCache, handler.Options{
		DefaultStatus:    defaultStatus,
		DefaultMode:      mode,
		BatchConcurrency: cfg.Search.BatchConcurrency,
	})
	var asyncPub ingesthandler.Publisher
	if pub != nil {
		asyncPub = pub
	}
	ingestH := ingesthandler.New(applier, asyncPub, consumer.SourceHTTP)
	analyticsH := analytics.NewHandler(agg, tracker)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", searchH.Search)
	mux.HandleFunc("POST /api/v1/search/batch", searchH.SearchBatch)
	mux.HandleFunc("GET /api/v1/documents", searchH.Documents)
	mux.HandleFunc("POST /api/v1/documents", ingestH.AddDocument)
	mux.HandleFunc("POST /api/v1/documents/deduplicate", ingestH.RemoveDuplicates)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", ingestH.RemoveDocument)
	mux.HandleFunc("GET /api/v1/documents/{id}/match", searchH.MatchDocument)
	mux.HandleFunc("GET /api/v1/documents/{id}/terms", searchH.WordFrequencies)
	mux.HandleFunc("GET /api/v1/cache/stats", searchH.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", searchH.CacheInvalidate)
	mux.HandleFunc("GET /api/v1/requests/stats", analyticsH.RequestStats)
	mux.HandleFunc("GET /api/v1/analytics", analyticsH.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	chain := middleware.Chain(mux,
		middleware.RequestID,
		middleware.CORS(cfg.Server.CORSOrigins),
		middleware.RateLimit(middleware.NewLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst), m),
		middleware.Metrics(m),
		middleware.Timeout(cfg.Search.Timeout),
	)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Kafka.Enabled {
		documentConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentEvents, applier.HandleMessage())
		g.Go(func() error {
			defer documentConsumer.Close()
			return documentConsumer.Start(gctx)
		})
	}
	if docStore != nil {
		snapshots := aggregator.NewStore(pg.DB)
		if err := snapshots.EnsureSchema(ctx); err != nil {
			return err
		}
		g.Go(func() error {
			snapshots.Run(gctx, func() aggregator.Snapshot {
				return aggregator.Snapshot{
					Search:    agg.Stats(),
					Requests:  tracker.Stats(),
					Documents: engine.DocumentCount(),
				}
			}, cfg.Analytics.SnapshotInterval)
			return nil
		})
	}
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
		g.Go(func() error {
			<-gctx.Done()
			return shutdownWithin(cfg.Server.ShutdownTimeout, shutdownMetrics)
		})
	}
	g.Go(func() error {
		slog.Info("search service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		return shutdownWithin(cfg.Server.ShutdownTimeout, server.Shutdown)
	})

	err = g.Wait()
	if collector != nil {
		collector.Close()
		slog.Info("analytics collector drained", "dropped", collector.Dropped())
	}
	return err
}

func shutdownWithin(timeout time.Duration, shutdown func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
