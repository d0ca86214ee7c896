// Command analytics aggregates search and indexing events published by every
// search replica to the analytics-events topic, serves the fleet-wide totals
// at GET /api/v1/analytics and, when PostgreSQL is enabled, stores periodic
// snapshots of them.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
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

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/postgres"
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
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Replicas share the search consumer group; the analytics service needs
	// every event, so it reads under its own group.
	kcfg := cfg.Kafka
	kcfg.ConsumerGroup += "-analytics"

	agg := analytics.NewAggregator()
	consumer := kafka.NewConsumer(kcfg, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(agg))
	defer consumer.Close()

	checker := health.NewChecker()
	checker.Register("kafka", func(context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: "consumer active"}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Start(gctx)
	})
	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		snapshots := aggregator.NewStore(db.DB)
		if err := snapshots.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare snapshot table", "error", err)
			os.Exit(1)
		}
		checker.Register("postgres", health.Ping(db.Ping, true))
		g.Go(func() error {
			snapshots.Run(gctx, func() aggregator.Snapshot {
				return aggregator.Snapshot{Search: agg.Stats()}
			}, cfg.Analytics.SnapshotInterval)
			return nil
		})
	}
	slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	analyticsHandler := analytics.NewHandler(agg, nil)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.RequestID(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		slog.Info("analytics service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("analytics service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics service stopped")
}
