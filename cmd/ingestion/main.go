// Command ingestion runs a write-only front door for a fleet of search
// replicas. Documents posted to it are persisted to PostgreSQL (when enabled)
// and published to the document-events topic; every searcher consumes the
// topic and applies the writes to its own in-memory index.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/store"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/metrics"
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
	if !cfg.Kafka.Enabled {
		slog.Error("the ingestion service needs kafka.enabled")
		os.Exit(1)
	}
	slog.Info("starting ingestion service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checker := health.NewChecker()
	var docStore publisher.DocumentStore
	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		s := store.New(db)
		if err := s.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare documents table", "error", err)
			os.Exit(1)
		}
		docStore = s
		checker.Register("postgres", health.Ping(db.Ping, false))
		slog.Info("connected to postgres")
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentEvents)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", producer.Topic())

	m := metrics.New(prometheus.DefaultRegisterer)
	h := handler.New(nil, publisher.New(docStore, producer), "ingestion")

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/documents", h.AddDocument)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.RemoveDocument)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler(prometheus.DefaultGatherer))

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: middleware.Chain(mux,
			middleware.RequestID,
			middleware.CORS(cfg.Server.CORSOrigins),
			middleware.RateLimit(middleware.NewLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst), m),
			middleware.Metrics(m),
		),
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
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
