// Package executor runs search requests against the engine. Executor adds
// result caching, request tracking, metrics and analytics around a single
// query; ProcessQueries fans a batch of queries out in parallel.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/tracing"
)

type Request struct {
	Query  string
	Status index.Status
	Mode   ranker.Mode
}

type SearchResult struct {
	Query    string             `json:"query"`
	Status   string             `json:"status"`
	Mode     string             `json:"mode"`
	Results  []ranker.ScoredDoc `json:"results"`
	CacheHit bool               `json:"cache_hit"`
}

// Dependencies other than Engine may be nil.
type Deps struct {
	Engine   *indexer.Engine
	Cache    *cache.ResultCache
	Tracker  *analytics.RequestTracker
	Recorder analytics.Recorder
	Metrics  *metrics.Metrics
}

type Executor struct {
	engine   *indexer.Engine
	cache    *cache.ResultCache
	tracker  *analytics.RequestTracker
	recorder analytics.Recorder
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func New(deps Deps) *Executor {
	return &Executor{
		engine:   deps.Engine,
		cache:    deps.Cache,
		tracker:  deps.Tracker,
		recorder: deps.Recorder,
		metrics:  deps.Metrics,
		logger:   slog.Default().With("component", "query-executor"),
	}
}

func (e *Executor) Execute(ctx context.Context, req Request) (*SearchResult, error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "search")
	defer span.End()
	span.SetAttr("mode", req.Mode.String())

	filter := ranker.StatusFilter(req.Status)
	compute := func() ([]ranker.ScoredDoc, error) {
		_, rank := tracing.Start(ctx, "rank")
		defer rank.End()
		return e.engine.FindTopDocumentsMode(req.Mode, req.Query, filter)
	}

	var (
		docs []ranker.ScoredDoc
		hit  bool
		err  error
	)
	if e.cache == nil {
		docs, err = compute()
	} else {
		q, parseErr := e.engine.ParseQuery(req.Query)
		if parseErr != nil {
			err = parseErr
		} else {
			docs, hit, err = e.cache.GetOrCompute(ctx, cache.KeyFor(q, req.Status), compute)
		}
	}
	elapsed := time.Since(start)
	span.SetAttr("cache_hit", hit)
	if err != nil {
		if e.metrics != nil {
			e.metrics.SearchQueriesTotal.WithLabelValues(req.Mode.String(), "error").Inc()
		}
		return nil, err
	}
	if docs == nil {
		docs = []ranker.ScoredDoc{}
	}

	if e.tracker != nil {
		e.tracker.Observe(len(docs))
	}
	e.observe(req, len(docs), hit, elapsed)
	if e.recorder != nil {
		eventType := analytics.EventSearch
		if len(docs) == 0 {
			eventType = analytics.EventZeroResult
		}
		e.recorder.Track(analytics.SearchEvent{
			Type:      eventType,
			Query:     req.Query,
			Mode:      req.Mode.String(),
			Status:    req.Status.String(),
			Returned:  len(docs),
			LatencyMs: elapsed.Milliseconds(),
			CacheHit:  hit,
			Timestamp: time.Now().UTC(),
			RequestID: logger.RequestID(ctx),
		})
	}
	logger.FromContext(ctx).Debug("query executed",
		"query", req.Query,
		"mode", req.Mode.String(),
		"status", req.Status.String(),
		"results", len(docs),
		"cache_hit", hit,
		"latency", elapsed,
	)
	return &SearchResult{
		Query:    req.Query,
		Status:   req.Status.String(),
		Mode:     req.Mode.String(),
		Results:  docs,
		CacheHit: hit,
	}, nil
}

// Bind fixes ctx, status and mode so batches can run through Execute and
// share its cache and tracking.
func (e *Executor) Bind(ctx context.Context, status index.Status, mode ranker.Mode) Searcher {
	return SearcherFunc(func(raw string) ([]ranker.ScoredDoc, error) {
		res, err := e.Execute(ctx, Request{Query: raw, Status: status, Mode: mode})
		if err != nil {
			return nil, err
		}
		return res.Results, nil
	})
}

// Invalidate clears cached results after the corpus changed.
func (e *Executor) Invalidate(ctx context.Context) {
	if e.metrics != nil {
		e.metrics.DocumentsTotal.Set(float64(e.engine.DocumentCount()))
	}
	if e.cache == nil {
		return
	}
	if err := e.cache.Invalidate(ctx); err != nil && !errors.Is(err, context.Canceled) {
		e.logger.Warn("cache invalidation failed", "error", err)
	}
}

func (e *Executor) observe(req Request, results int, hit bool, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	resultType, cacheStatus := "hit", "miss"
	if results == 0 {
		resultType = "zero_result"
	}
	if hit {
		cacheStatus = "hit"
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(req.Mode.String(), resultType).Inc()
	e.metrics.SearchLatency.WithLabelValues(req.Mode.String(), cacheStatus).Observe(elapsed.Seconds())
	e.metrics.SearchResultsCount.Observe(float64(results))
	if e.tracker != nil {
		e.metrics.EmptyRequestsInWindow.Set(float64(e.tracker.EmptyRequestCount()))
	}
}
