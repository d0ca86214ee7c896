// Package cache memoises ranked results per normalised query. An in-process
// LRU sits in front of an optional shared Redis layer, and concurrent misses
// for the same key are collapsed into one computation.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/redis"
)

const keyPrefix = "search:"

const (
	LayerLocal = "local"
	LayerRedis = "redis"
)

// Remote is the shared layer. *pkgredis.Client implements it; Get must
// return an error matching pkgredis.IsNilError on a miss.
type Remote interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type Options struct {
	LocalSize int
	TTL       time.Duration
	// Metrics may be nil.
	Metrics *metrics.Metrics
}

// ResultCache entries are scoped to a generation. Invalidate starts a new
// generation, so a computation that raced with a write can never be served
// afterwards. Remote keys also carry a per-process epoch: each replica applies
// writes to its own index and counts its own generations, so one replica's
// entries may be stale for another and are never shared.
type ResultCache struct {
	local      *lru.Cache[string, []ranker.ScoredDoc]
	remote     Remote
	ttl        time.Duration
	epoch      string
	generation atomic.Uint64
	group      singleflight.Group
	metrics    *metrics.Metrics
	logger     *slog.Logger
	hits       atomic.Int64
	misses     atomic.Int64
}

// New creates a cache. remote may be nil for a local-only cache.
func New(remote Remote, opts Options) (*ResultCache, error) {
	if opts.LocalSize <= 0 {
		opts.LocalSize = 1024
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Minute
	}
	local, err := lru.New[string, []ranker.ScoredDoc](opts.LocalSize)
	if err != nil {
		return nil, fmt.Errorf("creating local cache: %w", err)
	}
	return &ResultCache{
		local:   local,
		remote:  remote,
		ttl:     opts.TTL,
		epoch:   uuid.NewString()[:8],
		metrics: opts.Metrics,
		logger:  slog.Default().With("component", "result-cache"),
	}, nil
}

// KeyFor normalises a parsed query and status filter. Queries that parse to
// the same term sets share a key regardless of word order or repetition.
func KeyFor(q parser.Query, status index.Status) string {
	return fmt.Sprintf("plus=%s|minus=%s|status=%s",
		strings.Join(q.PlusTerms, ","),
		strings.Join(q.MinusTerms, ","),
		status,
	)
}

// Get returns a copy of the cached results for key and the layer that served
// them.
func (c *ResultCache) Get(ctx context.Context, key string) ([]ranker.ScoredDoc, string, bool) {
	k := c.buildKey(key)
	if docs, ok := c.local.Get(k); ok {
		c.recordHit(LayerLocal)
		return slices.Clone(docs), LayerLocal, true
	}
	if c.remote != nil {
		data, err := c.remote.Get(ctx, k)
		switch {
		case err == nil:
			var docs []ranker.ScoredDoc
			if err := json.Unmarshal([]byte(data), &docs); err != nil {
				c.logger.Error("cache unmarshal failed", "key", k, "error", err)
				break
			}
			c.local.Add(k, docs)
			c.recordHit(LayerRedis)
			return slices.Clone(docs), LayerRedis, true
		case !pkgredis.IsNilError(err):
			c.logger.Error("cache get failed", "key", k, "error", err)
		}
	}
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
	return nil, "", false
}

func (c *ResultCache) Set(ctx context.Context, key string, docs []ranker.ScoredDoc) {
	c.store(ctx, c.buildKey(key), docs)
}

func (c *ResultCache) store(ctx context.Context, k string, docs []ranker.ScoredDoc) {
	if docs == nil {
		docs = []ranker.ScoredDoc{}
	}
	c.local.Add(k, slices.Clone(docs))
	if c.remote == nil {
		return
	}
	data, err := json.Marshal(docs)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", k, "error", err)
		return
	}
	if err := c.remote.Set(ctx, k, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", k, "error", err)
	}
}

// GetOrCompute serves key from cache or runs compute once for all concurrent
// callers. Errors are not cached. The bool reports a cache hit.
func (c *ResultCache) GetOrCompute(
	ctx context.Context,
	key string,
	compute func() ([]ranker.ScoredDoc, error),
) ([]ranker.ScoredDoc, bool, error) {
	if docs, _, ok := c.Get(ctx, key); ok {
		return docs, true, nil
	}
	k := c.buildKey(key)
	val, err, _ := c.group.Do(k, func() (any, error) {
		if docs, ok := c.local.Get(k); ok {
			return docs, nil
		}
		docs, err := compute()
		if err != nil {
			return nil, err
		}
		c.store(ctx, k, docs)
		return docs, nil
	})
	if err != nil {
		return nil, false, err
	}
	return slices.Clone(val.([]ranker.ScoredDoc)), false, nil
}

// Invalidate drops every entry. Remote keys of the old generation are
// deleted best-effort.
func (c *ResultCache) Invalidate(ctx context.Context) error {
	old := c.generation.Add(1) - 1
	c.local.Purge()
	if c.remote == nil {
		return nil
	}
	pattern := fmt.Sprintf("%s%s:%d:*", keyPrefix, c.epoch, old)
	deleted, err := c.remote.FlushByPattern(ctx, pattern)
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Debug("cache invalidated", "keys_deleted", deleted, "generation", old+1)
	return nil
}

func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *ResultCache) recordHit(layer string) {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(layer).Inc()
	}
}

func (c *ResultCache) buildKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%s%s:%d:%x", keyPrefix, c.epoch, c.generation.Load(), hash[:16])
}
