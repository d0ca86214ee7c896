package analytics

import (
	"maps"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalSearches     int64            `json:"total_searches"`
	SearchesByMode    map[string]int64 `json:"searches_by_mode"`
	SearchesByStatus  map[string]int64 `json:"searches_by_status"`
	DocumentsIndexed  int64            `json:"documents_indexed"`
	DocumentsRemoved  int64            `json:"documents_removed"`
	DuplicatesRemoved int64            `json:"duplicates_removed"`
	CacheHits         int64            `json:"cache_hits"`
	CacheMisses       int64            `json:"cache_misses"`
	ZeroResultCount   int64            `json:"zero_result_count"`
	AvgLatencyMs      float64          `json:"avg_latency_ms"`
	P50LatencyMs      int64            `json:"p50_latency_ms"`
	P95LatencyMs      int64            `json:"p95_latency_ms"`
	P99LatencyMs      int64            `json:"p99_latency_ms"`
	TopQueries        []QueryCount     `json:"top_queries"`
	ZeroResultQueries []QueryCount     `json:"zero_result_queries"`
	QueriesPerMinute  float64          `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator keeps running totals of the events it is given. Latency
// percentiles cover the most recent maxLatencySamples searches.
type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     atomic.Int64
	docsIndexed       atomic.Int64
	docsRemoved       atomic.Int64
	duplicatesRemoved atomic.Int64
	cacheHits         atomic.Int64
	cacheMisses       atomic.Int64
	zeroResults       atomic.Int64
	latencies         []int64
	latencyNext       int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	byMode            map[string]int64
	byStatus          map[string]int64
	startTime         time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		byMode:            make(map[string]int64),
		byStatus:          make(map[string]int64),
		startTime:         time.Now(),
	}
}

func (a *Aggregator) Track(event Event) {
	switch e := event.(type) {
	case SearchEvent:
		a.recordSearchEvent(e)
	case IndexEvent:
		a.recordIndexEvent(e)
	}
}

func (a *Aggregator) recordSearchEvent(event SearchEvent) {
	a.totalSearches.Add(1)

	if event.CacheHit {
		a.cacheHits.Add(1)
	} else {
		a.cacheMisses.Add(1)
	}

	zero := event.Returned == 0
	if zero {
		a.zeroResults.Add(1)
	}

	a.mu.Lock()
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.latencyNext] = event.LatencyMs
		a.latencyNext = (a.latencyNext + 1) % maxLatencySamples
	}
	a.queryCounts[event.Query]++
	a.byMode[event.Mode]++
	a.byStatus[event.Status]++
	if zero {
		a.zeroResultQueries[event.Query]++
	}
	a.mu.Unlock()
}

func (a *Aggregator) recordIndexEvent(event IndexEvent) {
	switch event.Type {
	case EventIndexDoc:
		a.docsIndexed.Add(1)
	case EventRemoveDoc:
		a.docsRemoved.Add(1)
	case EventDuplicateRemoved:
		a.duplicatesRemoved.Add(1)
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:     a.totalSearches.Load(),
		DocumentsIndexed:  a.docsIndexed.Load(),
		DocumentsRemoved:  a.docsRemoved.Load(),
		DuplicatesRemoved: a.duplicatesRemoved.Load(),
		CacheHits:         a.cacheHits.Load(),
		CacheMisses:       a.cacheMisses.Load(),
		ZeroResultCount:   a.zeroResults.Load(),
		SearchesByMode:    maps.Clone(a.byMode),
		SearchesByStatus:  maps.Clone(a.byStatus),
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}

	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count descending, then query ascending.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
