package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/metrics"
)

func newEngine(t *testing.T) *indexer.Engine {
	t.Helper()
	e, err := indexer.NewEngineFromText("and with", indexer.Options{})
	require.NoError(t, err)
	docs := []string{
		"funny pet and nasty rat",
		"funny pet with curly hair",
		"big cat nasty hair",
		"big dog cat Vladislav",
		"big dog hamster Borya",
	}
	for i, text := range docs {
		require.NoError(t, e.AddDocument(i+1, text, index.StatusActual, []int{i, i + 1}))
	}
	return e
}

func TestProcessQueriesKeepsOrder(t *testing.T) {
	e := newEngine(t)
	queries := []string{"nasty rat -not", "not very funny nasty pet", "curly hair", "zebra"}

	got, err := ProcessQueries(context.Background(), e, queries)
	require.NoError(t, err)
	require.Len(t, got, len(queries))
	for i, q := range queries {
		want, err := e.FindTopDocuments(q)
		require.NoError(t, err)
		assert.Equal(t, want, got[i], q)
	}
	assert.Empty(t, got[3])
}

func TestProcessQueriesJoined(t *testing.T) {
	e := newEngine(t)
	queries := []string{"nasty rat -not", "curly hair", "big"}

	perQuery, err := ProcessQueriesN(context.Background(), e, queries, 1)
	require.NoError(t, err)
	joined, err := ProcessQueriesJoined(context.Background(), e, queries)
	require.NoError(t, err)

	var want []ranker.ScoredDoc
	for _, docs := range perQuery {
		want = append(want, docs...)
	}
	assert.Equal(t, want, joined)
}

func TestProcessQueriesPropagatesError(t *testing.T) {
	e := newEngine(t)
	_, err := ProcessQueries(context.Background(), e, []string{"cat", "--cat", "dog"})
	assert.ErrorIs(t, err, apperrors.ErrDoubleMinusPrefix)

	_, err = ProcessQueriesJoined(context.Background(), e, []string{"cat -"})
	assert.ErrorIs(t, err, apperrors.ErrEmptyMinusWord)
}

func TestProcessQueriesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ProcessQueries(ctx, newEngine(t), []string{"cat"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessQueriesEmpty(t *testing.T) {
	got, err := ProcessQueries(context.Background(), newEngine(t), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

type countingRecorder struct {
	events []analytics.Event
}

func (r *countingRecorder) Track(e analytics.Event) { r.events = append(r.events, e) }

func TestExecuteWithCache(t *testing.T) {
	e := newEngine(t)
	c, err := cache.New(nil, cache.Options{})
	require.NoError(t, err)
	m := metrics.New(prometheus.NewRegistry())
	tracker := analytics.NewRequestTracker(e, 10)
	rec := &countingRecorder{}
	ex := New(Deps{Engine: e, Cache: c, Tracker: tracker, Recorder: rec, Metrics: m})
	ctx := context.Background()

	first, err := ex.Execute(ctx, Request{Query: "big cat", Status: index.StatusActual, Mode: ranker.Parallel})
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.NotEmpty(t, first.Results)

	second, err := ex.Execute(ctx, Request{Query: "cat big big", Status: index.StatusActual, Mode: ranker.Sequential})
	require.NoError(t, err)
	assert.True(t, second.CacheHit, "same term set shares a cache entry")
	assert.Equal(t, first.Results, second.Results)

	empty, err := ex.Execute(ctx, Request{Query: "zebra", Status: index.StatusActual})
	require.NoError(t, err)
	assert.Empty(t, empty.Results)
	assert.NotNil(t, empty.Results)

	assert.Equal(t, analytics.TrackerStats{Window: 10, Recorded: 3, Empty: 1}, tracker.Stats())
	require.Len(t, rec.events, 3)
	assert.Equal(t, analytics.EventZeroResult, rec.events[2].(analytics.SearchEvent).Type)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("sequential", "zero_result")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmptyRequestsInWindow))
}

func TestExecuteInvalidQuery(t *testing.T) {
	e := newEngine(t)
	c, err := cache.New(nil, cache.Options{})
	require.NoError(t, err)
	tracker := analytics.NewRequestTracker(e, 10)
	ex := New(Deps{Engine: e, Cache: c, Tracker: tracker})

	_, err = ex.Execute(context.Background(), Request{Query: "cat -"})
	assert.ErrorIs(t, err, apperrors.ErrEmptyMinusWord)
	assert.Equal(t, 0, tracker.Stats().Recorded)

	ex = New(Deps{Engine: e})
	_, err = ex.Execute(context.Background(), Request{Query: "--cat"})
	assert.ErrorIs(t, err, apperrors.ErrDoubleMinusPrefix)
}

func TestInvalidateAfterWrite(t *testing.T) {
	e := newEngine(t)
	c, err := cache.New(nil, cache.Options{})
	require.NoError(t, err)
	ex := New(Deps{Engine: e, Cache: c})
	ctx := context.Background()
	req := Request{Query: "hamster", Status: index.StatusActual}

	before, err := ex.Execute(ctx, req)
	require.NoError(t, err)
	require.Len(t, before.Results, 1)

	require.NoError(t, e.AddDocument(10, "hamster hamster", index.StatusActual, nil))
	ex.Invalidate(ctx)

	after, err := ex.Execute(ctx, req)
	require.NoError(t, err)
	assert.False(t, after.CacheHit)
	assert.Len(t, after.Results, 2)
}

type flakySearcher struct {
	calls atomic.Int64
}

func (f *flakySearcher) FindTopDocuments(raw string) ([]ranker.ScoredDoc, error) {
	f.calls.Add(1)
	if raw == "bad" {
		return nil, errors.New("bad query")
	}
	return []ranker.ScoredDoc{{ID: len(raw)}}, nil
}

func TestProcessQueriesNLimit(t *testing.T) {
	s := &flakySearcher{}
	got, err := ProcessQueriesN(context.Background(), s, []string{"a", "bb", "ccc"}, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]ranker.ScoredDoc{{{ID: 1}}, {{ID: 2}}, {{ID: 3}}}, got)
	assert.Equal(t, int64(3), s.calls.Load())
}

func TestBindRunsBatchThroughExecutor(t *testing.T) {
	e := newEngine(t)
	c, err := cache.New(nil, cache.Options{})
	require.NoError(t, err)
	tracker := analytics.NewRequestTracker(e, 10)
	ex := New(Deps{Engine: e, Cache: c, Tracker: tracker})
	ctx := context.Background()

	queries := []string{"big", "big", "zebra"}
	got, err := ProcessQueriesN(ctx, ex.Bind(ctx, index.StatusActual, ranker.Sequential), queries, 1)
	require.NoError(t, err)
	want, err := e.FindTopDocuments("big")
	require.NoError(t, err)
	assert.Equal(t, want, got[0])
	assert.Equal(t, want, got[1])
	assert.Empty(t, got[2])

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
	assert.Equal(t, analytics.TrackerStats{Window: 10, Recorded: 3, Empty: 1}, tracker.Stats())
}

func BenchmarkExecute(b *testing.B) {
	e, err := indexer.NewEngineFromText("and with in", indexer.Options{Buckets: 64})
	require.NoError(b, err)
	words := []string{"funny", "pet", "nasty", "rat", "curly", "hair", "big", "cat", "dog", "collar", "tail", "eyes"}
	for id := range 5000 {
		text := words[id%len(words)] + " " + words[(id*7)%len(words)] + " " + words[(id*13+5)%len(words)]
		require.NoError(b, e.AddDocument(id, text, index.StatusActual, []int{id % 10}))
	}
	ctx := context.Background()

	for _, tc := range []struct {
		name   string
		mode   ranker.Mode
		cached bool
	}{
		{"sequential", ranker.Sequential, false},
		{"parallel", ranker.Parallel, false},
		{"cached", ranker.Sequential, true},
	} {
		b.Run(tc.name, func(b *testing.B) {
			deps := Deps{Engine: e}
			if tc.cached {
				c, err := cache.New(nil, cache.Options{})
				require.NoError(b, err)
				deps.Cache = c
			}
			ex := New(deps)
			req := Request{Query: "funny curly cat -rat", Status: index.StatusActual, Mode: tc.mode}
			b.ReportAllocs()
			for b.Loop() {
				if _, err := ex.Execute(ctx, req); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
