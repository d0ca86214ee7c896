package executor

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/searcher/ranker"
)

// Searcher answers a single query. *indexer.Engine implements it.
type Searcher interface {
	FindTopDocuments(raw string) ([]ranker.ScoredDoc, error)
}

type SearcherFunc func(raw string) ([]ranker.ScoredDoc, error)

func (f SearcherFunc) FindTopDocuments(raw string) ([]ranker.ScoredDoc, error) {
	return f(raw)
}

// ProcessQueries runs every query in parallel and returns the results in
// input order. The first failing query cancels the rest and its error is
// returned.
func ProcessQueries(ctx context.Context, s Searcher, queries []string) ([][]ranker.ScoredDoc, error) {
	return ProcessQueriesN(ctx, s, queries, 0)
}

// ProcessQueriesN is ProcessQueries with at most concurrency queries in
// flight. Zero means GOMAXPROCS.
func ProcessQueriesN(ctx context.Context, s Searcher, queries []string, concurrency int) ([][]ranker.ScoredDoc, error) {
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	results := make([][]ranker.ScoredDoc, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, raw := range queries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			docs, err := s.FindTopDocuments(raw)
			if err != nil {
				return err
			}
			results[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ProcessQueriesJoined flattens ProcessQueries output, keeping query order
// and each query's ranking.
func ProcessQueriesJoined(ctx context.Context, s Searcher, queries []string) ([]ranker.ScoredDoc, error) {
	return ProcessQueriesJoinedN(ctx, s, queries, 0)
}

func ProcessQueriesJoinedN(ctx context.Context, s Searcher, queries []string, concurrency int) ([]ranker.ScoredDoc, error) {
	perQuery, err := ProcessQueriesN(ctx, s, queries, concurrency)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, docs := range perQuery {
		total += len(docs)
	}
	joined := make([]ranker.ScoredDoc, 0, total)
	for _, docs := range perQuery {
		joined = append(joined, docs...)
	}
	return joined, nil
}
