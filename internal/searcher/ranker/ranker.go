// Package ranker scores documents against a parsed query with TF-IDF and
// returns the best matches. Accumulation runs either on the calling
// goroutine or fanned out over workers that share a lock-striped map; both
// modes produce identical results.
package ranker

import (
	"fmt"
	"math"
	"runtime"
	"slices"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/concurrentmap"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/errors"
)

const (
	MaxResults       = 5
	RelevanceEpsilon = 1e-6

	defaultBuckets  = 100
	chunksPerWorker = 4
)

// Mode selects how relevance accumulation is executed.
type Mode int

const (
	Sequential Mode = iota
	Parallel
)

func (m Mode) String() string {
	switch m {
	case Sequential:
		return "sequential"
	case Parallel:
		return "parallel"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sequential", "seq":
		return Sequential, nil
	case "parallel", "par":
		return Parallel, nil
	}
	return 0, fmt.Errorf("%w: unknown execution mode %q", apperrors.ErrInvalidInput, s)
}

// Filter decides whether a document may appear in results. In Parallel mode
// it is called from several goroutines at once.
type Filter func(id int, status index.Status, rating int) bool

// StatusFilter keeps documents with the given status.
func StatusFilter(status index.Status) Filter {
	return func(_ int, s index.Status, _ int) bool {
		return s == status
	}
}

// DefaultFilter keeps actual documents.
var DefaultFilter = StatusFilter(index.StatusActual)

type ScoredDoc struct {
	ID        int     `json:"id"`
	Relevance float64 `json:"relevance"`
	Rating    int     `json:"rating"`
}

type Options struct {
	// Buckets is the bucket count of the accumulation map in Parallel mode.
	Buckets int
	// Workers caps concurrent accumulation goroutines. Zero means GOMAXPROCS.
	Workers int
}

type Ranker struct {
	idx     *index.Index
	buckets int
	workers int
}

func New(idx *index.Index, opts Options) *Ranker {
	if opts.Buckets <= 0 {
		opts.Buckets = defaultBuckets
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Ranker{
		idx:     idx,
		buckets: opts.Buckets,
		workers: opts.Workers,
	}
}

// Rank returns at most MaxResults documents ordered by descending relevance,
// ties within RelevanceEpsilon broken by descending rating.
func (r *Ranker) Rank(mode Mode, q parser.Query, filter Filter) []ScoredDoc {
	matched := r.FindAllDocuments(mode, q, filter)
	return SortAndTruncate(matched, MaxResults)
}

type weightedTerm struct {
	term string
	idf  float64
}

// FindAllDocuments scores every document that passes filter and contains a
// plus term, then drops any document containing a minus term. The result is
// ordered by id.
func (r *Ranker) FindAllDocuments(mode Mode, q parser.Query, filter Filter) []ScoredDoc {
	if filter == nil {
		filter = DefaultFilter
	}
	terms := make([]weightedTerm, 0, len(q.PlusTerms))
	for _, term := range q.PlusTerms {
		if idf, ok := r.idx.InverseDocumentFrequency(term); ok {
			terms = append(terms, weightedTerm{term: term, idf: idf})
		}
	}
	docs := r.idx.Documents()

	var relevance map[int]float64
	switch mode {
	case Parallel:
		relevance = r.accumulateParallel(docs, terms, filter)
	default:
		relevance = accumulateSequential(docs, terms, filter)
	}

	for _, term := range q.MinusTerms {
		if r.idx.CountDocumentsContaining(term) == 0 {
			continue
		}
		for _, doc := range docs {
			if doc.Contains(term) {
				delete(relevance, doc.ID)
			}
		}
	}

	ids := make([]int, 0, len(relevance))
	for id := range relevance {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	matched := make([]ScoredDoc, 0, len(ids))
	for _, id := range ids {
		doc, _ := r.idx.Document(id)
		matched = append(matched, ScoredDoc{
			ID:        id,
			Relevance: relevance[id],
			Rating:    doc.Rating,
		})
	}
	return matched
}

func accumulateSequential(docs []*index.Document, terms []weightedTerm, filter Filter) map[int]float64 {
	relevance := make(map[int]float64)
	for _, t := range terms {
		for _, doc := range docs {
			if filter(doc.ID, doc.Status, doc.Rating) && doc.Contains(t.term) {
				relevance[doc.ID] += weight(doc.TermFreqs[t.term], t.idf)
			}
		}
	}
	return relevance
}

// accumulateParallel splits docs into chunks handled by a bounded worker
// group. Each document's contributions are added in term order, the same
// order accumulateSequential uses, so the sums are bit-identical.
func (r *Ranker) accumulateParallel(docs []*index.Document, terms []weightedTerm, filter Filter) map[int]float64 {
	acc := concurrentmap.New[int, float64](r.buckets)
	if len(docs) == 0 || len(terms) == 0 {
		return acc.ToOrdinaryMap()
	}
	chunkSize := (len(docs) + r.workers*chunksPerWorker - 1) / (r.workers * chunksPerWorker)

	var g errgroup.Group
	g.SetLimit(r.workers)
	for chunk := range slices.Chunk(docs, chunkSize) {
		g.Go(func() error {
			for _, doc := range chunk {
				for _, t := range terms {
					if !filter(doc.ID, doc.Status, doc.Rating) || !doc.Contains(t.term) {
						continue
					}
					contribution := weight(doc.TermFreqs[t.term], t.idf)
					acc.Update(doc.ID, func(v *float64) { *v += contribution })
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return acc.ToOrdinaryMap()
}

// weight rounds the product before it is summed; the conversion stops the
// compiler from fusing it into a multiply-add that only one mode would get.
func weight(tf, idf float64) float64 {
	return float64(tf * idf)
}

// SortAndTruncate orders docs in place by descending relevance, breaking
// near-ties by descending rating, and keeps at most limit entries.
func SortAndTruncate(docs []ScoredDoc, limit int) []ScoredDoc {
	sort.SliceStable(docs, func(i, j int) bool {
		if math.Abs(docs[i].Relevance-docs[j].Relevance) < RelevanceEpsilon {
			return docs[i].Rating > docs[j].Rating
		}
		return docs[i].Relevance > docs[j].Relevance
	})
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs
}
