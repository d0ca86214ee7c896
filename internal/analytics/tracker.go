package analytics

import (
	"sync"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/searcher/ranker"
)

// DefaultWindow is the number of requests remembered: one per minute of a day.
const DefaultWindow = 1440

// Searcher is the query surface the tracker forwards to.
type Searcher interface {
	FindTopDocumentsFunc(raw string, filter ranker.Filter) ([]ranker.ScoredDoc, error)
}

// RequestTracker remembers whether each of the last Window requests returned
// nothing. Requests that fail to parse are not recorded.
type RequestTracker struct {
	searcher Searcher

	mu     sync.Mutex
	empty  []bool
	next   int
	size   int
	nEmpty int
}

type TrackerStats struct {
	Window   int `json:"window"`
	Recorded int `json:"recorded"`
	Empty    int `json:"empty"`
}

func NewRequestTracker(searcher Searcher, window int) *RequestTracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &RequestTracker{
		searcher: searcher,
		empty:    make([]bool, window),
	}
}

func (t *RequestTracker) RecordRequest(raw string, filter ranker.Filter) ([]ranker.ScoredDoc, error) {
	docs, err := t.searcher.FindTopDocumentsFunc(raw, filter)
	if err != nil {
		return nil, err
	}
	t.Observe(len(docs))
	return docs, nil
}

func (t *RequestTracker) RecordRequestByStatus(raw string, status index.Status) ([]ranker.ScoredDoc, error) {
	return t.RecordRequest(raw, ranker.StatusFilter(status))
}

func (t *RequestTracker) RecordDefault(raw string) ([]ranker.ScoredDoc, error) {
	return t.RecordRequest(raw, ranker.DefaultFilter)
}

// Observe records a request answered elsewhere, such as from a cache, that
// returned results documents.
func (t *RequestTracker) Observe(results int) {
	isEmpty := results == 0

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.size == len(t.empty) {
		if t.empty[t.next] {
			t.nEmpty--
		}
	} else {
		t.size++
	}
	t.empty[t.next] = isEmpty
	if isEmpty {
		t.nEmpty++
	}
	t.next = (t.next + 1) % len(t.empty)
}

// EmptyRequestCount is the number of remembered requests that returned no
// documents.
func (t *RequestTracker) EmptyRequestCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nEmpty
}

func (t *RequestTracker) Stats() TrackerStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TrackerStats{
		Window:   len(t.empty),
		Recorded: t.size,
		Empty:    t.nEmpty,
	}
}
