package indexer

import (
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/dedup"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/errors"
)

type Options struct {
	// Mode is used by the FindTopDocuments convenience methods.
	Mode    ranker.Mode
	Buckets int
	Workers int
}

// Engine is the search façade over an index. Writes take an exclusive lock;
// queries share a read lock, so a query never observes a half-applied write.
type Engine struct {
	mu     sync.RWMutex
	idx    *index.Index
	parser *parser.Parser
	ranker *ranker.Ranker
	mode   ranker.Mode
}

func NewEngine(stopWords tokenizer.StopWords, opts Options) *Engine {
	idx := index.New(stopWords)
	return &Engine{
		idx:    idx,
		parser: parser.New(stopWords),
		ranker: ranker.New(idx, ranker.Options{Buckets: opts.Buckets, Workers: opts.Workers}),
		mode:   opts.Mode,
	}
}

// NewEngineFromWords fails with ErrInvalidCharacter if any stop word holds a
// control character.
func NewEngineFromWords(words []string, opts Options) (*Engine, error) {
	sw, err := tokenizer.NewStopWords(words)
	if err != nil {
		return nil, fmt.Errorf("building stop words: %w", err)
	}
	return NewEngine(sw, opts), nil
}

// NewEngineFromText takes stop words as one space-separated string.
func NewEngineFromText(text string, opts Options) (*Engine, error) {
	sw, err := tokenizer.ParseStopWords(text)
	if err != nil {
		return nil, fmt.Errorf("building stop words: %w", err)
	}
	return NewEngine(sw, opts), nil
}

func (e *Engine) Mode() ranker.Mode {
	return e.mode
}

func (e *Engine) StopWords() tokenizer.StopWords {
	return e.idx.StopWords()
}

// ParseQuery validates raw without ranking it.
func (e *Engine) ParseQuery(raw string) (parser.Query, error) {
	return e.parser.Parse(raw)
}

func (e *Engine) AddDocument(id int, text string, status index.Status, ratings []int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.idx.AddDocument(id, text, status, ratings)
}

// FindTopDocuments returns the best actual documents for raw.
func (e *Engine) FindTopDocuments(raw string) ([]ranker.ScoredDoc, error) {
	return e.FindTopDocumentsMode(e.mode, raw, ranker.DefaultFilter)
}

func (e *Engine) FindTopDocumentsByStatus(raw string, status index.Status) ([]ranker.ScoredDoc, error) {
	return e.FindTopDocumentsMode(e.mode, raw, ranker.StatusFilter(status))
}

func (e *Engine) FindTopDocumentsFunc(raw string, filter ranker.Filter) ([]ranker.ScoredDoc, error) {
	return e.FindTopDocumentsMode(e.mode, raw, filter)
}

// FindTopDocumentsMode parses raw and ranks under mode. A nil filter keeps
// actual documents.
func (e *Engine) FindTopDocumentsMode(mode ranker.Mode, raw string, filter ranker.Filter) ([]ranker.ScoredDoc, error) {
	q, err := e.parser.Parse(raw)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ranker.Rank(mode, q, filter), nil
}

// MatchDocument lists the plus terms of raw present in document id, sorted.
// The list is empty when the document contains any minus term.
func (e *Engine) MatchDocument(raw string, id int) ([]string, index.Status, error) {
	q, err := e.parser.Parse(raw)
	if err != nil {
		return nil, 0, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	doc, ok := e.idx.Document(id)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %d", apperrors.ErrDocumentNotFound, id)
	}
	matched := make([]string, 0, len(q.PlusTerms))
	if slices.ContainsFunc(q.MinusTerms, doc.Contains) {
		return matched, doc.Status, nil
	}
	for _, term := range q.PlusTerms {
		if doc.Contains(term) {
			matched = append(matched, term)
		}
	}
	return matched, doc.Status, nil
}

func (e *Engine) DocumentCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.idx.DocumentCount()
}

func (e *Engine) DocumentID(pos int) (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.idx.DocumentID(pos)
}

// IDs returns document ids in insertion order.
func (e *Engine) IDs() []int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.idx.IDs()
}

// All iterates over a snapshot of the ids taken when iteration starts.
func (e *Engine) All() iter.Seq[int] {
	return func(yield func(int) bool) {
		for _, id := range e.IDs() {
			if !yield(id) {
				return
			}
		}
	}
}

func (e *Engine) TermFrequencies(id int) map[string]float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.idx.TermFrequencies(id)
}

func (e *Engine) Contains(id int) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.idx.Document(id)
	return ok
}

// RemoveDocument reports whether id was present. Unknown ids change nothing.
func (e *Engine) RemoveDocument(id int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.idx.Document(id); !ok {
		return false
	}
	e.idx.RemoveDocument(id)
	return true
}

// RemoveDuplicates drops every document whose term set equals that of an
// earlier document and returns the removed ids in insertion order.
func (e *Engine) RemoveDuplicates() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return dedup.RemoveDuplicates(e.idx)
}
