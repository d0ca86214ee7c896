// Package index stores documents and their per-document term frequencies.
// An Index is not safe for concurrent mutation; callers serialise writes and
// must not write while a ranking pass reads it.
package index

import (
	"fmt"
	"iter"
	"maps"
	"math"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/errors"
)

type Index struct {
	stopWords tokenizer.StopWords
	pool      *TermPool
	documents map[int]*Document
	ids       []int
	docFreq   map[string]int
}

func New(stopWords tokenizer.StopWords) *Index {
	return &Index{
		stopWords: stopWords,
		pool:      NewTermPool(),
		documents: make(map[int]*Document),
		docFreq:   make(map[string]int),
	}
}

func (x *Index) StopWords() tokenizer.StopWords {
	return x.stopWords
}

// AddDocument indexes text under id. The index is left untouched when an
// error is returned.
func (x *Index) AddDocument(id int, text string, status Status, ratings []int) error {
	if id < 0 {
		return fmt.Errorf("%w: %d is negative", apperrors.ErrInvalidID, id)
	}
	if _, exists := x.documents[id]; exists {
		return fmt.Errorf("%w: %d", apperrors.ErrDuplicateID, id)
	}
	words, err := x.splitNoStop(text)
	if err != nil {
		return fmt.Errorf("document %d: %w", id, err)
	}

	freqs := make(map[string]float64, len(words))
	if len(words) > 0 {
		invWordCount := 1.0 / float64(len(words))
		for _, w := range words {
			freqs[x.pool.Intern(w)] += invWordCount
		}
	}
	for term := range freqs {
		x.docFreq[term]++
	}
	x.documents[id] = &Document{
		ID:        id,
		Rating:    averageRating(ratings),
		Status:    status,
		TermFreqs: freqs,
	}
	x.ids = append(x.ids, id)
	return nil
}

func (x *Index) splitNoStop(text string) ([]string, error) {
	raw := tokenizer.SplitIntoWords(text)
	words := make([]string, 0, len(raw))
	for _, w := range raw {
		if !tokenizer.IsValidWord(w) {
			return nil, fmt.Errorf("word %q: %w", w, apperrors.ErrInvalidCharacter)
		}
		if w == "" || x.stopWords.Contains(w) {
			continue
		}
		words = append(words, w)
	}
	return words, nil
}

// RemoveDocument deletes id. Absent ids are ignored.
func (x *Index) RemoveDocument(id int) {
	doc, ok := x.documents[id]
	if !ok {
		return
	}
	for term := range doc.TermFreqs {
		if x.docFreq[term] <= 1 {
			delete(x.docFreq, term)
		} else {
			x.docFreq[term]--
		}
	}
	delete(x.documents, id)
	if pos := slices.Index(x.ids, id); pos >= 0 {
		x.ids = slices.Delete(x.ids, pos, pos+1)
	}
}

func (x *Index) DocumentCount() int {
	return len(x.documents)
}

// DocumentID returns the id at position pos in insertion order.
func (x *Index) DocumentID(pos int) (int, error) {
	if pos < 0 || pos >= len(x.ids) {
		return 0, fmt.Errorf("%w: %d not in [0, %d)", apperrors.ErrIndexOutOfRange, pos, len(x.ids))
	}
	return x.ids[pos], nil
}

// IDs returns a copy of the ids in insertion order.
func (x *Index) IDs() []int {
	return slices.Clone(x.ids)
}

// All iterates ids in insertion order. The index must not be modified
// during iteration.
func (x *Index) All() iter.Seq[int] {
	return func(yield func(int) bool) {
		for _, id := range x.ids {
			if !yield(id) {
				return
			}
		}
	}
}

// Documents returns the stored documents in insertion order. The returned
// documents are shared and must be treated as read-only.
func (x *Index) Documents() []*Document {
	docs := make([]*Document, 0, len(x.ids))
	for _, id := range x.ids {
		docs = append(docs, x.documents[id])
	}
	return docs
}

func (x *Index) Document(id int) (*Document, bool) {
	doc, ok := x.documents[id]
	return doc, ok
}

// TermFrequencies returns a copy of the term frequency map of id, or an
// empty map when id is absent.
func (x *Index) TermFrequencies(id int) map[string]float64 {
	doc, ok := x.documents[id]
	if !ok {
		return map[string]float64{}
	}
	return maps.Clone(doc.TermFreqs)
}

func (x *Index) CountDocumentsContaining(term string) int {
	return x.docFreq[term]
}

// InverseDocumentFrequency returns ln(N / df). ok is false when no document
// contains term, in which case the value is meaningless.
func (x *Index) InverseDocumentFrequency(term string) (idf float64, ok bool) {
	df := x.docFreq[term]
	if df == 0 {
		return 0, false
	}
	return math.Log(float64(len(x.documents)) / float64(df)), true
}

// PoolSize reports the number of distinct terms ever interned.
func (x *Index) PoolSize() int {
	return x.pool.Len()
}
