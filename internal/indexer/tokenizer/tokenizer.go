// Package tokenizer splits document and query text into words and holds the
// stop-word set. Splitting happens on the single space character only: two
// adjacent spaces produce an empty word, and callers decide what to do with it.
package tokenizer

import (
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/errors"
)

// SplitIntoWords splits text on ' '. The result always has at least one
// element; the text after the last space is the final word.
func SplitIntoWords(text string) []string {
	return strings.Split(text, " ")
}

// IsValidWord reports whether word is free of control characters (bytes
// below 0x20).
func IsValidWord(word string) bool {
	for i := 0; i < len(word); i++ {
		if word[i] < ' ' {
			return false
		}
	}
	return true
}

// StopWords is an immutable set of words excluded from indexing and
// matching.
type StopWords struct {
	words map[string]struct{}
}

// NewStopWords builds a set from words, dropping empty entries. It fails
// with ErrInvalidCharacter if any word contains a control character.
func NewStopWords(words []string) (StopWords, error) {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if w == "" {
			continue
		}
		if !IsValidWord(w) {
			return StopWords{}, fmt.Errorf("stop word %q: %w", w, apperrors.ErrInvalidCharacter)
		}
		set[w] = struct{}{}
	}
	return StopWords{words: set}, nil
}

// ParseStopWords builds a set from a single space-separated string.
func ParseStopWords(text string) (StopWords, error) {
	return NewStopWords(SplitIntoWords(text))
}

func (s StopWords) Contains(word string) bool {
	_, ok := s.words[word]
	return ok
}

func (s StopWords) Len() int {
	return len(s.words)
}

// Words returns the stop words in ascending order.
func (s StopWords) Words() []string {
	out := make([]string, 0, len(s.words))
	for w := range s.words {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}
