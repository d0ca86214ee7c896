// Package parser turns raw query text into plus and minus term sets.
package parser

import (
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/errors"
)

// Query is the parsed form of a raw query. PlusTerms and MinusTerms are
// sorted and free of duplicates and stop words.
type Query struct {
	PlusTerms  []string
	MinusTerms []string
	RawQuery   string
}

// Empty reports whether the query has no terms at all.
func (q Query) Empty() bool {
	return len(q.PlusTerms) == 0 && len(q.MinusTerms) == 0
}

type Parser struct {
	stopWords tokenizer.StopWords
}

func New(stopWords tokenizer.StopWords) *Parser {
	return &Parser{stopWords: stopWords}
}

type queryWord struct {
	term    string
	isMinus bool
	isStop  bool
}

// Parse splits raw into words and classifies each one. A leading '-' marks a
// minus word. An empty word, including the one an empty query yields, is
// ErrEmptyWord. Stop words are dropped from both sets.
func (p *Parser) Parse(raw string) (Query, error) {
	plus := make(map[string]struct{})
	minus := make(map[string]struct{})
	for i, word := range tokenizer.SplitIntoWords(raw) {
		if word == "" {
			return Query{}, fmt.Errorf("%w at position %d", apperrors.ErrEmptyWord, i)
		}
		qw, err := p.parseWord(word)
		if err != nil {
			return Query{}, err
		}
		if qw.isStop {
			continue
		}
		if qw.isMinus {
			minus[qw.term] = struct{}{}
		} else {
			plus[qw.term] = struct{}{}
		}
	}
	return Query{
		PlusTerms:  sortedKeys(plus),
		MinusTerms: sortedKeys(minus),
		RawQuery:   raw,
	}, nil
}

func (p *Parser) parseWord(word string) (queryWord, error) {
	isMinus := false
	if word[0] == '-' {
		isMinus = true
		word = word[1:]
	}
	switch {
	case word == "":
		return queryWord{}, apperrors.ErrEmptyMinusWord
	case word[0] == '-':
		return queryWord{}, fmt.Errorf("%w: %q", apperrors.ErrDoubleMinusPrefix, "-"+word)
	case !tokenizer.IsValidWord(word):
		return queryWord{}, fmt.Errorf("query word %q: %w", word, apperrors.ErrInvalidCharacter)
	}
	return queryWord{
		term:    word,
		isMinus: isMinus,
		isStop:  p.stopWords.Contains(word),
	}, nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
