package index

import (
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/errors"
)

// Status is the moderation state of a document.
type Status int

const (
	StatusActual Status = iota
	StatusIrrelevant
	StatusBanned
	StatusRemoved
)

func (s Status) String() string {
	switch s {
	case StatusActual:
		return "actual"
	case StatusIrrelevant:
		return "irrelevant"
	case StatusBanned:
		return "banned"
	case StatusRemoved:
		return "removed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ParseStatus accepts the lowercase names produced by String, in any case.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "actual":
		return StatusActual, nil
	case "irrelevant":
		return StatusIrrelevant, nil
	case "banned":
		return StatusBanned, nil
	case "removed":
		return StatusRemoved, nil
	}
	return 0, fmt.Errorf("%w: unknown document status %q", apperrors.ErrInvalidInput, s)
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Document is an indexed document. It is never modified after AddDocument
// stores it.
type Document struct {
	ID        int
	Rating    int
	Status    Status
	TermFreqs map[string]float64
}

// Contains reports whether term was indexed for this document.
func (d *Document) Contains(term string) bool {
	_, ok := d.TermFreqs[term]
	return ok
}

func averageRating(ratings []int) int {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return sum / len(ratings)
}
