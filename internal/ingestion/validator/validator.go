// Package validator checks the shape of document writes before they reach
// the engine. Term-level rules (control characters, id uniqueness) are left
// to the engine itself.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/errors"
)

const (
	maxTextLength = 1048576
	maxRatings    = 10000
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrInvalidInput
}

// ValidateEvent checks a document event. Remove events only need an id.
func ValidateEvent(ev *ingestion.DocumentEvent) error {
	errs := make(map[string]string)
	switch ev.Op {
	case ingestion.OpAdd:
		validateAdd(ev.ID, ev.Text, ev.Status, ev.Ratings, errs)
	case ingestion.OpRemove:
		if ev.ID < 0 {
			errs["id"] = "id must not be negative"
		}
	default:
		errs["op"] = fmt.Sprintf("op must be %q or %q", ingestion.OpAdd, ingestion.OpRemove)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func ValidateAddRequest(req *ingestion.AddDocumentRequest) error {
	errs := make(map[string]string)
	validateAdd(req.ID, req.Text, req.Status, req.Ratings, errs)
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func validateAdd(id int, text string, status index.Status, ratings []int, errs map[string]string) {
	if id < 0 {
		errs["id"] = "id must not be negative"
	}
	if len(text) > maxTextLength {
		errs["text"] = fmt.Sprintf("text must be at most %d bytes", maxTextLength)
	}
	if status < index.StatusActual || status > index.StatusRemoved {
		errs["status"] = "unknown status"
	}
	if len(ratings) > maxRatings {
		errs["ratings"] = fmt.Sprintf("at most %d ratings", maxRatings)
	}
}
