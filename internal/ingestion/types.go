// Package ingestion defines the request and event schemas used to add and
// remove documents, over HTTP or through the document-events Kafka topic.
package ingestion

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/indexer/index"
)

type Op string

const (
	OpAdd    Op = "add"
	OpRemove Op = "remove"
)

// AddDocumentRequest is the JSON body of POST /api/v1/documents. Status is
// one of actual, irrelevant, banned or removed and defaults to actual.
type AddDocumentRequest struct {
	ID      int          `json:"id"`
	Text    string       `json:"text"`
	Status  index.Status `json:"status"`
	Ratings []int        `json:"ratings"`
}

// DocumentEvent is the payload of the document-events topic.
type DocumentEvent struct {
	Op        Op           `json:"op"`
	ID        int          `json:"id"`
	Text      string       `json:"text,omitempty"`
	Status    index.Status `json:"status"`
	Ratings   []int        `json:"ratings,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// AddEvent converts an HTTP request into the event applied to the engine.
func (r AddDocumentRequest) AddEvent() DocumentEvent {
	return DocumentEvent{
		Op:        OpAdd,
		ID:        r.ID,
		Text:      r.Text,
		Status:    r.Status,
		Ratings:   r.Ratings,
		Timestamp: time.Now().UTC(),
	}
}

// DocumentResponse is returned after a write is accepted.
type DocumentResponse struct {
	ID     int    `json:"id"`
	Status string `json:"status"`
	State  string `json:"state"`
}
