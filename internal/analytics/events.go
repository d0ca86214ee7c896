package analytics

import "time"

type EventType string

const (
	EventSearch           EventType = "search"
	EventZeroResult       EventType = "zero_result"
	EventIndexDoc         EventType = "index_document"
	EventRemoveDoc        EventType = "remove_document"
	EventDuplicateRemoved EventType = "duplicate_removed"
)

type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Mode      string    `json:"mode"`
	Status    string    `json:"status"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

type IndexEvent struct {
	Type       EventType `json:"type"`
	DocumentID int       `json:"document_id"`
	Source     string    `json:"source"`
	LatencyMs  int64     `json:"latency_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// Key is the partition key used when the event is published.
func (e SearchEvent) Key() string { return string(e.Type) }

func (e IndexEvent) Key() string { return string(e.Type) }
