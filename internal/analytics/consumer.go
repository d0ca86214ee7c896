package analytics

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/kafka"
)

// DecodeEvent turns a published analytics payload back into a SearchEvent
// or IndexEvent according to its type field.
func DecodeEvent(value []byte) (Event, error) {
	head, err := kafka.DecodeJSON[struct {
		Type EventType `json:"type"`
	}](value)
	if err != nil {
		return nil, err
	}
	switch head.Type {
	case EventSearch, EventZeroResult:
		return kafka.DecodeJSON[SearchEvent](value)
	case EventIndexDoc, EventRemoveDoc, EventDuplicateRemoved:
		return kafka.DecodeJSON[IndexEvent](value)
	}
	return nil, nil
}

// HandleEvent feeds events from the analytics topic into r. Undecodable and
// unknown events are logged and skipped.
func HandleEvent(r Recorder) kafka.MessageHandler {
	logger := slog.Default().With("component", "analytics-consumer")
	return func(_ context.Context, key []byte, value []byte) error {
		event, err := DecodeEvent(value)
		if err != nil {
			logger.Warn("skipping undecodable analytics event", "key", string(key), "error", err)
			return nil
		}
		if event == nil {
			logger.Debug("skipping unknown analytics event", "key", string(key))
			return nil
		}
		r.Track(event)
		return nil
	}
}

