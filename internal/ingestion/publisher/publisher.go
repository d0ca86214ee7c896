// Package publisher implements the asynchronous write path: documents are
// persisted as PENDING and published to the document-events topic, where the
// index consumer applies them to the engine.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/kafka"
)

type DocumentStore interface {
	Save(ctx context.Context, rec store.Record) error
	MarkIndexed(ctx context.Context, id int, state store.State) error
}

type Producer interface {
	Publish(ctx context.Context, event kafka.Event) error
}

type Publisher struct {
	store    DocumentStore
	producer Producer
	logger   *slog.Logger
}

// New creates a Publisher. st may be nil when persistence is disabled;
// producer may be nil, in which case every Publish fails with ErrUnavailable.
func New(st DocumentStore, producer Producer) *Publisher {
	return &Publisher{
		store:    st,
		producer: producer,
		logger:   slog.Default().With("component", "publisher"),
	}
}

func (p *Publisher) Enabled() bool {
	return p != nil && p.producer != nil
}

// Publish queues ev for indexing. Events are keyed by document id so every
// write to one id lands on the same partition, in order.
func (p *Publisher) Publish(ctx context.Context, ev ingestion.DocumentEvent) (*ingestion.DocumentResponse, error) {
	if !p.Enabled() {
		return nil, fmt.Errorf("%w: document events topic is not configured", apperrors.ErrUnavailable)
	}

	persisted := false
	if ev.Op == ingestion.OpAdd && p.store != nil {
		err := p.store.Save(ctx, store.Record{
			ID:      ev.ID,
			Text:    ev.Text,
			Status:  ev.Status,
			Ratings: ev.Ratings,
		})
		if err != nil {
			return nil, fmt.Errorf("persisting document %d: %w", ev.ID, err)
		}
		persisted = true
	}

	event := kafka.Event{Key: strconv.Itoa(ev.ID), Value: ev}
	if err := p.producer.Publish(ctx, event); err != nil {
		p.logger.Error("failed to publish document event",
			"doc_id", ev.ID,
			"op", ev.Op,
			"error", err,
		)
		if persisted {
			if mErr := p.store.MarkIndexed(ctx, ev.ID, store.StateFailed); mErr != nil {
				p.logger.Error("failed to mark unpublished document", "doc_id", ev.ID, "error", mErr)
			}
		}
		return nil, fmt.Errorf("%w: publishing document %d: %v", apperrors.ErrUnavailable, ev.ID, err)
	}

	p.logger.Debug("document event published", "doc_id", ev.ID, "op", ev.Op)
	return &ingestion.DocumentResponse{
		ID:     ev.ID,
		Status: ev.Status.String(),
		State:  string(store.StatePending),
	}, nil
}
