// Package consumer applies document writes to the engine. The same Applier
// serves the synchronous HTTP path, the document-events Kafka topic and the
// startup seed from PostgreSQL, so all three keep the cache, metrics,
// analytics and persisted index state consistent.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/metrics"
)

const (
	SourceHTTP  = "http"
	SourceKafka = "kafka"
	SourceSeed  = "seed"
)

type DocumentStore interface {
	Save(ctx context.Context, rec store.Record) error
	MarkIndexed(ctx context.Context, id int, state store.State) error
	Delete(ctx context.Context, ids ...int) (int64, error)
	LoadAll(ctx context.Context) ([]store.Record, error)
}

// Invalidator is told after every successful write. *executor.Executor
// implements it.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Deps other than Engine may be nil.
type Deps struct {
	Engine      *indexer.Engine
	Store       DocumentStore
	Invalidator Invalidator
	Recorder    analytics.Recorder
	Metrics     *metrics.Metrics
}

type Applier struct {
	engine      *indexer.Engine
	store       DocumentStore
	invalidator Invalidator
	recorder    analytics.Recorder
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func New(deps Deps) *Applier {
	return &Applier{
		engine:      deps.Engine,
		store:       deps.Store,
		invalidator: deps.Invalidator,
		recorder:    deps.Recorder,
		metrics:     deps.Metrics,
		logger:      slog.Default().With("component", "index-consumer"),
	}
}

// Apply dispatches ev by op. Documents arriving from Kafka were persisted by
// the publisher; HTTP writes are persisted here.
func (a *Applier) Apply(ctx context.Context, ev ingestion.DocumentEvent, source string) error {
	switch ev.Op {
	case ingestion.OpAdd:
		return a.Add(ctx, ev, source)
	case ingestion.OpRemove:
		return a.Remove(ctx, ev.ID, source)
	default:
		return fmt.Errorf("%w: unknown op %q", apperrors.ErrInvalidInput, ev.Op)
	}
}

func (a *Applier) Add(ctx context.Context, ev ingestion.DocumentEvent, source string) error {
	start := time.Now()
	persist := a.store != nil && source == SourceHTTP
	if persist {
		err := a.store.Save(ctx, store.Record{
			ID:      ev.ID,
			Text:    ev.Text,
			Status:  ev.Status,
			Ratings: ev.Ratings,
		})
		if err != nil {
			a.countOp("add", source, "error")
			return fmt.Errorf("persisting document %d: %w", ev.ID, err)
		}
	}

	if err := a.engine.AddDocument(ev.ID, ev.Text, ev.Status, ev.Ratings); err != nil {
		a.countOp("add", source, "error")
		switch {
		case source == SourceSeed:
		case errors.Is(err, apperrors.ErrDuplicateID):
			// The indexed copy never reached the store; drop the row just saved.
			if persist {
				if _, dErr := a.store.Delete(ctx, ev.ID); dErr != nil {
					a.logger.Error("failed to drop orphaned row", "doc_id", ev.ID, "error", dErr)
				}
			}
		default:
			a.markIndexed(ctx, ev.ID, store.StateFailed)
		}
		return fmt.Errorf("indexing document %d: %w", ev.ID, err)
	}
	if source != SourceSeed {
		a.markIndexed(ctx, ev.ID, store.StateIndexed)
		a.invalidate(ctx)
	}
	a.countOp("add", source, "ok")
	a.track(analytics.IndexEvent{
		Type:       analytics.EventIndexDoc,
		DocumentID: ev.ID,
		Source:     source,
		LatencyMs:  time.Since(start).Milliseconds(),
		Timestamp:  time.Now().UTC(),
	})
	a.logger.Debug("document indexed", "doc_id", ev.ID, "source", source)
	return nil
}

// Remove deletes id from the engine and the store. Unknown ids yield
// ErrDocumentNotFound and change nothing.
func (a *Applier) Remove(ctx context.Context, id int, source string) error {
	start := time.Now()
	if !a.engine.RemoveDocument(id) {
		a.countOp("remove", source, "not_found")
		return fmt.Errorf("%w: %d", apperrors.ErrDocumentNotFound, id)
	}
	if a.store != nil {
		if _, err := a.store.Delete(ctx, id); err != nil {
			a.logger.Error("failed to delete persisted document", "doc_id", id, "error", err)
		}
	}
	a.invalidate(ctx)
	a.countOp("remove", source, "ok")
	a.track(analytics.IndexEvent{
		Type:       analytics.EventRemoveDoc,
		DocumentID: id,
		Source:     source,
		LatencyMs:  time.Since(start).Milliseconds(),
		Timestamp:  time.Now().UTC(),
	})
	a.logger.Debug("document removed", "doc_id", id, "source", source)
	return nil
}

// RemoveDuplicates drops every document whose term set repeats an earlier
// one and returns the removed ids in insertion order.
func (a *Applier) RemoveDuplicates(ctx context.Context) ([]int, error) {
	removed := a.engine.RemoveDuplicates()
	if len(removed) == 0 {
		return removed, nil
	}
	for _, id := range removed {
		a.logger.Info("found duplicate document", "doc_id", id)
	}
	var err error
	if a.store != nil {
		if _, dErr := a.store.Delete(ctx, removed...); dErr != nil {
			err = fmt.Errorf("deleting duplicates from store: %w", dErr)
		}
	}
	a.invalidate(ctx)
	if a.metrics != nil {
		a.metrics.DuplicatesRemovedTotal.Add(float64(len(removed)))
	}
	now := time.Now().UTC()
	for _, id := range removed {
		a.track(analytics.IndexEvent{
			Type:       analytics.EventDuplicateRemoved,
			DocumentID: id,
			Source:     SourceHTTP,
			Timestamp:  now,
		})
	}
	return removed, err
}

// Seed loads the persisted corpus into the engine. Documents the engine
// rejects are marked FAILED and skipped.
func (a *Applier) Seed(ctx context.Context) (int, error) {
	if a.store == nil {
		return 0, nil
	}
	recs, err := a.store.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading documents: %w", err)
	}
	loaded := 0
	for _, rec := range recs {
		ev := ingestion.DocumentEvent{Op: ingestion.OpAdd, ID: rec.ID, Text: rec.Text, Status: rec.Status, Ratings: rec.Ratings}
		if err := a.Add(ctx, ev, SourceSeed); err != nil {
			a.logger.Warn("skipping persisted document", "doc_id", rec.ID, "error", err)
			a.markIndexed(ctx, rec.ID, store.StateFailed)
			continue
		}
		if rec.State != store.StateIndexed {
			a.markIndexed(ctx, rec.ID, store.StateIndexed)
		}
		loaded++
	}
	a.invalidate(ctx)
	a.logger.Info("corpus loaded from store", "documents", loaded, "skipped", len(recs)-loaded)
	return loaded, nil
}

// HandleMessage is the kafka.MessageHandler for the document-events topic.
// Malformed payloads and events the engine rejects are logged and committed;
// only infrastructure failures are returned, which leaves the offset
// uncommitted.
func (a *Applier) HandleMessage() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		ev, err := kafka.DecodeJSON[ingestion.DocumentEvent](value)
		if err != nil {
			a.logger.Error("failed to decode document event", "error", err, "key", string(key))
			return nil
		}
		if err := validator.ValidateEvent(&ev); err != nil {
			a.logger.Error("invalid document event", "error", err, "key", string(key))
			return nil
		}
		err = a.Apply(ctx, ev, SourceKafka)
		switch {
		case err == nil:
			return nil
		case isRejection(err):
			a.logger.Warn("document event rejected", "doc_id", ev.ID, "op", ev.Op, "error", err)
			return nil
		default:
			return err
		}
	}
}

func isRejection(err error) bool {
	return errors.Is(err, apperrors.ErrInvalidID) ||
		errors.Is(err, apperrors.ErrDuplicateID) ||
		errors.Is(err, apperrors.ErrInvalidCharacter) ||
		errors.Is(err, apperrors.ErrInvalidInput) ||
		errors.Is(err, apperrors.ErrDocumentNotFound)
}

func (a *Applier) markIndexed(ctx context.Context, id int, state store.State) {
	if a.store == nil {
		return
	}
	if err := a.store.MarkIndexed(ctx, id, state); err != nil {
		a.logger.Error("failed to update document state", "doc_id", id, "state", state, "error", err)
	}
}

func (a *Applier) invalidate(ctx context.Context) {
	if a.invalidator != nil {
		a.invalidator.Invalidate(ctx)
	}
}

func (a *Applier) countOp(op, source, status string) {
	if a.metrics != nil {
		a.metrics.DocumentOpsTotal.WithLabelValues(op, source, status).Inc()
	}
}

func (a *Applier) track(ev analytics.IndexEvent) {
	if a.recorder != nil {
		a.recorder.Track(ev)
	}
}
