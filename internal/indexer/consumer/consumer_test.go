package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/metrics"
)

type memStore struct {
	order []int
	recs  map[int]store.Record
}

func newMemStore(recs ...store.Record) *memStore {
	m := &memStore{recs: map[int]store.Record{}}
	for _, r := range recs {
		r.State = store.StatePending
		m.order = append(m.order, r.ID)
		m.recs[r.ID] = r
	}
	return m
}

func (m *memStore) Save(_ context.Context, rec store.Record) error {
	if old, ok := m.recs[rec.ID]; ok && old.State != store.StateFailed {
		return fmt.Errorf("%w: %d", apperrors.ErrDuplicateID, rec.ID)
	}
	rec.State = store.StatePending
	if _, ok := m.recs[rec.ID]; !ok {
		m.order = append(m.order, rec.ID)
	}
	m.recs[rec.ID] = rec
	return nil
}

func (m *memStore) MarkIndexed(_ context.Context, id int, state store.State) error {
	rec, ok := m.recs[id]
	if ok {
		rec.State = state
		m.recs[id] = rec
	}
	return nil
}

func (m *memStore) Delete(_ context.Context, ids ...int) (int64, error) {
	var n int64
	for _, id := range ids {
		if _, ok := m.recs[id]; ok {
			delete(m.recs, id)
			m.order = slices.DeleteFunc(m.order, func(x int) bool { return x == id })
			n++
		}
	}
	return n, nil
}

func (m *memStore) LoadAll(context.Context) ([]store.Record, error) {
	var out []store.Record
	for _, id := range m.order {
		if r := m.recs[id]; r.State != store.StateFailed {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) state(id int) store.State { return m.recs[id].State }

type countingInvalidator struct{ n atomic.Int64 }

func (c *countingInvalidator) Invalidate(context.Context) { c.n.Add(1) }

type fixture struct {
	engine  *indexer.Engine
	store   *memStore
	inv     *countingInvalidator
	agg     *analytics.Aggregator
	metrics *metrics.Metrics
	applier *Applier
}

func newFixture(t *testing.T, recs ...store.Record) *fixture {
	t.Helper()
	e, err := indexer.NewEngineFromText("and in", indexer.Options{})
	require.NoError(t, err)
	f := &fixture{
		engine:  e,
		store:   newMemStore(recs...),
		inv:     &countingInvalidator{},
		agg:     analytics.NewAggregator(),
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	f.applier = New(Deps{
		Engine:      e,
		Store:       f.store,
		Invalidator: f.inv,
		Recorder:    f.agg,
		Metrics:     f.metrics,
	})
	return f
}

func add(id int, text string) ingestion.DocumentEvent {
	return ingestion.DocumentEvent{Op: ingestion.OpAdd, ID: id, Text: text, Status: index.StatusActual, Ratings: []int{2, 4}}
}

func TestAddFromHTTPPersistsAndIndexes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.applier.Add(ctx, add(1, "white cat"), SourceHTTP))
	assert.True(t, f.engine.Contains(1))
	assert.Equal(t, store.StateIndexed, f.store.state(1))
	assert.Equal(t, int64(1), f.inv.n.Load())
	assert.Equal(t, int64(1), f.agg.Stats().DocumentsIndexed)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DocumentOpsTotal.WithLabelValues("add", "http", "ok")))

	err := f.applier.Add(ctx, add(1, "black dog"), SourceHTTP)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateID)
	assert.Equal(t, store.StateIndexed, f.store.state(1))
	assert.Equal(t, int64(1), f.inv.n.Load())
}

func TestAddRejectedByEngineIsMarkedFailed(t *testing.T) {
	f := newFixture(t)
	err := f.applier.Add(context.Background(), add(2, "bad\x02word"), SourceHTTP)
	assert.ErrorIs(t, err, apperrors.ErrInvalidCharacter)
	assert.False(t, f.engine.Contains(2))
	assert.Equal(t, store.StateFailed, f.store.state(2))
	assert.Zero(t, f.inv.n.Load())

	require.NoError(t, f.applier.Add(context.Background(), add(2, "good word"), SourceHTTP))
	assert.Equal(t, store.StateIndexed, f.store.state(2))
}

func TestAddOverKafkaIndexedIDDropsNewRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.applier.Add(ctx, add(3, "grey cat"), SourceKafka))
	assert.NotContains(t, f.store.recs, 3)

	err := f.applier.Add(ctx, add(3, "grey dog"), SourceHTTP)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateID)
	assert.NotContains(t, f.store.recs, 3)
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.applier.Add(ctx, add(1, "cat"), SourceHTTP))

	require.NoError(t, f.applier.Remove(ctx, 1, SourceHTTP))
	assert.False(t, f.engine.Contains(1))
	assert.NotContains(t, f.store.recs, 1)
	assert.Equal(t, int64(1), f.agg.Stats().DocumentsRemoved)

	err := f.applier.Remove(ctx, 1, SourceHTTP)
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
}

func TestConcurrentRemoveSucceedsOnce(t *testing.T) {
	e, err := indexer.NewEngineFromText("", indexer.Options{})
	require.NoError(t, err)
	agg := analytics.NewAggregator()
	m := metrics.New(prometheus.NewRegistry())
	a := New(Deps{Engine: e, Recorder: agg, Metrics: m})
	require.NoError(t, e.AddDocument(5, "lone cat", index.StatusActual, nil))

	const callers = 16
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		notFound  atomic.Int64
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := a.Remove(context.Background(), 5, SourceKafka)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, apperrors.ErrDocumentNotFound):
				notFound.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), succeeded.Load())
	assert.Equal(t, int64(callers-1), notFound.Load())
	assert.Equal(t, int64(1), agg.Stats().DocumentsRemoved)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocumentOpsTotal.WithLabelValues("remove", "kafka", "ok")))
}

func TestRemoveDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, ev := range []ingestion.DocumentEvent{add(1, "funny pet"), add(2, "pet funny"), add(3, "nasty rat"), add(4, "funny funny pet")} {
		require.NoError(t, f.applier.Add(ctx, ev, SourceHTTP))
	}

	removed, err := f.applier.RemoveDuplicates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4}, removed)
	assert.Equal(t, []int{1, 3}, f.engine.IDs())
	assert.Len(t, f.store.recs, 2)
	assert.Equal(t, int64(2), f.agg.Stats().DuplicatesRemoved)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.DuplicatesRemovedTotal))

	removed, err = f.applier.RemoveDuplicates(ctx)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestSeed(t *testing.T) {
	f := newFixture(t,
		store.Record{ID: 3, Text: "curly dog", Ratings: []int{1}},
		store.Record{ID: 1, Text: "broken\x01", Ratings: nil},
		store.Record{ID: 2, Text: "white cat"},
	)

	n, err := f.applier.Seed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int{3, 2}, f.engine.IDs())
	assert.Equal(t, store.StateIndexed, f.store.state(3))
	assert.Equal(t, store.StateFailed, f.store.state(1))
	assert.Equal(t, int64(1), f.inv.n.Load())
}

func TestSeedWithoutStore(t *testing.T) {
	e, err := indexer.NewEngineFromText("", indexer.Options{})
	require.NoError(t, err)
	n, err := New(Deps{Engine: e}).Seed(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHandleMessage(t *testing.T) {
	f := newFixture(t, store.Record{ID: 5, Text: "sparrow bird"})
	handle := f.applier.HandleMessage()
	ctx := context.Background()

	payload := func(ev ingestion.DocumentEvent) []byte {
		data, err := json.Marshal(ev)
		require.NoError(t, err)
		return data
	}

	require.NoError(t, handle(ctx, []byte("5"), payload(add(5, "sparrow bird"))))
	assert.True(t, f.engine.Contains(5))
	assert.Equal(t, store.StateIndexed, f.store.state(5))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DocumentOpsTotal.WithLabelValues("add", "kafka", "ok")))

	// Redelivery of the same event is rejected and committed.
	require.NoError(t, handle(ctx, []byte("5"), payload(add(5, "sparrow bird"))))
	assert.Equal(t, store.StateIndexed, f.store.state(5))

	assert.NoError(t, handle(ctx, nil, []byte("{not json")))
	assert.NoError(t, handle(ctx, nil, []byte(`{"op":"upsert","id":1}`)))
	assert.NoError(t, handle(ctx, nil, payload(ingestion.DocumentEvent{Op: ingestion.OpRemove, ID: 404})))

	require.NoError(t, handle(ctx, []byte("5"), payload(ingestion.DocumentEvent{Op: ingestion.OpRemove, ID: 5})))
	assert.False(t, f.engine.Contains(5))
}

func TestApplyUnknownOp(t *testing.T) {
	f := newFixture(t)
	err := f.applier.Apply(context.Background(), ingestion.DocumentEvent{Op: "noop"}, SourceHTTP)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
