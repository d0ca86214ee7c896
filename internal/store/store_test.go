package store

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/postgres"
)

func newTestStore(t *testing.T) *DocumentStore {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := New(&postgres.Client{DB: db})
	ctx := context.Background()
	require.NoError(t, s.EnsureSchema(ctx))
	_, err = db.ExecContext(ctx, `TRUNCATE documents`)
	require.NoError(t, err)
	return s
}

func TestSaveAndLoadAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, Record{ID: 2, Text: "white cat", Status: index.StatusActual, Ratings: []int{8, -3}}))
	require.NoError(t, s.Save(ctx, Record{ID: 1, Text: "fluffy dog", Status: index.StatusBanned}))

	err := s.Save(ctx, Record{ID: 2, Text: "again"})
	assert.ErrorIs(t, err, apperrors.ErrDuplicateID)

	recs, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 2, recs[0].ID)
	assert.Equal(t, []int{8, -3}, recs[0].Ratings)
	assert.Equal(t, StatePending, recs[0].State)
	assert.Equal(t, index.StatusBanned, recs[1].Status)
	assert.Empty(t, recs[1].Ratings)
}

func TestFailedRowsAreSkippedAndReusable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, Record{ID: 5, Text: "bad\x01word"}))
	require.NoError(t, s.MarkIndexed(ctx, 5, StateFailed))

	recs, err := s.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)

	require.NoError(t, s.Save(ctx, Record{ID: 5, Text: "good word"}))
	require.NoError(t, s.MarkIndexed(ctx, 5, StateIndexed))
	recs, err = s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "good word", recs[0].Text)
	assert.Equal(t, StateIndexed, recs[0].State)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, id := range []int{1, 2, 3} {
		require.NoError(t, s.Save(ctx, Record{ID: id, Text: "x"}))
	}

	n, err := s.Delete(ctx, 1, 3, 99)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.Delete(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	recs, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 2, recs[0].ID)
}
