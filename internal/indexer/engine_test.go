package indexer

import (
	"math"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/errors"
)

func newTestEngine(t *testing.T, stop string, mode ranker.Mode) *Engine {
	t.Helper()
	e, err := NewEngineFromText(stop, Options{Mode: mode, Buckets: 16, Workers: 4})
	require.NoError(t, err)
	return e
}

func resultIDs(docs []ranker.ScoredDoc) []int {
	out := make([]int, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}

func TestNewEngineRejectsInvalidStopWords(t *testing.T) {
	_, err := NewEngineFromWords([]string{"in", "bad\x01"}, Options{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidCharacter)

	_, err = NewEngineFromText("in\x12 the", Options{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidCharacter)

	e, err := NewEngineFromWords([]string{"", "in", "in"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, e.StopWords().Len())
}

func TestFindTopDocumentsEndToEnd(t *testing.T) {
	for _, mode := range []ranker.Mode{ranker.Sequential, ranker.Parallel} {
		t.Run(mode.String(), func(t *testing.T) {
			e := newTestEngine(t, "", mode)
			require.NoError(t, e.AddDocument(0, "one", index.StatusActual, []int{1}))
			require.NoError(t, e.AddDocument(1, "two three", index.StatusActual, []int{1}))
			require.NoError(t, e.AddDocument(2, "three four five", index.StatusActual, []int{1}))

			got, err := e.FindTopDocuments("one three")
			require.NoError(t, err)
			require.Equal(t, []int{0, 1, 2}, resultIDs(got))
			assert.InDelta(t, math.Log(3), got[0].Relevance, 1e-6)
			assert.InDelta(t, math.Log(1.5)*0.5, got[1].Relevance, 1e-6)
			assert.InDelta(t, math.Log(1.5)/3, got[2].Relevance, 1e-6)
		})
	}
}

func TestStopWordsExcludedFromDocumentsAndQueries(t *testing.T) {
	e := newTestEngine(t, "in the", ranker.Sequential)
	require.NoError(t, e.AddDocument(42, "cat in the city", index.StatusActual, []int{1, 2, 3}))

	got, err := e.FindTopDocuments("in")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = e.FindTopDocuments("cat")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 42, got[0].ID)
	assert.Equal(t, 2, got[0].Rating)
}

func TestFindTopDocumentsByStatusAndFunc(t *testing.T) {
	e := newTestEngine(t, "and in on", ranker.Sequential)
	require.NoError(t, e.AddDocument(0, "white cat and fashionable collar", index.StatusActual, []int{8, -3}))
	require.NoError(t, e.AddDocument(1, "fluffy cat fluffy tail", index.StatusActual, []int{7, 2, 7}))
	require.NoError(t, e.AddDocument(2, "groomed dog expressive eyes", index.StatusActual, []int{5, -12, 2, 1}))
	require.NoError(t, e.AddDocument(3, "groomed starling eugene", index.StatusBanned, []int{9}))

	got, err := e.FindTopDocuments("fluffy groomed cat")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0, 2}, resultIDs(got))
	assert.Equal(t, []int{5, 2, -1}, []int{got[0].Rating, got[1].Rating, got[2].Rating})

	got, err = e.FindTopDocumentsByStatus("fluffy groomed cat", index.StatusBanned)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, resultIDs(got))

	got, err = e.FindTopDocumentsFunc("fluffy groomed cat", func(id int, _ index.Status, _ int) bool {
		return id%2 == 0
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, resultIDs(got))
}

func TestFindTopDocumentsModesAgree(t *testing.T) {
	e := newTestEngine(t, "", ranker.Sequential)
	texts := []string{"a b c", "b c d", "c d e", "a a a", "e f", "b b", "f a c", "d"}
	for i, text := range texts {
		require.NoError(t, e.AddDocument(i, text, index.StatusActual, []int{i % 3}))
	}
	for _, raw := range []string{"a", "b c", "a -d", "e f -a"} {
		seq, err := e.FindTopDocumentsMode(ranker.Sequential, raw, nil)
		require.NoError(t, err)
		par, err := e.FindTopDocumentsMode(ranker.Parallel, raw, nil)
		require.NoError(t, err)
		assert.Equal(t, seq, par, raw)
	}
}

func TestFindTopDocumentsQueryErrors(t *testing.T) {
	e := newTestEngine(t, "", ranker.Sequential)
	require.NoError(t, e.AddDocument(1, "cat", index.StatusActual, nil))

	cases := map[string]error{
		"cat -":     apperrors.ErrEmptyMinusWord,
		"":          apperrors.ErrEmptyWord,
		"cat  dog":  apperrors.ErrEmptyWord,
		"--cat":     apperrors.ErrDoubleMinusPrefix,
		"ca\x01t":   apperrors.ErrInvalidCharacter,
		"cat -\x02": apperrors.ErrInvalidCharacter,
	}
	for raw, want := range cases {
		_, err := e.FindTopDocuments(raw)
		assert.ErrorIs(t, err, want, "%q", raw)
		_, _, err = e.MatchDocument(raw, 1)
		assert.ErrorIs(t, err, want, "%q", raw)
	}
}

func TestAddDocumentErrorsLeaveEngineUnchanged(t *testing.T) {
	e := newTestEngine(t, "", ranker.Sequential)
	require.NoError(t, e.AddDocument(1, "cat", index.StatusActual, nil))

	assert.ErrorIs(t, e.AddDocument(-1, "dog", index.StatusActual, nil), apperrors.ErrInvalidID)
	assert.ErrorIs(t, e.AddDocument(1, "dog", index.StatusActual, nil), apperrors.ErrDuplicateID)
	assert.ErrorIs(t, e.AddDocument(2, "big d\x10og", index.StatusActual, nil), apperrors.ErrInvalidCharacter)

	assert.Equal(t, 1, e.DocumentCount())
	assert.Equal(t, []int{1}, e.IDs())
	got, err := e.FindTopDocuments("big")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMatchDocument(t *testing.T) {
	e := newTestEngine(t, "and", ranker.Sequential)
	require.NoError(t, e.AddDocument(7, "white cat and fashionable collar", index.StatusIrrelevant, nil))

	terms, status, err := e.MatchDocument("collar cat dog", 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "collar"}, terms)
	assert.Equal(t, index.StatusIrrelevant, status)

	terms, status, err = e.MatchDocument("collar cat -white", 7)
	require.NoError(t, err)
	assert.Empty(t, terms)
	assert.Equal(t, index.StatusIrrelevant, status)

	_, _, err = e.MatchDocument("cat", 8)
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
}

func TestDocumentAccessors(t *testing.T) {
	e := newTestEngine(t, "", ranker.Sequential)
	for _, id := range []int{9, 2, 5} {
		require.NoError(t, e.AddDocument(id, "cat dog", index.StatusActual, nil))
	}

	assert.Equal(t, 3, e.DocumentCount())
	id, err := e.DocumentID(1)
	require.NoError(t, err)
	assert.Equal(t, 2, id)
	_, err = e.DocumentID(3)
	assert.ErrorIs(t, err, apperrors.ErrIndexOutOfRange)

	assert.Equal(t, []int{9, 2, 5}, slices.Collect(e.All()))
	assert.Equal(t, map[string]float64{"cat": 0.5, "dog": 0.5}, e.TermFrequencies(9))
	assert.Empty(t, e.TermFrequencies(100))
}

func TestRemoveDocumentAndReAdd(t *testing.T) {
	e := newTestEngine(t, "", ranker.Sequential)
	require.NoError(t, e.AddDocument(1, "cat", index.StatusActual, nil))
	require.NoError(t, e.AddDocument(2, "dog", index.StatusActual, nil))

	assert.True(t, e.Contains(1))
	assert.True(t, e.RemoveDocument(1))
	assert.False(t, e.RemoveDocument(1))
	assert.False(t, e.RemoveDocument(404))
	assert.Equal(t, []int{2}, e.IDs())
	assert.False(t, e.Contains(1))

	got, err := e.FindTopDocuments("cat")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, e.AddDocument(1, "cat", index.StatusActual, []int{4}))
	got, err = e.FindTopDocuments("cat")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 4, got[0].Rating)
	assert.Equal(t, []int{2, 1}, e.IDs())
}

func TestRemoveDuplicates(t *testing.T) {
	e := newTestEngine(t, "and", ranker.Sequential)
	require.NoError(t, e.AddDocument(1, "funny pet and nasty rat", index.StatusActual, nil))
	require.NoError(t, e.AddDocument(2, "nasty rat and funny funny pet", index.StatusBanned, []int{9}))
	require.NoError(t, e.AddDocument(3, "funny pet", index.StatusActual, nil))

	assert.Equal(t, []int{2}, e.RemoveDuplicates())
	assert.Equal(t, []int{1, 3}, e.IDs())
}

func TestConcurrentReadsAndWrites(t *testing.T) {
	e := newTestEngine(t, "", ranker.Parallel)
	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				id := w*1000 + i
				assert.NoError(t, e.AddDocument(id, "shared term", index.StatusActual, []int{i}))
				if i%5 == 0 {
					e.RemoveDocument(id)
				}
			}
		}()
	}
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				_, err := e.FindTopDocuments("shared -nothing")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 4*40, e.DocumentCount())
}
