package index

import (
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/errors"
)

func newIndex(t testing.TB, stop string) *Index {
	t.Helper()
	sw, err := tokenizer.ParseStopWords(stop)
	require.NoError(t, err)
	return New(sw)
}

func TestAddDocumentTermFrequencies(t *testing.T) {
	x := newIndex(t, "in the")
	require.NoError(t, x.AddDocument(42, "cat in the city cat", StatusActual, []int{1, 2, 3}))

	freqs := x.TermFrequencies(42)
	assert.Len(t, freqs, 2)
	assert.InDelta(t, 2.0/3, freqs["cat"], 1e-9)
	assert.InDelta(t, 1.0/3, freqs["city"], 1e-9)
	assert.NotContains(t, freqs, "in")
	assert.NotContains(t, freqs, "the")
}

func TestTermFrequenciesSumToOne(t *testing.T) {
	x := newIndex(t, "and")
	texts := []string{
		"funny pet and nasty rat",
		"curly dog and fancy collar",
		"a b c d e f g a b c",
		"single",
	}
	for i, text := range texts {
		require.NoError(t, x.AddDocument(i, text, StatusActual, nil))
	}
	for id := range x.All() {
		var sum float64
		for _, f := range x.TermFrequencies(id) {
			sum += f
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "document %d", id)
	}
}

func TestAddDocumentOnlyStopWords(t *testing.T) {
	x := newIndex(t, "in the")
	require.NoError(t, x.AddDocument(0, "in the in", StatusActual, nil))
	assert.Empty(t, x.TermFrequencies(0))
	assert.Equal(t, 1, x.DocumentCount())
}

func TestAddDocumentSkipsEmptyWords(t *testing.T) {
	x := newIndex(t, "")
	require.NoError(t, x.AddDocument(0, "cat  dog", StatusActual, nil))
	freqs := x.TermFrequencies(0)
	assert.Len(t, freqs, 2)
	assert.InDelta(t, 0.5, freqs["cat"], 1e-9)
	assert.NotContains(t, freqs, "")
}

func TestAddDocumentErrors(t *testing.T) {
	x := newIndex(t, "")
	require.NoError(t, x.AddDocument(1, "cat", StatusActual, nil))

	tests := []struct {
		name string
		id   int
		text string
		want error
	}{
		{"negative id", -1, "dog", apperrors.ErrInvalidID},
		{"duplicate id", 1, "dog", apperrors.ErrDuplicateID},
		{"control character", 2, "big d\x02og", apperrors.ErrInvalidCharacter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := x.AddDocument(tt.id, tt.text, StatusActual, nil)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 1, x.DocumentCount())
			assert.Equal(t, []int{1}, x.IDs())
		})
	}
	assert.Equal(t, 1, x.PoolSize(), "failed adds must not intern terms")
	assert.Zero(t, x.CountDocumentsContaining("big"))
}

func TestAverageRating(t *testing.T) {
	tests := []struct {
		ratings []int
		want    int
	}{
		{nil, 0},
		{[]int{}, 0},
		{[]int{1, 2, 3}, 2},
		{[]int{1, 2}, 1},
		{[]int{7, 2, 7}, 5},
		{[]int{-1, -2}, -1},
		{[]int{5, -12, 2, 1}, -1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.ratings), func(t *testing.T) {
			x := newIndex(t, "")
			require.NoError(t, x.AddDocument(0, "cat", StatusActual, tt.ratings))
			doc, ok := x.Document(0)
			require.True(t, ok)
			assert.Equal(t, tt.want, doc.Rating)
		})
	}
}

func TestDocumentIDAndOrder(t *testing.T) {
	x := newIndex(t, "")
	for _, id := range []int{5, 1, 9} {
		require.NoError(t, x.AddDocument(id, "cat", StatusActual, nil))
	}
	assert.Equal(t, []int{5, 1, 9}, x.IDs())
	assert.Equal(t, []int{5, 1, 9}, slices.Collect(x.All()))

	id, err := x.DocumentID(2)
	require.NoError(t, err)
	assert.Equal(t, 9, id)

	_, err = x.DocumentID(3)
	assert.ErrorIs(t, err, apperrors.ErrIndexOutOfRange)
	_, err = x.DocumentID(-1)
	assert.ErrorIs(t, err, apperrors.ErrIndexOutOfRange)
}

func TestRemoveDocument(t *testing.T) {
	x := newIndex(t, "")
	for i, text := range []string{"cat dog", "cat", "bird"} {
		require.NoError(t, x.AddDocument(i, text, StatusActual, nil))
	}
	assert.Equal(t, 2, x.CountDocumentsContaining("cat"))

	x.RemoveDocument(0)
	x.RemoveDocument(100)

	assert.Equal(t, 2, x.DocumentCount())
	assert.Equal(t, []int{1, 2}, x.IDs())
	assert.Equal(t, 1, x.CountDocumentsContaining("cat"))
	assert.Zero(t, x.CountDocumentsContaining("dog"))
	assert.Empty(t, x.TermFrequencies(0))

	require.NoError(t, x.AddDocument(0, "cat dog", StatusActual, nil))
	assert.Equal(t, 3, x.DocumentCount())
	assert.Equal(t, []int{1, 2, 0}, x.IDs())
}

func TestInverseDocumentFrequency(t *testing.T) {
	x := newIndex(t, "")
	for i, text := range []string{"one", "two three", "three four five"} {
		require.NoError(t, x.AddDocument(i, text, StatusActual, nil))
	}
	idf, ok := x.InverseDocumentFrequency("three")
	require.True(t, ok)
	assert.InDelta(t, 0.405465108, idf, 1e-9)

	_, ok = x.InverseDocumentFrequency("six")
	assert.False(t, ok)
}

func TestTermFrequenciesIsACopy(t *testing.T) {
	x := newIndex(t, "")
	require.NoError(t, x.AddDocument(0, "cat", StatusActual, nil))
	freqs := x.TermFrequencies(0)
	freqs["dog"] = 1
	assert.NotContains(t, x.TermFrequencies(0), "dog")
}

func TestTermPoolSharesStorage(t *testing.T) {
	x := newIndex(t, "")
	require.NoError(t, x.AddDocument(0, "cat dog", StatusActual, nil))
	require.NoError(t, x.AddDocument(1, "dog cat bird", StatusActual, nil))
	assert.Equal(t, 3, x.PoolSize())

	x.RemoveDocument(0)
	x.RemoveDocument(1)
	assert.Equal(t, 3, x.PoolSize(), "pool only grows")
}

func TestParseStatus(t *testing.T) {
	_, err := ParseStatus("deleted")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	s, err := ParseStatus(" BANNED ")
	require.NoError(t, err)
	assert.Equal(t, StatusBanned, s)
}

func BenchmarkAddDocument(b *testing.B) {
	x := newIndex(b, "and with")
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = x.AddDocument(i, "this is a benchmark document with several terms for testing the indexing performance", StatusActual, []int{1, 2, 3})
	}
}
