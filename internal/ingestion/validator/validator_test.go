package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search-server/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-search-server/pkg/errors"
)

func TestValidateAddRequest(t *testing.T) {
	tests := []struct {
		name   string
		req    ingestion.AddDocumentRequest
		fields []string
	}{
		{"valid", ingestion.AddDocumentRequest{ID: 1, Text: "cat"}, nil},
		{"empty text allowed", ingestion.AddDocumentRequest{ID: 0}, nil},
		{"negative id", ingestion.AddDocumentRequest{ID: -1, Text: "cat"}, []string{"id"}},
		{"bad status", ingestion.AddDocumentRequest{ID: 1, Status: index.Status(9)}, []string{"status"}},
		{"huge text", ingestion.AddDocumentRequest{ID: -2, Text: strings.Repeat("a", maxTextLength+1)}, []string{"id", "text"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddRequest(&tt.req)
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			for _, f := range tt.fields {
				assert.Contains(t, verr.Fields, f)
			}
			assert.Len(t, verr.Fields, len(tt.fields))
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}
}

func TestValidateEvent(t *testing.T) {
	assert.NoError(t, ValidateEvent(&ingestion.DocumentEvent{Op: ingestion.OpRemove, ID: 4}))
	assert.NoError(t, ValidateEvent(&ingestion.DocumentEvent{Op: ingestion.OpAdd, ID: 4, Text: "x"}))

	err := ValidateEvent(&ingestion.DocumentEvent{Op: "upsert", ID: 4})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op:")

	err = ValidateEvent(&ingestion.DocumentEvent{Op: ingestion.OpRemove, ID: -4})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
